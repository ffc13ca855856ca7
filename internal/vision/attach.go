package vision

import (
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pagescribe/pagescribe/constants"
)

// ReadImage loads a page image and reports its MIME type from the extension.
// An unreadable image is a page-level failure, not a retryable one.
func ReadImage(path string) ([]byte, string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, "", fmt.Errorf("read page image: %w", err)
	}
	return b, constants.MIMEForExt(filepath.Ext(path)), nil
}

// DataURL encodes image bytes for an OpenAI-style image_url attachment.
func DataURL(data []byte, mimeType string) string {
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data)
}
