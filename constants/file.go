package constants

import "strings"

// AllowedExtensions holds the page-image extensions eligible for OCR.
var AllowedExtensions = map[string]struct{}{
	"png":  {},
	"jpg":  {},
	"jpeg": {},
}

// ArtifactExtension is appended to a page's filename stem for its output file.
const ArtifactExtension = ".md"

// NormalizeExt lowercases and trims the dot from a file extension.
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// MIMEForExt maps a page-image extension to the content type sent to the model.
func MIMEForExt(ext string) string {
	switch NormalizeExt(ext) {
	case "jpg", "jpeg":
		return "image/jpeg"
	default:
		return "image/png"
	}
}
