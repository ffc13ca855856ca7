package vision

import (
	"regexp"
	"strings"
)

var (
	reCRLF       = regexp.MustCompile(`\r\n?`)
	reMultiBlank = regexp.MustCompile(`\n{3,}`)
)

// SanitizeTranscript cleans model output before storage: unwraps a code fence
// the model put around the whole document, normalizes line endings, collapses
// runs of blank lines, and trims trailing whitespace per line.
// Conservative: keeps line breaks and everything inside the document.
func SanitizeTranscript(s string) string {
	if s == "" {
		return s
	}
	s = reCRLF.ReplaceAllString(s, "\n")
	s = stripWrappingFence(s)
	s = reMultiBlank.ReplaceAllString(s, "\n\n")
	lines := strings.Split(s, "\n")
	for i := range lines {
		lines[i] = strings.TrimRight(lines[i], " \t")
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// stripWrappingFence removes a ``` fence only when it wraps the entire
// payload with a bare/markdown info string; fences inside the document are
// content and stay. A document that itself starts with a code block (```go
// and similar) is left alone.
func stripWrappingFence(s string) string {
	t := strings.TrimSpace(s)
	if !strings.HasPrefix(t, "```") {
		return s
	}
	nl := strings.IndexByte(t, '\n')
	if nl < 0 {
		return s
	}
	switch strings.TrimSpace(t[3:nl]) {
	case "", "markdown", "md":
	default:
		return s
	}
	body := strings.TrimSpace(t[nl+1:])
	if !strings.HasSuffix(body, "```") {
		return s
	}
	return strings.TrimSuffix(body, "```")
}
