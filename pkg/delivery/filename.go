package delivery

import (
	"net/url"
	"path"
	"regexp"
	"strings"
)

// DefaultFilename is used when the backend does not name the artifact.
const DefaultFilename = "Puppet3D_Bundle_latest.rbz"

// Accepts both filename="x" and the RFC 5987 filename*=UTF-8''x form.
var filenamePattern = regexp.MustCompile(`(?i)filename\*?=(?:UTF-8''|")?([^";\r\n]+)`)

// ResolveFilename extracts the suggested filename from a Content-Disposition
// header value. It returns fallback when the header has no usable name.
func ResolveFilename(header, fallback string) string {
	m := filenamePattern.FindStringSubmatch(header)
	if len(m) < 2 {
		return fallback
	}

	raw := strings.TrimSpace(strings.ReplaceAll(m[1], `"`, ""))
	name, err := url.PathUnescape(raw)
	if err != nil {
		return fallback
	}

	name = path.Base(strings.ReplaceAll(name, `\`, "/"))
	name = strings.TrimSpace(name)
	if name == "" || name == "." || name == ".." || name == "/" {
		return fallback
	}
	return name
}
