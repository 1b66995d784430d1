package store

import "strings"

// NormalizePath is the only validation applied to caller paths. It never
// touches the backend.
func NormalizePath(raw string) (string, error) {
	p := strings.TrimSpace(raw)
	p = strings.ReplaceAll(p, "\\", "/")
	for strings.Contains(p, "//") {
		p = strings.ReplaceAll(p, "//", "/")
	}
	p = strings.TrimPrefix(p, "/")
	for _, segment := range strings.Split(p, "/") {
		if segment == ".." {
			return "", &InvalidPathError{Path: raw, Reason: "parent segment not allowed"}
		}
	}
	return p, nil
}

func normalizeFilePath(raw string) (string, error) {
	p, err := NormalizePath(raw)
	if err != nil {
		return "", err
	}
	if p == "" || strings.HasSuffix(p, "/") {
		return "", &InvalidPathError{Path: raw, Reason: "file name required"}
	}
	return p, nil
}

func withPrefix(prefix string, p string) string {
	if prefix == "" || strings.HasPrefix(p, prefix) {
		return p
	}
	return prefix + p
}

func normalizePrefix(prefix string) string {
	p, err := NormalizePath(prefix)
	if err != nil || p == "" {
		return ""
	}
	if !strings.HasSuffix(p, "/") {
		p += "/"
	}
	return p
}
