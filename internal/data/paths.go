package data

import "strings"

// NormalizePath validates p as a canonical absolute page path: rooted at
// '/', no empty, '.' or '..' segments, no backslash, no trailing slash
// except for the root itself.
func NormalizePath(p string) (string, error) {
	if p == "" || p[0] != '/' {
		return "", ErrInvalidPath
	}
	if strings.ContainsRune(p, '\\') {
		return "", ErrInvalidPath
	}
	if p == RootPagePath {
		return p, nil
	}
	if strings.HasSuffix(p, "/") {
		return "", ErrInvalidPath
	}
	for _, seg := range strings.Split(p[1:], "/") {
		if seg == "" || seg == "." || seg == ".." {
			return "", ErrInvalidPath
		}
	}
	return p, nil
}

// recursivePrefix is the scan prefix covering a page and its subtree:
// "/a" covers "/a/..." via the prefix "/a/".
func recursivePrefix(base string) string {
	return strings.TrimRight(base, "/") + "/"
}

// pathSuffix returns the last non-empty segment of a path, used when a
// rename destination ends in '/' and inherits the source's leaf name.
func pathSuffix(p string) string {
	trimmed := strings.TrimRight(p, "/")
	idx := strings.LastIndexByte(trimmed, '/')
	if idx < 0 {
		return trimmed
	}
	return trimmed[idx+1:]
}

// ParentPath returns the parent of p, or "" for the root.
func ParentPath(p string) string {
	if p == RootPagePath || p == "" {
		return ""
	}
	idx := strings.LastIndexByte(p, '/')
	if idx <= 0 {
		return RootPagePath
	}
	return p[:idx]
}
