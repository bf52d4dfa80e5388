package data

import (
	"strings"

	"wikid/internal/kv"
)

// buildLinkRefsTx extracts internal wiki links from a Markdown source and
// resolves each to a page id via the live path index. Unresolved targets
// are recorded with a nil id so renders can mark missing pages.
//
// A lexical scan is used instead of a full Markdown parse: image links and
// nested parentheses make regexes brittle, and link targets must be seen
// exactly as written. Rules:
//   - only [label](target) links count; ![alt](src) images are skipped
//   - scheme-prefixed targets (http:, mailto:, ...) are external
//   - '#' fragments and targets containing whitespace are skipped
//   - relative targets are resolved against the page's directory and '.'
//     and '..' segments are folded, never escaping the root
func buildLinkRefsTx(tx *kv.Txn, basePath, source string) (map[string]*PageID, error) {
	refs := make(map[string]*PageID)
	runes := []rune(source)
	pos := 0

	next := func() (rune, bool) {
		if pos >= len(runes) {
			return 0, false
		}
		ch := runes[pos]
		pos++
		return ch, true
	}
	peek := func() (rune, bool) {
		if pos >= len(runes) {
			return 0, false
		}
		return runes[pos], true
	}

	skipUntil := func(target rune) bool {
		for {
			ch, ok := next()
			if !ok {
				return false
			}
			if ch == target {
				return true
			}
		}
	}

	readUntilParen := func() (string, bool) {
		var buf strings.Builder
		depth := 0
		for {
			ch, ok := next()
			if !ok {
				return "", false
			}
			switch ch {
			case '(':
				depth++
				buf.WriteRune(ch)
			case ')':
				if depth == 0 {
					return buf.String(), true
				}
				depth--
				buf.WriteRune(ch)
			default:
				buf.WriteRune(ch)
			}
		}
	}

	for {
		ch, ok := next()
		if !ok {
			break
		}

		if ch == '!' {
			if p, ok := peek(); ok && p == '[' {
				// image link, skip it whole
				if skipUntil(']') {
					if p, ok := peek(); ok && p == '(' {
						next()
						readUntilParen()
					}
				}
			}
			continue
		}

		if ch != '[' {
			continue
		}
		if !skipUntil(']') {
			continue
		}
		if p, ok := peek(); !ok || p != '(' {
			continue
		}
		next()

		rawLink, ok := readUntilParen()
		if !ok {
			continue
		}
		rawLink = strings.TrimSpace(rawLink)
		if rawLink == "" || isSchemeLink(rawLink) {
			continue
		}

		normalized, ok := normalizeLinkPath(basePath, rawLink)
		if !ok {
			continue
		}

		id, found, err := resolvePathTx(tx, normalized)
		if err != nil {
			return nil, err
		}
		if found {
			resolved := id
			refs[normalized] = &resolved
		} else {
			refs[normalized] = nil
		}
	}

	return refs, nil
}

// isSchemeLink reports whether the target begins with a URI scheme.
func isSchemeLink(link string) bool {
	hadChar := false
	for _, ch := range link {
		if ch == ':' {
			return hadChar
		}
		if ch == '/' || ch == ' ' || ch == '\t' || ch == '\n' {
			return false
		}
		if !isSchemeChar(ch) {
			return false
		}
		hadChar = true
	}
	return false
}

func isSchemeChar(ch rune) bool {
	switch {
	case ch >= 'a' && ch <= 'z', ch >= 'A' && ch <= 'Z', ch >= '0' && ch <= '9':
		return true
	case ch == '+' || ch == '-' || ch == '.':
		return true
	}
	return false
}

// normalizeLinkPath turns a link target into an absolute page path rooted
// at basePath's directory. Fragments and whitespace-bearing targets are
// not page links.
func normalizeLinkPath(basePath, link string) (string, bool) {
	if strings.HasPrefix(link, "/") {
		return cleanupPath(link), true
	}
	if strings.HasPrefix(link, "#") {
		return "", false
	}
	if strings.ContainsAny(link, " \t\n") {
		return "", false
	}

	base := strings.TrimRight(basePath, "/")
	return cleanupPath(base + "/" + link), true
}

// cleanupPath folds '.' and '..' segments, clamping at the root.
func cleanupPath(p string) string {
	var result []string
	for _, seg := range strings.Split(p, "/") {
		switch seg {
		case "", ".":
		case "..":
			if len(result) > 0 {
				result = result[:len(result)-1]
			}
		default:
			result = append(result, seg)
		}
	}
	return "/" + strings.Join(result, "/")
}
