package loader

import (
	"fmt"
	"path"
	"strings"
)

// validatePattern rejects patterns path.Match cannot parse.
func validatePattern(pattern string) error {
	if pattern == "" {
		return fmt.Errorf("empty pattern")
	}
	for _, seg := range strings.Split(pattern, "/") {
		if seg == "**" {
			continue
		}
		if _, err := path.Match(seg, ""); err != nil {
			return fmt.Errorf("invalid pattern %q: %w", pattern, err)
		}
	}
	return nil
}

// matchGlob reports whether rel (slash-separated, relative to the docs root)
// matches pattern. A "**" segment matches zero or more path segments; every
// other segment is matched with path.Match.
func matchGlob(pattern, rel string) bool {
	return matchSegments(strings.Split(pattern, "/"), strings.Split(rel, "/"))
}

func matchSegments(pat, parts []string) bool {
	for len(pat) > 0 {
		if pat[0] == "**" {
			for len(pat) > 0 && pat[0] == "**" {
				pat = pat[1:]
			}
			if len(pat) == 0 {
				return true
			}
			for i := 0; i <= len(parts); i++ {
				if matchSegments(pat, parts[i:]) {
					return true
				}
			}
			return false
		}

		if len(parts) == 0 {
			return false
		}
		if ok, err := path.Match(pat[0], parts[0]); err != nil || !ok {
			return false
		}
		pat, parts = pat[1:], parts[1:]
	}
	return len(parts) == 0
}

// matchDir reports whether everything below directory rel is excluded by
// pattern, so the walk can skip it.
func matchDir(pattern, rel string) bool {
	if !strings.HasSuffix(pattern, "/**") {
		return false
	}
	return matchGlob(strings.TrimSuffix(pattern, "/**"), rel)
}
