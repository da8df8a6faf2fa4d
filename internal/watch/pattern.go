package watch

import (
	"path"
	"strings"

	"github.com/gobwas/glob"

	ferrors "git.home.luguber.info/inful/specserve/internal/foundation/errors"
)

// SplitPatterns splits a comma separated pattern list. Commas inside braces
// belong to the alternation and do not split.
func SplitPatterns(s string) []string {
	var (
		out   []string
		depth int
		start int
	)
	for i, r := range s {
		switch r {
		case '{':
			depth++
		case '}':
			if depth > 0 {
				depth--
			}
		case ',':
			if depth == 0 {
				if p := strings.TrimSpace(s[start:i]); p != "" {
					out = append(out, p)
				}
				start = i + 1
			}
		}
	}
	if p := strings.TrimSpace(s[start:]); p != "" {
		out = append(out, p)
	}
	return out
}

// Matcher holds compiled include and exclude globs.
type Matcher struct {
	include []glob.Glob
	exclude []compiled
}

type compiled struct {
	g glob.Glob
	// base matches the final path element too (pattern without '/').
	base bool
}

// NewMatcher compiles patterns. Entries may themselves be comma separated.
func NewMatcher(patterns ...string) (*Matcher, error) {
	m := &Matcher{}
	for _, raw := range patterns {
		for _, p := range SplitPatterns(raw) {
			neg := strings.HasPrefix(p, "!")
			p = strings.TrimPrefix(strings.TrimPrefix(p, "!"), "./")
			g, err := glob.Compile(p, '/')
			if err != nil {
				return nil, ferrors.WrapError(err, ferrors.CategoryValidation, "invalid glob pattern").
					WithContext("pattern", p).
					Build()
			}
			if neg {
				m.exclude = append(m.exclude, compiled{g: g, base: !strings.Contains(p, "/")})
			} else {
				m.include = append(m.include, g)
			}
		}
	}
	return m, nil
}

// Match reports whether rel (slash separated, relative to the root) is
// included and not excluded.
func (m *Matcher) Match(rel string) bool {
	if m == nil || m.Excluded(rel) {
		return false
	}
	for _, g := range m.include {
		if g.Match(rel) {
			return true
		}
	}
	return false
}

// Excluded reports whether rel or one of its parent directories matches an
// exclusion. Exclusions without a '/' also match any single path element,
// so `!node_modules` covers the directory wherever it is.
func (m *Matcher) Excluded(rel string) bool {
	if m == nil || len(m.exclude) == 0 {
		return false
	}
	for p := rel; p != "." && p != "/" && p != ""; p = path.Dir(p) {
		for _, ex := range m.exclude {
			if ex.g.Match(p) || (ex.base && ex.g.Match(path.Base(p))) {
				return true
			}
		}
	}
	return false
}

// HasIncludes reports whether any include pattern was given.
func (m *Matcher) HasIncludes() bool { return m != nil && len(m.include) > 0 }
