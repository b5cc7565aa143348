package rsync

import (
	"regexp"
	"strings"
)

// Filter applies rsync --exclude patterns to paths relative to the transfer
// root (slash separated), following rsync's matching rules:
//
//	name      matches the final path component at any depth
//	dir/      as above, directories only
//	/name     anchored at the transfer root
//	a/b       unanchored: matches the trailing components of the path at
//	          any depth (x/a/b too)
//	*  ?      do not cross a slash
//	**        matches anything, slashes included
//	dir/***   dir itself and everything below it
//
// Callers that walk a tree skip the contents of an excluded directory, as
// rsync does.
type Filter struct {
	rules []rule
}

type rule struct {
	re      *regexp.Regexp
	dirOnly bool
}

// NewFilter compiles patterns; empty patterns are ignored.
func NewFilter(patterns []string) Filter {
	var f Filter
	for _, p := range patterns {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		r := rule{}
		if strings.HasSuffix(p, "/") {
			r.dirOnly = true
			p = strings.TrimRight(p, "/")
		}
		anchored := strings.HasPrefix(p, "/")
		p = strings.TrimLeft(p, "/")
		if p == "" {
			continue
		}
		prefix := `(?:^|/)`
		if anchored {
			prefix = `^`
		}
		re, err := regexp.Compile(prefix + globToRegexp(p) + `$`)
		if err != nil {
			// malformed bracket expression: match the pattern literally
			re = regexp.MustCompile(prefix + regexp.QuoteMeta(p) + `$`)
		}
		r.re = re
		f.rules = append(f.rules, r)
	}
	return f
}

// Excluded reports whether rel (relative, slash separated) is excluded.
func (f Filter) Excluded(rel string, isDir bool) bool {
	rel = strings.Trim(rel, "/")
	for _, r := range f.rules {
		if r.dirOnly && !isDir {
			continue
		}
		if r.re.MatchString(rel) {
			return true
		}
	}
	return false
}

// globToRegexp translates one rsync wildcard pattern.
func globToRegexp(p string) string {
	var b strings.Builder
	suffix := ""
	if strings.HasSuffix(p, "/***") {
		suffix = `(?:/.*)?`
		p = strings.TrimSuffix(p, "/***")
	}
	for i := 0; i < len(p); i++ {
		switch c := p[i]; c {
		case '*':
			if i+1 < len(p) && p[i+1] == '*' {
				for i+1 < len(p) && p[i+1] == '*' {
					i++
				}
				b.WriteString(`.*`)
			} else {
				b.WriteString(`[^/]*`)
			}
		case '?':
			b.WriteString(`[^/]`)
		case '[':
			end := strings.IndexByte(p[i+1:], ']')
			if end <= 0 {
				b.WriteString(`\[`)
				continue
			}
			class := p[i+1 : i+1+end]
			if strings.HasPrefix(class, "!") {
				class = "^" + class[1:]
			}
			b.WriteString("[" + strings.ReplaceAll(class, `\`, `\\`) + "]")
			i += end + 1
		case '\\':
			if i+1 < len(p) {
				i++
				b.WriteString(regexp.QuoteMeta(string(p[i])))
			} else {
				b.WriteString(`\\`)
			}
		default:
			b.WriteString(regexp.QuoteMeta(string(c)))
		}
	}
	return b.String() + suffix
}
