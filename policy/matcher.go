package policy

import "strings"

// match reports whether r matches path and the length of the matched part,
// which breaks ties between rules of the same kind.
func (r *rule) match(path string) (bool, int) {
	switch r.kind {
	case kindExact:
		if path == r.pattern {
			return true, len(r.pattern)
		}
	case kindPrefix:
		if strings.HasPrefix(path, r.pattern) {
			return true, len(r.pattern)
		}
	case kindRegex:
		if loc := r.re.FindStringIndex(path); loc != nil {
			return true, loc[1] - loc[0]
		}
	}
	return false, 0
}
