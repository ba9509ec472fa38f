// Package pathutil holds helpers for repository node names and paths.
package pathutil

import (
	"strings"
)

const Separator = "/"

// CreateValidName turns an arbitrary string into a legal node name. Characters
// that carry meaning in repository paths are replaced by an underscore.
func CreateValidName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	if name == "." || name == ".." {
		return "_"
	}

	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		switch r {
		case '/', ':', '[', ']', '*', '|', '\'', '"', '\\', ' ', '\t', '\n', '\r':
			b.WriteRune('_')
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Join appends name to a parent path.
func Join(parent, name string) string {
	if parent == "" || parent == Separator {
		return Separator + name
	}
	return strings.TrimSuffix(parent, Separator) + Separator + name
}

// Split returns the parent path and the last element of p.
func Split(p string) (parent, name string) {
	p = strings.TrimSuffix(p, Separator)
	i := strings.LastIndex(p, Separator)
	if i < 0 {
		return Separator, p
	}
	if i == 0 {
		return Separator, p[1:]
	}
	return p[:i], p[i+1:]
}

// Elements splits an absolute or relative path into its names.
func Elements(p string) []string {
	var out []string
	for _, e := range strings.Split(p, Separator) {
		if e != "" {
			out = append(out, e)
		}
	}
	return out
}

// IsAncestor reports whether ancestor is a strict ancestor path of p.
func IsAncestor(ancestor, p string) bool {
	if ancestor == Separator {
		return p != Separator && strings.HasPrefix(p, Separator)
	}
	return strings.HasPrefix(p, ancestor+Separator)
}
