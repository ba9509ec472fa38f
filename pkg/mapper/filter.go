package mapper

import (
	"sort"
	"strings"
)

const excludeMarker = "-"

type filterMode int

const (
	filterAll filterMode = iota
	filterNone
	filterInclude
	filterExclude
)

// Filter selects the fields that take part in an update or a read.
type Filter struct {
	mode  filterMode
	names map[string]struct{}
}

var (
	// All includes every field.
	All = Filter{mode: filterAll}
	// None excludes every field except identity and metadata fields.
	None = Filter{mode: filterNone}
)

// ParseFilter parses "*" (or an empty string), "none", a comma separated
// include list, or an exclude list prefixed with "-".
func ParseFilter(expr string) Filter {
	expr = strings.TrimSpace(expr)
	switch expr {
	case "", "*":
		return All
	case "none":
		return None
	}

	f := Filter{mode: filterInclude, names: map[string]struct{}{}}
	if strings.HasPrefix(expr, excludeMarker) {
		f.mode = filterExclude
		expr = strings.TrimPrefix(expr, excludeMarker)
	}
	for _, name := range strings.Split(expr, ",") {
		if name = strings.TrimSpace(name); name != "" {
			f.names[name] = struct{}{}
		}
	}
	return f
}

// Includes reports whether a field with the given names passes the filter.
func (f Filter) Includes(names ...string) bool {
	switch f.mode {
	case filterAll:
		return true
	case filterNone:
		return false
	}

	found := false
	for _, n := range names {
		if _, ok := f.names[n]; ok {
			found = true
			break
		}
	}
	if f.mode == filterExclude {
		return !found
	}
	return found
}

func (f Filter) String() string {
	switch f.mode {
	case filterAll:
		return "*"
	case filterNone:
		return "none"
	}
	names := make([]string, 0, len(f.names))
	for n := range f.names {
		names = append(names, n)
	}
	sort.Strings(names)
	s := strings.Join(names, ",")
	if f.mode == filterExclude {
		s = excludeMarker + s
	}
	return s
}

type operation int

const (
	opAdd operation = iota
	opUpdate
	opRead
)

// action is what a mapping operation does with one field.
type action int

const (
	skip action = iota
	visit
	descend
	stub
)

// traversal carries the filter and the depth budget of one mapping call.
type traversal struct {
	op       operation
	filter   Filter
	maxDepth int
}

func (t traversal) withinDepth(depth int) bool {
	return t.maxDepth < 0 || depth < t.maxDepth
}

// decide is the single policy consulted by add, update and read for every
// field at the given depth.
func (t traversal) decide(f *fieldSchema, depth int) action {
	switch f.role {
	case roleName, rolePath, roleID, roleParent, roleVersionName, roleVersionCreated,
		roleBaseVersionName, roleBaseVersionCreated, roleCheckedOut, roleCreated:
		return visit
	}

	if t.op == opAdd {
		switch f.role {
		case roleChild, roleFile:
			return descend
		}
		return visit
	}

	if !t.filter.Includes(f.goName, f.name) {
		return skip
	}

	switch f.role {
	case roleChild, roleFile:
		if t.withinDepth(depth) {
			return descend
		}
		return skip
	case roleReference:
		if t.op == opUpdate {
			return visit
		}
		if t.withinDepth(depth) && !f.lazy {
			return descend
		}
		return stub
	}
	return visit
}
