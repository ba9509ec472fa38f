package main

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/i5heu/ouroboros-ocm/pkg/nodestore"
	"github.com/i5heu/ouroboros-ocm/pkg/repository"
)

type treeNode struct {
	Name        string         `json:"name"`
	Path        string         `json:"path"`
	PrimaryType string         `json:"primaryType"`
	Mixins      []string       `json:"mixins,omitempty"`
	Properties  map[string]any `json:"properties,omitempty"`
	Children    []*treeNode    `json:"children,omitempty"`
	// Truncated is set when the node has children below the depth limit.
	Truncated bool `json:"truncated,omitempty"`
}

// buildTree walks n down to maxDepth levels of children. A negative
// maxDepth walks the whole subtree.
func buildTree(n repository.Node, maxDepth int) (*treeNode, error) {
	t := &treeNode{
		Name:        n.Name(),
		Path:        n.Path(),
		PrimaryType: n.PrimaryType(),
		Mixins:      n.Mixins(),
	}

	props, err := n.Properties()
	if err != nil {
		return nil, fmt.Errorf("error reading properties of %s: %w", n.Path(), err)
	}
	for _, p := range props {
		switch p.Name() {
		case repository.PropertyPrimaryType, repository.PropertyMixinTypes:
			continue
		}
		v, err := propertyValue(p)
		if err != nil {
			return nil, fmt.Errorf("error reading %s of %s: %w", p.Name(), n.Path(), err)
		}
		if t.Properties == nil {
			t.Properties = map[string]any{}
		}
		t.Properties[p.Name()] = v
	}

	children, err := n.Nodes()
	if err != nil {
		return nil, err
	}
	if maxDepth == 0 {
		t.Truncated = len(children) > 0
		return t, nil
	}
	for _, child := range children {
		c, err := buildTree(child, maxDepth-1)
		if err != nil {
			return nil, err
		}
		t.Children = append(t.Children, c)
	}
	return t, nil
}

func propertyValue(p repository.Property) (any, error) {
	if !p.IsMultiple() {
		v, err := p.Value()
		if err != nil {
			return nil, err
		}
		return plainValue(v)
	}
	values, err := p.Values()
	if err != nil {
		return nil, err
	}
	out := make([]any, 0, len(values))
	for _, v := range values {
		pv, err := plainValue(v)
		if err != nil {
			return nil, err
		}
		out = append(out, pv)
	}
	return out, nil
}

func plainValue(v repository.Value) (any, error) {
	switch v.Type() {
	case repository.TypeLong:
		return v.Long()
	case repository.TypeDouble:
		return v.Double()
	case repository.TypeBoolean:
		return v.Boolean()
	case repository.TypeDate:
		d, err := v.Date()
		if err != nil {
			return nil, err
		}
		return d.Format(time.RFC3339Nano), nil
	case repository.TypeBinary:
		if b := v.Blob(); b != nil {
			return fmt.Sprintf("<binary %d bytes>", b.Size()), nil
		}
		return "<binary>", nil
	}
	return v.String()
}

func writeJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

func writeText(w io.Writer, t *treeNode, indent int) error {
	pad := strings.Repeat("  ", indent)
	header := fmt.Sprintf("%s%s [%s]", pad, displayName(t), t.PrimaryType)
	if len(t.Mixins) > 0 {
		header += " {" + strings.Join(t.Mixins, ", ") + "}"
	}
	if t.Truncated {
		header += " ..."
	}
	if _, err := fmt.Fprintln(w, header); err != nil {
		return err
	}

	names := make([]string, 0, len(t.Properties))
	for name := range t.Properties {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if _, err := fmt.Fprintf(w, "%s  - %s = %v\n", pad, name, t.Properties[name]); err != nil {
			return err
		}
	}

	for _, c := range t.Children {
		if err := writeText(w, c, indent+1); err != nil {
			return err
		}
	}
	return nil
}

func displayName(t *treeNode) string {
	if t.Path == "/" {
		return "/"
	}
	return t.Name
}

func writeStats(w io.Writer, s nodestore.Stats) error {
	_, err := fmt.Fprintf(w, "nodes:  %d\nchunks: %d\n", s.Nodes, s.Chunks)
	if err != nil || s.Disk.Path == "" {
		return err
	}
	_, err = fmt.Fprintf(w, "path:   %s\nsize:   %d bytes\nfree:   %d bytes\n", s.Disk.Path, s.Disk.Store, s.Disk.Free)
	return err
}

func writeReport(w io.Writer, r nodestore.Report) error {
	_, err := fmt.Fprintf(w, "nodes:   %d\nchunks:  %d\norphans: %d\n", r.Nodes, r.Chunks, r.OrphanChunks)
	if err != nil {
		return err
	}
	for _, p := range r.Problems {
		if _, err := fmt.Fprintf(w, "  - %s\n", p); err != nil {
			return err
		}
	}
	return nil
}
