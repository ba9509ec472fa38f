package mapper

import (
	"math"
	"os"
	"reflect"
	"testing"
	"time"

	"github.com/i5heu/ouroboros-ocm/internal/testutil"
	"github.com/i5heu/ouroboros-ocm/pkg/nodestore"
	"github.com/i5heu/ouroboros-ocm/pkg/repository"
	"github.com/i5heu/ouroboros-ocm/pkg/types"
	"github.com/stretchr/testify/require"
)

type Scalars struct {
	Name    string          `ocm:"name"`
	Path    string          `ocm:"path"`
	Title   string          `ocm:"property,name=title"`
	Count   int             `ocm:"property"`
	Small   int8            `ocm:"property"`
	Big     int64           `ocm:"property"`
	Ratio   float64         `ocm:"property"`
	Enabled bool            `ocm:"property"`
	When    time.Time       `ocm:"property"`
	Stamp   types.Timestamp `ocm:"property"`
	Lang    types.Locale    `ocm:"property"`
	Note    *string         `ocm:"property"`
	Limit   *int64          `ocm:"property"`
	Tags    []string        `ocm:"property"`
	Weights [3]float64      `ocm:"property"`
	Langs   []types.Locale  `ocm:"property"`
	Raw     []byte          `ocm:"property"`
	Ignored string          `ocm:"-"`
}

type Author struct {
	Name  string `ocm:"name"`
	ID    string `ocm:"id"`
	Email string `ocm:"property"`
}

type Comment struct {
	named
	Path    string
	Body    string     `ocm:"property"`
	Replies []*Comment `ocm:"child"`
	Article *Article   `ocm:"parent"`
}

type named struct {
	Name string `ocm:"name"`
}

type Attachment struct {
	File
	Caption string `ocm:"property"`
}

type Article struct {
	Name      string             `ocm:"name"`
	Path      string             `ocm:"path"`
	ID        string             `ocm:"id"`
	Title     string             `ocm:"property"`
	Extra     map[string]string  `ocm:"serialized"`
	Lead      *Comment           `ocm:"child"`
	Comments  []*Comment         `ocm:"child,containerType=nt:unstructured"`
	Labels    map[string]string  `ocm:"child"`
	Ranks     map[string][]int64 `ocm:"child"`
	Author    *Author            `ocm:"reference"`
	Reviewers []*Author          `ocm:"reference"`
	Editor    *Author            `ocm:"reference,lazy"`
	Cover     *Attachment        `ocm:"file,load=bytes"`
	Files     []*Attachment      `ocm:"file"`
	Created   time.Time          `ocm:"created"`
}

type Doc struct {
	Name       string     `ocm:"name"`
	Title      string     `ocm:"property"`
	Version    string     `ocm:"versionName"`
	VersionAt  time.Time  `ocm:"versionCreated"`
	Base       string     `ocm:"baseVersionName"`
	BaseAt     *time.Time `ocm:"baseVersionCreated"`
	CheckedOut bool       `ocm:"checkedOut"`
	Created    time.Time  `ocm:"created"`
}

type Shape interface {
	Area() float64
}

type Square struct {
	Name string  `ocm:"name"`
	Side float64 `ocm:"property"`
}

func (s *Square) Area() float64 { return s.Side * s.Side }

type Circle struct {
	Name   string  `ocm:"name"`
	Radius float64 `ocm:"property"`
}

func (c *Circle) Area() float64 { return math.Pi * c.Radius * c.Radius }

type Triangle struct {
	Name   string  `ocm:"name"`
	Base   float64 `ocm:"property"`
	Height float64 `ocm:"property"`
}

func (tr *Triangle) Area() float64 { return tr.Base * tr.Height / 2 }

type Drawing struct {
	Name   string  `ocm:"name"`
	Main   Shape   `ocm:"child"`
	Shapes []Shape `ocm:"child"`
}

type Labeled interface {
	Label() string
}

type Sticker struct {
	Name string `ocm:"name"`
	Path string `ocm:"path"`
	Text string `ocm:"property"`
}

func (s Sticker) Label() string { return s.Text }

type Board struct {
	Name     string    `ocm:"name"`
	Pinned   Labeled   `ocm:"child"`
	Stickers []Labeled `ocm:"child"`
}

func newTestMapper(t *testing.T) *Mapper {
	t.Helper()
	m := New(Options{CleanNames: true, Logger: testutil.Logger()})
	require.NoError(t, m.Register(Author{}, WithMixins(repository.MixinReferenceable)))
	return m
}

func newTestSession(t *testing.T) (*nodestore.Session, repository.Node) {
	t.Helper()
	store, err := nodestore.Open(nodestore.Config{InMemory: true, Logger: testutil.Logger()})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	s := store.Login()
	root, err := s.RootNode()
	require.NoError(t, err)
	return s, root
}

func stringProp(t *testing.T, n repository.Node, name string) string {
	t.Helper()
	p, err := n.Property(name)
	require.NoError(t, err)
	v, err := p.Value()
	require.NoError(t, err)
	s, err := v.String()
	require.NoError(t, err)
	return s
}

func childNames(t *testing.T, n repository.Node) []string {
	t.Helper()
	nodes, err := n.Nodes()
	require.NoError(t, err)
	names := make([]string, 0, len(nodes))
	for _, c := range nodes {
		names = append(names, c.Name())
	}
	return names
}

// subtree lists the paths of n and all of its descendants.
func subtree(t *testing.T, n repository.Node) []string {
	t.Helper()
	paths := []string{n.Path()}
	nodes, err := n.Nodes()
	require.NoError(t, err)
	for _, c := range nodes {
		paths = append(paths, subtree(t, c)...)
	}
	return paths
}

// wrappedNode lets recordingNode embed repository.Node without the field
// name shadowing the Node method.
type wrappedNode = repository.Node

// recordingNode records the properties written through it.
type recordingNode struct {
	wrappedNode
	writes []string
}

func (r *recordingNode) SetProperty(name string, v repository.Value) error {
	r.writes = append(r.writes, name)
	return r.wrappedNode.SetProperty(name, v)
}

func (r *recordingNode) SetMultiProperty(name string, values []repository.Value) error {
	r.writes = append(r.writes, name)
	return r.wrappedNode.SetMultiProperty(name, values)
}

func comment(name, body string, replies ...*Comment) *Comment {
	c := &Comment{Body: body, Replies: replies}
	c.Name = name
	return c
}

func defaultDiscriminatorOf(v any) string {
	return defaultDiscriminator(reflect.TypeOf(v))
}

func writeFile(path, content string) error {
	return os.WriteFile(path, []byte(content), 0o600)
}
