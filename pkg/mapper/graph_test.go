package mapper

import (
	"reflect"
	"slices"
	"strings"
	"testing"

	"github.com/i5heu/ouroboros-ocm/pkg/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddNode_Layout(t *testing.T) {
	_, _, n, article := setupArticle(t)

	assert.Equal(t, "Go_Mapping", article.Name)
	assert.Equal(t, "/Go_Mapping", article.Path)
	assert.Equal(t, "", article.ID, "articles are not referenceable")
	assert.Equal(t, defaultDiscriminator(reflect.TypeOf(Article{})), stringProp(t, n, DefaultClassNameProperty))
	assert.Equal(t, []string{"Lead", "Comments", "Labels", "Ranks", "Cover", "Files"}, childNames(t, n))

	lead, err := n.Node("Lead/lead")
	require.NoError(t, err)
	assert.Equal(t, "first!", stringProp(t, lead, "Body"))
	assert.True(t, lead.HasNode("Replies/reply"))
	assert.Equal(t, "/Go_Mapping/Lead/lead", article.Lead.Path)

	comments, err := n.Node("Comments")
	require.NoError(t, err)
	assert.Equal(t, repository.NodeTypeUnstructured, comments.PrimaryType())
	assert.Equal(t, []string{"A", "B", "C"}, childNames(t, comments))

	labels, err := n.Node("Labels")
	require.NoError(t, err)
	assert.Equal(t, "1", stringProp(t, labels, "a"))
	assert.Equal(t, "2", stringProp(t, labels, "b"))
	ranks, err := n.Node("Ranks")
	require.NoError(t, err)
	p, err := ranks.Property("x")
	require.NoError(t, err)
	assert.True(t, p.IsMultiple())
	assert.Equal(t, repository.TypeLong, p.Type())

	p, err = n.Property("Author")
	require.NoError(t, err)
	assert.Equal(t, repository.TypeReference, p.Type())
	assert.Equal(t, article.Author.ID, stringProp(t, n, "Author"))
	assert.False(t, n.HasProperty("Reviewers"))

	folder, err := n.Node("Cover")
	require.NoError(t, err)
	assert.Equal(t, repository.NodeTypeFolder, folder.PrimaryType())
	file, err := folder.Node("cover.txt")
	require.NoError(t, err)
	assert.Equal(t, repository.NodeTypeFile, file.PrimaryType())
	assert.Equal(t, "front", stringProp(t, file, "Caption"))
	assert.False(t, file.HasProperty(DefaultClassNameProperty))
	content, err := file.Node(repository.NodeContent)
	require.NoError(t, err)
	assert.Equal(t, repository.NodeTypeResource, content.PrimaryType())
	assert.Equal(t, "text/plain", stringProp(t, content, repository.PropertyMimeType))
	assert.Equal(t, "utf-8", stringProp(t, content, repository.PropertyEncoding))
	assert.Equal(t, "cover", stringProp(t, content, repository.PropertyData))
	assert.Equal(t, "/Go_Mapping/Cover/cover.txt", article.Cover.Path)

	files, err := n.Node("Files")
	require.NoError(t, err)
	assert.Equal(t, []string{"a.txt", "b.txt"}, childNames(t, files))
	b, err := files.Node("b.txt/jcr:content")
	require.NoError(t, err)
	assert.False(t, b.HasProperty(repository.PropertyEncoding))
}

func TestAddNode_EmptyListCreatesContainer(t *testing.T) {
	m := newTestMapper(t)
	_, root := newTestSession(t)

	n, err := m.AddNode(root, &Article{Name: "empty"}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"Comments"}, childNames(t, n))
}

func TestFromNode_Graph(t *testing.T) {
	m, _, n, article := setupArticle(t)

	out, err := Load[Article](m, n, "*", -1)
	require.NoError(t, err)

	assert.Equal(t, "Go_Mapping", out.Name)
	assert.Equal(t, "Mapping structs", out.Title)
	assert.Equal(t, map[string]string{"lang": "go"}, out.Extra)
	assert.False(t, out.Created.IsZero())

	require.NotNil(t, out.Lead)
	assert.Equal(t, "first!", out.Lead.Body)
	assert.Same(t, out, out.Lead.Article)
	require.Len(t, out.Lead.Replies, 1)
	assert.Equal(t, "second", out.Lead.Replies[0].Body)
	assert.Nil(t, out.Lead.Replies[0].Article, "parent of a reply is a comment")

	require.Len(t, out.Comments, 3)
	for i, name := range []string{"A", "B", "C"} {
		assert.Equal(t, name, out.Comments[i].Name)
		assert.Equal(t, "/Go_Mapping/Comments/"+name, out.Comments[i].Path)
		assert.Same(t, out, out.Comments[i].Article)
	}

	assert.Equal(t, map[string]string{"a": "1", "b": "2"}, out.Labels)
	assert.Equal(t, map[string][]int64{"x": {1, 2}}, out.Ranks)

	require.NotNil(t, out.Author)
	assert.Equal(t, article.Author.ID, out.Author.ID)
	assert.Equal(t, "ann", out.Author.Name)
	assert.Equal(t, "ann@example.com", out.Author.Email)

	require.NotNil(t, out.Editor)
	assert.Equal(t, article.Author.ID, out.Editor.ID)
	assert.Empty(t, out.Editor.Email, "lazy references stay stubs")

	require.NotNil(t, out.Cover)
	assert.Equal(t, "cover.txt", out.Cover.Name)
	assert.Equal(t, "/Go_Mapping/Cover/cover.txt", out.Cover.Path)
	assert.Equal(t, "text/plain", out.Cover.MimeType)
	assert.Equal(t, "utf-8", out.Cover.Encoding)
	assert.True(t, fixedTime.Equal(out.Cover.LastModified))
	assert.Equal(t, "front", out.Cover.Caption)
	require.NotNil(t, out.Cover.Data)
	assert.Equal(t, DataBytes, out.Cover.Data.Kind())
	data, err := out.Cover.Data.Bytes()
	require.NoError(t, err)
	assert.Equal(t, "cover", string(data))

	require.Len(t, out.Files, 2)
	assert.Equal(t, DataStream, out.Files[1].Data.Kind())
	for i := 0; i < 2; i++ {
		data, err = out.Files[1].Data.Bytes()
		require.NoError(t, err)
		assert.Equal(t, "beta", string(data))
	}
}

func TestFromNode_DepthBoundary(t *testing.T) {
	m, _, n, article := setupArticle(t)

	out, err := Load[Article](m, n, "*", 0)
	require.NoError(t, err)
	assert.Equal(t, "Mapping structs", out.Title)
	assert.Nil(t, out.Lead)
	assert.Nil(t, out.Comments)
	assert.Nil(t, out.Labels)
	assert.Nil(t, out.Cover)
	assert.Nil(t, out.Files)
	require.NotNil(t, out.Author)
	assert.Equal(t, article.Author.ID, out.Author.ID)
	assert.Empty(t, out.Author.Name, "beyond the depth budget references are stubs")

	out, err = Load[Article](m, n, "*", 1)
	require.NoError(t, err)
	require.NotNil(t, out.Lead)
	assert.Nil(t, out.Lead.Replies)
	require.Len(t, out.Comments, 3)
	assert.Equal(t, "ann@example.com", out.Author.Email)
	require.NotNil(t, out.Cover)
	assert.Equal(t, "front", out.Cover.Caption)

	out, err = Load[Article](m, n, "*", 2)
	require.NoError(t, err)
	require.Len(t, out.Lead.Replies, 1)
	assert.Nil(t, out.Lead.Replies[0].Replies)
}

func TestFromNode_FilterExclusion(t *testing.T) {
	m, _, n, _ := setupArticle(t)

	out, err := Load[Article](m, n, "-Title,Comments", -1)
	require.NoError(t, err)
	assert.Empty(t, out.Title)
	assert.Nil(t, out.Comments)
	assert.NotNil(t, out.Lead)
	assert.Equal(t, "Go_Mapping", out.Name)

	out, err = Load[Article](m, n, "Lead", -1)
	require.NoError(t, err)
	assert.Empty(t, out.Title)
	assert.Nil(t, out.Author)
	require.NotNil(t, out.Lead)
	// the filter applies on every level
	assert.Empty(t, out.Lead.Body)

	out, err = Load[Article](m, n, "none", -1)
	require.NoError(t, err)
	assert.Equal(t, "Go_Mapping", out.Name)
	assert.Empty(t, out.Title)
	assert.Nil(t, out.Lead)
}

func TestUpdateNode_FilterExclusion(t *testing.T) {
	m, _, n, article := setupArticle(t)

	article.Title = "changed"
	article.Comments = nil
	article.Labels = map[string]string{"z": "26"}
	_, err := m.UpdateNode(n, article, "-Title,Comments", -1)
	require.NoError(t, err)

	assert.Equal(t, "Mapping structs", stringProp(t, n, "Title"))
	comments, err := n.Node("Comments")
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B", "C"}, childNames(t, comments))
	labels, err := n.Node("Labels")
	require.NoError(t, err)
	assert.Equal(t, "26", stringProp(t, labels, "z"))

	m2 := newTestMapper(t)
	_, root := newTestSession(t)
	sn, err := m2.AddNode(root, &Scalars{Name: "s", Title: "old"}, nil)
	require.NoError(t, err)
	_, err = m2.UpdateNode(sn, &Scalars{Name: "s", Title: "new", Count: 3}, "-title", -1)
	require.NoError(t, err)
	assert.Equal(t, "old", stringProp(t, sn, "title"))
	assert.Equal(t, "3", stringProp(t, sn, "Count"))
}

func TestUpdateNode_Idempotent(t *testing.T) {
	m, s, n, article := setupArticle(t)
	before := subtree(t, n)

	_, err := m.UpdateNode(n, article, "*", -1)
	require.NoError(t, err)
	once := subtree(t, n)
	// containers of empty lists are created on add and dropped on update
	assert.Subset(t, before, once)
	for _, p := range before {
		if !slices.Contains(once, p) {
			assert.True(t, strings.HasSuffix(p, "/Replies"), p)
		}
	}

	name, err := m.UpdateNode(n, article, "*", -1)
	require.NoError(t, err)
	assert.Equal(t, "Go_Mapping", name)
	assert.Equal(t, once, subtree(t, n))
	require.NoError(t, s.Save())
}

func TestUpdateNode_ListReconciliation(t *testing.T) {
	m, _, n, article := setupArticle(t)

	comments, err := n.Node("Comments")
	require.NoError(t, err)
	ids := map[string]string{}
	for _, name := range []string{"A", "C"} {
		c, err := comments.Node(name)
		require.NoError(t, err)
		ids[name] = c.Identifier()
	}
	leadBefore := subtree(t, n)[1:4]

	a, c := article.Comments[0], article.Comments[2]
	a.Body = "a2"
	article.Comments = []*Comment{a, c, comment("D", "d")}
	_, err = m.UpdateNode(n, article, "*", -1)
	require.NoError(t, err)

	assert.Equal(t, []string{"A", "C", "D"}, childNames(t, comments))
	for name, id := range ids {
		c, err := comments.Node(name)
		require.NoError(t, err)
		assert.Equal(t, id, c.Identifier(), "%s must be updated in place", name)
	}
	updated, err := comments.Node("A")
	require.NoError(t, err)
	assert.Equal(t, "a2", stringProp(t, updated, "Body"))
	assert.False(t, comments.HasNode("B"))
	assert.Equal(t, leadBefore, subtree(t, n)[1:4])

	article.Comments = []*Comment{}
	_, err = m.UpdateNode(n, article, "*", -1)
	require.NoError(t, err)
	assert.False(t, n.HasNode("Comments"))

	article.Comments = []*Comment{comment("E", "e")}
	_, err = m.UpdateNode(n, article, "*", -1)
	require.NoError(t, err)
	assert.True(t, n.HasNode("Comments/E"))
}

func TestUpdateNode_DepthBudget(t *testing.T) {
	m, _, n, article := setupArticle(t)

	article.Lead.Body = "edited"
	article.Comments = nil
	_, err := m.UpdateNode(n, article, "*", 0)
	require.NoError(t, err)

	lead, err := n.Node("Lead/lead")
	require.NoError(t, err)
	assert.Equal(t, "first!", stringProp(t, lead, "Body"))
	assert.True(t, n.HasNode("Comments/A"))

	_, err = m.UpdateNode(n, article, "*", 1)
	require.NoError(t, err)
	assert.Equal(t, "edited", stringProp(t, lead, "Body"))
	assert.False(t, n.HasNode("Comments"))
}

func TestUpdateNode_ReferenceWriteAvoidance(t *testing.T) {
	m, s, n, article := setupArticle(t)
	root, err := s.RootNode()
	require.NoError(t, err)
	article.Reviewers = []*Author{article.Author}
	_, err = m.UpdateNode(n, article, "*", -1)
	require.NoError(t, err)

	rec := &recordingNode{wrappedNode: n}
	_, err = m.UpdateNode(rec, article, "*", -1)
	require.NoError(t, err)
	assert.Contains(t, rec.writes, "Title")
	assert.NotContains(t, rec.writes, "Author")
	assert.NotContains(t, rec.writes, "Editor")
	assert.NotContains(t, rec.writes, "Reviewers")

	bob := addAuthor(t, m, root, "bob")
	article.Author = bob
	article.Reviewers = append(article.Reviewers, bob)
	rec.writes = nil
	_, err = m.UpdateNode(rec, article, "*", -1)
	require.NoError(t, err)
	assert.Contains(t, rec.writes, "Author")
	assert.Contains(t, rec.writes, "Reviewers")
	assert.Equal(t, bob.ID, stringProp(t, n, "Author"))

	out, err := Load[Article](m, n, "*", -1)
	require.NoError(t, err)
	require.Len(t, out.Reviewers, 2)
	assert.Equal(t, "ann", out.Reviewers[0].Name)
	assert.Equal(t, "bob", out.Reviewers[1].Name)

	article.Author = nil
	_, err = m.UpdateNode(n, article, "*", -1)
	require.NoError(t, err)
	assert.False(t, n.HasProperty("Author"))
}

func TestUpdateNode_Rename(t *testing.T) {
	m := newTestMapper(t)
	_, root := newTestSession(t)

	in := &Scalars{Name: "first"}
	n, err := m.AddNode(root, in, nil)
	require.NoError(t, err)
	id := n.Identifier()

	in.Name = "second thing"
	name, err := m.UpdateNode(n, in, "*", -1)
	require.NoError(t, err)
	assert.Equal(t, "second_thing", name)
	assert.Equal(t, "second_thing", in.Name)
	assert.Equal(t, "/second_thing", in.Path)
	assert.Equal(t, id, n.Identifier())
	assert.False(t, root.HasNode("first"))
	assert.True(t, root.HasNode("second_thing"))
}

func TestUpdateNode_ChildrenAndMaps(t *testing.T) {
	m, _, n, article := setupArticle(t)

	article.Lead.Body = "edited"
	article.Labels = map[string]string{"c": "3"}
	_, err := m.UpdateNode(n, article, "*", -1)
	require.NoError(t, err)
	lead, err := n.Node("Lead/lead")
	require.NoError(t, err)
	assert.Equal(t, "edited", stringProp(t, lead, "Body"))
	labels, err := n.Node("Labels")
	require.NoError(t, err)
	assert.False(t, labels.HasProperty("a"))
	assert.Equal(t, "3", stringProp(t, labels, "c"))

	article.Lead = comment("other", "replaced")
	_, err = m.UpdateNode(n, article, "*", -1)
	require.NoError(t, err)
	assert.Equal(t, []string{"other"}, childNames(t, mustNode(t, n, "Lead")))

	article.Lead = nil
	article.Labels = nil
	_, err = m.UpdateNode(n, article, "*", -1)
	require.NoError(t, err)
	assert.False(t, n.HasNode("Lead"))
	assert.False(t, n.HasNode("Labels"))

	article.Lead = comment("back", "again")
	_, err = m.UpdateNode(n, article, "*", -1)
	require.NoError(t, err)
	assert.True(t, n.HasNode("Lead/back"))
}

func TestUpdateNode_Files(t *testing.T) {
	m, _, n, article := setupArticle(t)

	article.Cover.Data = BytesData([]byte("new cover"))
	article.Cover.MimeType = "text/markdown"
	article.Cover.Caption = "back"
	article.Files = []*Attachment{attachment("b.txt", "beta2"), attachment("c.txt", "gamma")}
	_, err := m.UpdateNode(n, article, "*", -1)
	require.NoError(t, err)

	assert.Equal(t, []string{"b.txt", "c.txt"}, childNames(t, mustNode(t, n, "Files")))

	out, err := Load[Article](m, n, "*", -1)
	require.NoError(t, err)
	data, err := out.Cover.Data.Bytes()
	require.NoError(t, err)
	assert.Equal(t, "new cover", string(data))
	assert.Equal(t, "text/markdown", out.Cover.MimeType)
	assert.Equal(t, "back", out.Cover.Caption)

	require.Len(t, out.Files, 2)
	data, err = out.Files[0].Data.Bytes()
	require.NoError(t, err)
	assert.Equal(t, "beta2", string(data))

	article.Cover = nil
	article.Files = nil
	_, err = m.UpdateNode(n, article, "*", -1)
	require.NoError(t, err)
	assert.False(t, n.HasNode("Cover"))
	assert.False(t, n.HasNode("Files"))
}

func mustNode(t *testing.T, n repository.Node, rel string) repository.Node {
	t.Helper()
	c, err := n.Node(rel)
	require.NoError(t, err)
	return c
}
