package localstore

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alexjbarnes/bookmark-sync/internal/tree"
)

const netscapeExport = `<!DOCTYPE NETSCAPE-Bookmark-file-1>
<META HTTP-EQUIV="Content-Type" CONTENT="text/html; charset=UTF-8">
<TITLE>Bookmarks</TITLE>
<H1>Bookmarks</H1>
<DL><p>
    <DT><A HREF="http://example.com/" ADD_DATE="1700000000">Example</A>
    <DT><H3 ADD_DATE="1700000000">Tools</H3>
    <DL><p>
        <DT><A HREF="http://tool.one/">Tool One</A>
        <DT><A HREF="http://tool.two/?a=1&amp;b=2">Tool Two</A>
        <DT><H3>Nested</H3>
        <DL><p>
            <DT><A HREF="http://deep.example/">Deep</A>
        </DL><p>
    </DL><p>
    <DT><A HREF="http://last.example/">Last</A>
</DL><p>
`

func TestImportNetscape(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	n, err := s.ImportNetscape(ctx, strings.NewReader(netscapeExport), RootID)
	require.NoError(t, err)
	assert.Equal(t, 7, n)

	root, err := s.GetBookmarksTree(ctx)
	require.NoError(t, err)

	require.Len(t, root.Children, 3)
	assert.Equal(t, "Example", tree.Title(root.Children[0]))
	assert.Equal(t, "Last", tree.Title(root.Children[2]))

	tools, ok := root.Children[1].(*tree.Folder)
	require.True(t, ok)
	assert.Equal(t, "Tools", tools.Title)
	require.Len(t, tools.Children, 3)
	assert.Equal(t, "http://tool.two/?a=1&b=2", tools.Children[1].(*tree.Bookmark).URL)

	nested, ok := tools.Children[2].(*tree.Folder)
	require.True(t, ok)
	require.Len(t, nested.Children, 1)
	assert.Equal(t, "Deep", tree.Title(nested.Children[0]))
}

const chromeExport = `{
  "checksum": "ignored",
  "roots": {
    "bookmark_bar": {
      "children": [
        {"name": "Example", "type": "url", "url": "http://example.com/"},
        {
          "name": "Tools",
          "type": "folder",
          "children": [
            {"name": "Tool One", "type": "url", "url": "http://tool.one/"}
          ]
        }
      ],
      "name": "Bookmarks bar",
      "type": "folder"
    },
    "other": {
      "children": [
        {"name": "Other Mark", "type": "url", "url": "http://other.example/"}
      ],
      "name": "Other bookmarks",
      "type": "folder"
    }
  },
  "version": 1
}`

func TestImportChrome(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	n, err := s.ImportChrome(ctx, []byte(chromeExport), RootID)
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	root, err := s.GetBookmarksTree(ctx)
	require.NoError(t, err)

	require.Len(t, root.Children, 3)
	assert.Equal(t, "Example", tree.Title(root.Children[0]))

	tools, ok := root.Children[1].(*tree.Folder)
	require.True(t, ok)
	require.Len(t, tools.Children, 1)
	assert.Equal(t, "http://tool.one/", tools.Children[0].(*tree.Bookmark).URL)

	assert.Equal(t, "Other Mark", tree.Title(root.Children[2]))
}

func TestImportChromeRejectsGarbage(t *testing.T) {
	s := newTestStore(t)

	_, err := s.ImportChrome(context.Background(), []byte(`{"no": "roots"}`), RootID)
	assert.Error(t, err)
}
