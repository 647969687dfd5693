package localstore

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/tidwall/gjson"
	"golang.org/x/net/html"

	"github.com/alexjbarnes/bookmark-sync/internal/tree"
)

// ImportNetscape reads a Netscape bookmark file (the export format of
// every major browser) and inserts its contents under parentID. It
// returns the number of imported nodes.
func (s *Store) ImportNetscape(ctx context.Context, r io.Reader, parentID string) (int, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return 0, fmt.Errorf("parsing bookmark file: %w", err)
	}

	dl := findElement(doc, "dl")
	if dl == nil {
		return 0, fmt.Errorf("parsing bookmark file: no list found")
	}

	imported := 0
	if err := s.importNetscapeList(ctx, dl, parentID, &imported); err != nil {
		return imported, err
	}

	return imported, nil
}

// importNetscapeList walks one DL list. Each DT holds either an A
// (a bookmark) or an H3 naming a folder whose children are in the DL
// that follows, either nested in the DT or as the next sibling.
func (s *Store) importNetscapeList(ctx context.Context, dl *html.Node, parentID string, imported *int) error {
	pendingFolder := ""

	for c := dl.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode {
			continue
		}

		switch c.Data {
		case "dt":
			var err error

			pendingFolder, err = s.importNetscapeEntry(ctx, c, parentID, imported)
			if err != nil {
				return err
			}

		case "dl":
			// Sublist emitted as a sibling of the folder's DT.
			target := parentID
			if pendingFolder != "" {
				target = pendingFolder
				pendingFolder = ""
			}

			if err := s.importNetscapeList(ctx, c, target, imported); err != nil {
				return err
			}
		}
	}

	return nil
}

// importNetscapeEntry imports one DT. When the DT names a folder but
// its child list follows as a sibling, the new folder id is returned so
// the caller can attach that list.
func (s *Store) importNetscapeEntry(ctx context.Context, dt *html.Node, parentID string, imported *int) (string, error) {
	folderID := ""

	for c := dt.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode {
			continue
		}

		switch c.Data {
		case "h3":
			id, err := s.CreateFolder(ctx, parentID, textOf(c))
			if err != nil {
				return "", err
			}

			*imported++
			folderID = id

		case "a":
			url := attrOf(c, "href")
			if url == "" {
				continue
			}

			_, err := s.CreateBookmark(ctx, &tree.Bookmark{
				ParentID: parentID,
				Title:    textOf(c),
				URL:      url,
			})
			if err != nil {
				return "", err
			}

			*imported++

		case "dl":
			target := parentID
			if folderID != "" {
				target = folderID
			}

			if err := s.importNetscapeList(ctx, c, target, imported); err != nil {
				return "", err
			}

			folderID = ""
		}
	}

	return folderID, nil
}

func findElement(n *html.Node, name string) *html.Node {
	if n.Type == html.ElementNode && n.Data == name {
		return n
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findElement(c, name); found != nil {
			return found
		}
	}

	return nil
}

// ImportChrome reads a Chrome/Chromium Bookmarks JSON file and inserts
// the contents of every root (bookmark bar, other, synced) under
// parentID. It returns the number of imported nodes.
func (s *Store) ImportChrome(ctx context.Context, data []byte, parentID string) (int, error) {
	roots := gjson.GetBytes(data, "roots")
	if !roots.Exists() {
		return 0, fmt.Errorf("parsing chrome bookmarks: no roots object")
	}

	imported := 0

	var outerErr error

	roots.ForEach(func(_, root gjson.Result) bool {
		if root.Get("type").String() != "folder" {
			return true
		}

		outerErr = s.importChromeChildren(ctx, root.Get("children"), parentID, &imported)

		return outerErr == nil
	})

	return imported, outerErr
}

func (s *Store) importChromeChildren(ctx context.Context, children gjson.Result, parentID string, imported *int) error {
	var outerErr error

	children.ForEach(func(_, child gjson.Result) bool {
		switch child.Get("type").String() {
		case "url":
			_, err := s.CreateBookmark(ctx, &tree.Bookmark{
				ParentID: parentID,
				Title:    child.Get("name").String(),
				URL:      child.Get("url").String(),
			})
			if err != nil {
				outerErr = err
				return false
			}

			*imported++

		case "folder":
			id, err := s.CreateFolder(ctx, parentID, child.Get("name").String())
			if err != nil {
				outerErr = err
				return false
			}

			*imported++

			outerErr = s.importChromeChildren(ctx, child.Get("children"), id, imported)
			if outerErr != nil {
				return false
			}
		}

		return true
	})

	return outerErr
}

func textOf(n *html.Node) string {
	var sb strings.Builder

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.TextNode {
			sb.WriteString(c.Data)
		}
	}

	return strings.TrimSpace(sb.String())
}

func attrOf(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, key) {
			return a.Val
		}
	}

	return ""
}
