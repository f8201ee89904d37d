// Package xmlfeed parses the upstream XML document into a generic node tree and
// transcribes feed items into element maps.
package xmlfeed

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/Guizzs26/go-feed-sync/pkg/encoding"
)

var (
	// ErrNoDocument is returned when the input holds no root element
	ErrNoDocument = errors.New("no xml root element found")

	declaredEncoding = regexp.MustCompile(`(?i)^\s*<\?xml[^>]*encoding\s*=\s*["']([^"']+)["']`)
)

// Node is one element of the parsed document
type Node struct {
	Name     string
	Attrs    []xml.Attr
	Text     string
	Children []*Node
}

// Attr returns the value of the attribute with the given local name
func (n *Node) Attr(name string) (string, bool) {
	for _, a := range n.Attrs {
		if a.Name.Local == name {
			return a.Value, true
		}
	}
	return "", false
}

// Child returns the first direct child with the given name
func (n *Node) Child(name string) *Node {
	for _, c := range n.Children {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// Parse builds the node tree for a whole feed document
func Parse(data []byte) (*Node, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, ErrNoDocument
	}

	var reader io.Reader
	if m := declaredEncoding.FindSubmatch(data); m != nil && !isUTF8Label(string(m[1])) {
		// the decoder converts through CharsetReader
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(encoding.EnsureUTF8(data))
	}

	dec := xml.NewDecoder(reader)
	dec.CharsetReader = encoding.CharsetReader
	dec.Entity = xml.HTMLEntity

	var (
		root  *Node
		stack []*Node
	)

	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("xml syntax error: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			node := &Node{Name: t.Name.Local, Attrs: copyAttrs(t.Attr)}
			if len(stack) == 0 {
				if root != nil {
					return nil, fmt.Errorf("xml syntax error: multiple root elements (%s)", t.Name.Local)
				}
				root = node
			} else {
				parent := stack[len(stack)-1]
				parent.Children = append(parent.Children, node)
			}
			stack = append(stack, node)
		case xml.CharData:
			if len(stack) > 0 {
				stack[len(stack)-1].Text += string(t)
			}
		case xml.EndElement:
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		}
	}

	if root == nil {
		return nil, ErrNoDocument
	}
	if len(stack) != 0 {
		return nil, fmt.Errorf("xml syntax error: unclosed element %s", stack[len(stack)-1].Name)
	}
	return root, nil
}

// Items returns the feed items: every node named itemName at the shallowest depth where
// such nodes occur. An empty itemName selects the root's direct children.
func Items(root *Node, itemName string) []*Node {
	if root == nil {
		return nil
	}
	if itemName == "" {
		return root.Children
	}
	if root.Name == itemName {
		return []*Node{root}
	}

	level := root.Children
	for len(level) > 0 {
		var found, next []*Node
		for _, n := range level {
			if n.Name == itemName {
				found = append(found, n)
				continue
			}
			next = append(next, n.Children...)
		}
		if len(found) > 0 {
			return found
		}
		level = next
	}
	return nil
}

func copyAttrs(attrs []xml.Attr) []xml.Attr {
	if len(attrs) == 0 {
		return nil
	}
	out := make([]xml.Attr, 0, len(attrs))
	for _, a := range attrs {
		if a.Name.Space == "xmlns" || a.Name.Local == "xmlns" {
			continue
		}
		out = append(out, a)
	}
	return out
}

func isUTF8Label(label string) bool {
	l := strings.ToLower(strings.TrimSpace(label))
	return l == "utf-8" || l == "utf8"
}
