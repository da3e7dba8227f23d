package tree

import (
	"encoding/xml"
	"fmt"
	"io"
	"strings"

	"github.com/mvp-joe/nodule-extract/internal/errors"
)

// Document is a parsed markup document.
type Document struct {
	top *Node
}

// Root returns the document element. A document element without children
// or attributes is returned as a node holding only its text.
func (d *Document) Root() *Node {
	names := d.top.names
	if len(names) == 0 {
		return NewNode()
	}
	v, _ := d.top.Get(names[0])
	if n, ok := v.Items()[0].Node(); ok {
		return n
	}
	s, _ := v.Items()[0].Scalar()
	root := NewNode()
	root.text = s
	return root
}

// RootName returns the folded name of the document element.
func (d *Document) RootName() string {
	if len(d.top.names) == 0 {
		return ""
	}
	return d.top.names[0]
}

type frame struct {
	name string
	node *Node
	text strings.Builder
}

// Parse reads one markup document in a single depth-first pass. Syntax
// errors, including empty input and unclosed elements, match
// errors.ErrMalformedDocument.
func Parse(r io.Reader) (*Document, error) {
	dec := xml.NewDecoder(r)
	dec.Strict = true

	top := &frame{node: NewNode()}
	stack := []*frame{top}
	seenElement := false

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.WrapParse("xml", "", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			seenElement = true
			f := &frame{name: t.Name.Local, node: NewNode()}
			for _, attr := range t.Attr {
				f.node.Set(attr.Name.Local, Scalar(attr.Value))
			}
			stack = append(stack, f)

		case xml.CharData:
			stack[len(stack)-1].text.Write(t)

		case xml.EndElement:
			f := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			parent := stack[len(stack)-1].node

			text := strings.TrimSpace(f.text.String())
			f.node.text = text
			if f.node.Len() > 0 {
				parent.Set(f.name, NodeValue(f.node))
			} else {
				parent.Set(f.name, Scalar(text))
			}
		}
	}

	if len(stack) != 1 {
		return nil, errors.WrapParse("xml", "", fmt.Errorf("%d unclosed elements", len(stack)-1))
	}
	if !seenElement {
		return nil, errors.WrapParse("xml", "", fmt.Errorf("document has no elements"))
	}
	return &Document{top: top.node}, nil
}
