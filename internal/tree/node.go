// Package tree parses markup documents into a generic attribute tree whose
// names are folded and looked up case-insensitively.
package tree

import (
	"strings"
	"sync"

	"golang.org/x/text/cases"
)

// Node is one parsed element: folded attribute names mapped to values, plus
// an optional trimmed text payload.
type Node struct {
	attrs map[string]Value
	names []string
	text  string
}

// NewNode creates an empty node.
func NewNode() *Node {
	return &Node{attrs: make(map[string]Value)}
}

// FoldName replaces every character outside [0-9A-Za-z_] with an underscore.
func FoldName(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		switch {
		case r >= '0' && r <= '9', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

// casers holds *cases.Caser values. A Caser keeps state between calls and
// trees are built from several goroutines.
var casers = sync.Pool{
	New: func() any {
		c := cases.Fold()
		return &c
	},
}

func lookupKey(name string) string {
	c := casers.Get().(*cases.Caser)
	key := c.String(FoldName(name))
	casers.Put(c)
	return key
}

// Set inserts a value under name. A name already present, after folding and
// ignoring case, becomes a list holding both values in insertion order.
func (n *Node) Set(name string, v Value) {
	key := lookupKey(name)
	if prev, ok := n.attrs[key]; ok {
		n.attrs[key] = prev.merge(v)
		return
	}
	n.attrs[key] = v
	n.names = append(n.names, FoldName(name))
}

// Get looks up name case-insensitively.
func (n *Node) Get(name string) (Value, bool) {
	if n == nil {
		return Value{}, false
	}
	v, ok := n.attrs[lookupKey(name)]
	return v, ok
}

// String returns the scalar stored under name, or "" when absent.
func (n *Node) String(name string) string {
	v, ok := n.Get(name)
	if !ok {
		return ""
	}
	s, _ := v.Scalar()
	return s
}

// Child returns the first node stored under name.
func (n *Node) Child(name string) (*Node, bool) {
	v, ok := n.Get(name)
	if !ok {
		return nil, false
	}
	nodes := v.Nodes()
	if len(nodes) == 0 {
		return nil, false
	}
	return nodes[0], true
}

// Text returns the trimmed character data of the element.
func (n *Node) Text() string {
	return n.text
}

// Names returns the folded attribute names in first-insertion order.
func (n *Node) Names() []string {
	out := make([]string, len(n.names))
	copy(out, n.names)
	return out
}

// Len returns the number of distinct attribute names.
func (n *Node) Len() int {
	return len(n.attrs)
}
