package tree

// Kind identifies which variant a Value holds.
type Kind int

const (
	KindScalar Kind = iota
	KindNode
	KindList
)

func (k Kind) String() string {
	switch k {
	case KindScalar:
		return "scalar"
	case KindNode:
		return "node"
	case KindList:
		return "list"
	default:
		return "unknown"
	}
}

// Value is the tagged variant stored under an attribute name: a scalar
// string, a nested node, or a list of values when a name repeats.
type Value struct {
	kind   Kind
	scalar string
	node   *Node
	items  []Value
}

// Scalar creates a scalar value.
func Scalar(s string) Value {
	return Value{kind: KindScalar, scalar: s}
}

// NodeValue creates a value holding a nested node.
func NodeValue(n *Node) Value {
	return Value{kind: KindNode, node: n}
}

// List creates a list value.
func List(items ...Value) Value {
	return Value{kind: KindList, items: items}
}

// Kind returns the variant held by v.
func (v Value) Kind() Kind {
	return v.kind
}

// Scalar returns the string when v is a scalar. A node with a text payload
// also yields its text, so a field reads the same whether the document
// wrote it as an attribute or as an element.
func (v Value) Scalar() (string, bool) {
	switch v.kind {
	case KindScalar:
		return v.scalar, true
	case KindNode:
		if v.node != nil && v.node.text != "" {
			return v.node.text, true
		}
	}
	return "", false
}

// Node returns the nested node when v holds one.
func (v Value) Node() (*Node, bool) {
	if v.kind == KindNode && v.node != nil {
		return v.node, true
	}
	return nil, false
}

// Items returns the list elements. A non-list value is returned as a
// one-element list so callers can iterate repeated and single records alike.
func (v Value) Items() []Value {
	if v.kind == KindList {
		return v.items
	}
	return []Value{v}
}

// Nodes returns every item of v that is a node.
func (v Value) Nodes() []*Node {
	var nodes []*Node
	for _, item := range v.Items() {
		if n, ok := item.Node(); ok {
			nodes = append(nodes, n)
		}
	}
	return nodes
}

// merge appends next to v, turning v into a list on the first collision.
func (v Value) merge(next Value) Value {
	if v.kind == KindList {
		items := make([]Value, len(v.items), len(v.items)+1)
		copy(items, v.items)
		return List(append(items, next)...)
	}
	return List(v, next)
}
