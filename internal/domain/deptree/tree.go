package deptree

// Status is the resolution state of a node
type Status int

const (
	// StatusUnresolved nodes are waiting to be claimed
	StatusUnresolved Status = iota
	// StatusProcessing nodes are claimed and being inspected
	StatusProcessing
	// StatusResolved is terminal
	StatusResolved
)

// String returns the string representation of the status
func (s Status) String() string {
	switch s {
	case StatusUnresolved:
		return "unresolved"
	case StatusProcessing:
		return "processing"
	case StatusResolved:
		return "resolved"
	default:
		return "unknown"
	}
}

// NodeID indexes a node in its tree's node table
type NodeID int

// NoParent is the parent of the root node
const NoParent NodeID = -1

// Node is one module in the dependency tree
type Node struct {
	id       NodeID
	name     string
	status   Status
	parent   NodeID
	children []NodeID
	tree     *Tree
}

// Tree is a name-deduplicated dependency tree
type Tree struct {
	nodes  []*Node
	byName map[string]NodeID
}

// New creates a tree rooted at the entry module
func New(root string) *Tree {
	t := &Tree{byName: make(map[string]NodeID)}
	t.newNode(root, NoParent)
	return t
}

// Root returns the entry module node
func (t *Tree) Root() *Node {
	return t.nodes[0]
}

// Len returns the number of distinct modules in the tree
func (t *Tree) Len() int {
	return len(t.nodes)
}

// Node returns the node stored under id
func (t *Tree) Node(id NodeID) (*Node, bool) {
	if id < 0 || int(id) >= len(t.nodes) {
		return nil, false
	}
	return t.nodes[id], true
}

// AddDependency returns the existing node for name anywhere in the tree, or
// creates an Unresolved child of parent.
func (t *Tree) AddDependency(parent *Node, name string) *Node {
	if existing, ok := t.FindDependency(name); ok {
		return existing
	}
	if parent == nil || parent.tree != t {
		parent = t.Root()
	}
	child := t.newNode(name, parent.id)
	parent.children = append(parent.children, child.id)
	return child
}

// FindDependency searches the tree for name
func (t *Tree) FindDependency(name string) (*Node, bool) {
	id, ok := t.byName[name]
	if !ok {
		return nil, false
	}
	return t.nodes[id], true
}

// TakeNextUnresolved claims the first Unresolved node in pre-order and marks
// it Processing. It returns false when no such node exists.
func (t *Tree) TakeNextUnresolved() (*Node, bool) {
	var claimed *Node
	t.walk(func(n *Node) bool {
		if n.status != StatusUnresolved {
			return false
		}
		n.status = StatusProcessing
		claimed = n
		return true
	})
	return claimed, claimed != nil
}

// AllResolved reports whether every node has reached StatusResolved
func (t *Tree) AllResolved() bool {
	pending := false
	t.walk(func(n *Node) bool {
		pending = n.status != StatusResolved
		return pending
	})
	return !pending
}

// ToFlatList returns every distinct module name in pre-order
func (t *Tree) ToFlatList() []string {
	names := make([]string, 0, len(t.nodes))
	t.walk(func(n *Node) bool {
		names = append(names, n.name)
		return false
	})
	return names
}

// Count returns the number of nodes in each status
func (t *Tree) Count() map[Status]int {
	counts := make(map[Status]int, 3)
	for _, n := range t.nodes {
		counts[n.status]++
	}
	return counts
}

// walk visits nodes pre-order until visit returns true
func (t *Tree) walk(visit func(*Node) bool) bool {
	var rec func(id NodeID) bool
	rec = func(id NodeID) bool {
		n := t.nodes[id]
		if visit(n) {
			return true
		}
		for _, child := range n.children {
			if rec(child) {
				return true
			}
		}
		return false
	}
	return rec(0)
}

func (t *Tree) newNode(name string, parent NodeID) *Node {
	n := &Node{
		id:     NodeID(len(t.nodes)),
		name:   name,
		status: StatusUnresolved,
		parent: parent,
		tree:   t,
	}
	t.nodes = append(t.nodes, n)
	t.byName[name] = n.id
	return n
}

// ID returns the node's index in its tree
func (n *Node) ID() NodeID { return n.id }

// Name returns the module name
func (n *Node) Name() string { return n.name }

// Status returns the current resolution status
func (n *Node) Status() Status { return n.status }

// Parent returns the node this one was first discovered under
func (n *Node) Parent() (*Node, bool) {
	if n.parent == NoParent {
		return nil, false
	}
	return n.tree.Node(n.parent)
}

// Children returns the direct dependencies first discovered under this node
func (n *Node) Children() []*Node {
	out := make([]*Node, 0, len(n.children))
	for _, id := range n.children {
		out = append(out, n.tree.nodes[id])
	}
	return out
}

// AddDependency adds name under this node, reusing any existing node
func (n *Node) AddDependency(name string) *Node {
	return n.tree.AddDependency(n, name)
}

// MarkProcessing claims the node. Resolved is terminal and is left unchanged.
func (n *Node) MarkProcessing() {
	if n.status == StatusResolved {
		return
	}
	n.status = StatusProcessing
}

// MarkResolved moves the node to its terminal state
func (n *Node) MarkResolved() {
	n.status = StatusResolved
}
