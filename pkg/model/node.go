package model

// NodeClass classifies an entry in the browsed object model.
type NodeClass uint8

const (
	ClassLogicalDevice NodeClass = iota
	ClassLogicalNode
	ClassDataObject
	ClassDataAttribute
	ClassDataSet
	ClassURCB
	ClassBRCB
)

// String returns the class name.
func (c NodeClass) String() string {
	switch c {
	case ClassLogicalDevice:
		return "LD"
	case ClassLogicalNode:
		return "LN"
	case ClassDataObject:
		return "DO"
	case ClassDataAttribute:
		return "DA"
	case ClassDataSet:
		return "DataSet"
	case ClassURCB:
		return "URCB"
	case ClassBRCB:
		return "BRCB"
	default:
		return "Unknown"
	}
}

// Node is one level of a browse result. Attribute trees link children
// through Children; list results leave it nil.
type Node struct {
	Name      string
	Reference ObjectReference
	Class     NodeClass
	Children  []*Node

	// Err records why this node's children could not be listed. The node
	// itself is still valid.
	Err error
}

// IsLeaf reports whether the node has no children.
func (n *Node) IsLeaf() bool {
	return len(n.Children) == 0
}

// Walk visits the tree depth-first, parents before children, in server
// order. It stops at the first error returned by fn.
func (n *Node) Walk(fn func(node *Node, depth int) error) error {
	type frame struct {
		node  *Node
		depth int
	}
	stack := []frame{{n, 0}}
	for len(stack) > 0 {
		top := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if err := fn(top.node, top.depth); err != nil {
			return err
		}
		for i := len(top.node.Children) - 1; i >= 0; i-- {
			stack = append(stack, frame{top.node.Children[i], top.depth + 1})
		}
	}
	return nil
}

// Find returns the node with the given reference, or nil.
func (n *Node) Find(ref ObjectReference) *Node {
	var found *Node
	_ = n.Walk(func(node *Node, _ int) error {
		if node.Reference == ref {
			found = node
			return errStopWalk
		}
		return nil
	})
	return found
}

// Count returns the number of nodes in the tree, including n.
func (n *Node) Count() int {
	count := 0
	_ = n.Walk(func(*Node, int) error {
		count++
		return nil
	})
	return count
}

var errStopWalk = errorString("stop walk")

type errorString string

func (e errorString) Error() string { return string(e) }

// ServerModel is the result of a full device discovery.
type ServerModel struct {
	LogicalDevices []*LogicalDevice
}

// LogicalDevice groups the logical nodes of one device namespace.
type LogicalDevice struct {
	Name         string
	LogicalNodes []*LogicalNode
}

// LogicalNode holds everything discovered below one logical node.
type LogicalNode struct {
	Name        string
	Reference   ObjectReference
	DataObjects []*Node
	DataSets    []*DataSet
	URCBs       []ObjectReference
	BRCBs       []ObjectReference
}
