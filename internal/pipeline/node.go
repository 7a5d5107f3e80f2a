// Package pipeline implements a command-tree-to-shell-script builder: a
// tree whose root is a producer (tar), whose interior nodes are
// compressors and digesters, and whose leaves are files, pipe-to-program
// destinations, or SSH tunnels, rendered into a single POSIX shell script
// using named FIFOs so one producer can feed an arbitrary number of
// heterogeneous consumers.
package pipeline

// WriteMode controls whether a node's output redirections overwrite or
// append to their targets, and is propagated to descendants.
type WriteMode int

const (
	Overwrite WriteMode = iota
	Append
)

// Node is one vertex of the command tree. StdoutPrograms/StderrPrograms
// hold child nodes that
// consume this node's stdout/stderr through a FIFO; Render replaces them
// with FIFO entries on StdoutFiles/StderrFiles during rendering.
type Node struct {
	Argv []string
	StdoutFiles []string
	StdoutPrograms []*Node
	StderrFiles []string
	StderrPrograms []*Node
	WriteMode WriteMode
}

// AddStdoutFile appends a plain file target to a node's stdout.
func (n *Node) AddStdoutFile(path string) *Node {
	n.StdoutFiles = append(n.StdoutFiles, path)
	return n
}

// AddStdoutProgram attaches a child node as a stdout consumer.
func (n *Node) AddStdoutProgram(child *Node) *Node {
	n.StdoutPrograms = append(n.StdoutPrograms, child)
	return n
}

// AddStderrFile appends a plain file target to a node's stderr.
func (n *Node) AddStderrFile(path string) *Node {
	n.StderrFiles = append(n.StderrFiles, path)
	return n
}

// AddStderrProgram attaches a child node as a stderr consumer.
func (n *Node) AddStderrProgram(child *Node) *Node {
	n.StderrPrograms = append(n.StderrPrograms, child)
	return n
}
