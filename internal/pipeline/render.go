package pipeline

import (
	"fmt"
	"path/filepath"
	"strings"
)

// consumer is a node that reads its stdin from a FIFO, emitted as a
// backgrounded shell command that must finish before `wait` returns.
type consumer struct {
	fifo string
	node *Node
}

// Script is a rendered pipe-builder tree, ready to be run as a shell
// script.
type Script struct {
	Text string
	Fifos []string
}

// Render assembles the shell script for a root node's tree. fifoDir is
// the directory FIFOs are created in (ordinarily the per-segment or
// per-backup tempdir).
func Render(root *Node, fifoDir string) (Script, error) {
	if root == nil {
		return Script{}, fmt.Errorf("pipeline: nil root node")
	}

	var consumers []consumer
	fifoCounter := 0
	nextFifo := func() string {
		path := filepath.Join(fifoDir, fmt.Sprintf("fifo-%d", fifoCounter))
		fifoCounter++
		return path
	}

	// Rule 1: depth-first, replace every stdout_programs/stderr_programs
	// child with a FIFO entry on the corresponding *_files list.
	var resolvePrograms func(n *Node)
	resolvePrograms = func(n *Node) {
		for _, child := range n.StdoutPrograms {
			fifo := nextFifo()
			n.StdoutFiles = append(n.StdoutFiles, fifo)
			consumers = append(consumers, consumer{fifo: fifo, node: child})
			resolvePrograms(child)
		}
		n.StdoutPrograms = nil

		for _, child := range n.StderrPrograms {
			fifo := nextFifo()
			n.StderrFiles = append(n.StderrFiles, fifo)
			consumers = append(consumers, consumer{fifo: fifo, node: child})
			resolvePrograms(child)
		}
		n.StderrPrograms = nil
	}
	resolvePrograms(root)

	// Rule 2: a node with >=2 stderr files can't fan out stderr directly
	// in POSIX sh (no > process substitution in the default FIFO
	// mode), so synthesize an auxiliary tee node reading from a FIFO fed
	// by the node's single stderr redirection.
	allNodes := []*Node{root}
	for _, c := range consumers {
		allNodes = append(allNodes, c.node)
	}
	for _, n := range allNodes {
		if len(n.StderrFiles) < 2 {
			continue
		}
		files := n.StderrFiles
		aux := &Node{
			Argv: teeArgv(n.WriteMode, files[:len(files)-1]),
			WriteMode: n.WriteMode,
		}
		aux.StdoutFiles = []string{files[len(files)-1]}

		fifo := nextFifo()
		n.StderrFiles = []string{fifo}
		consumers = append(consumers, consumer{fifo: fifo, node: aux})
	}

	var allFifos []string
	for _, c := range consumers {
		allFifos = append(allFifos, c.fifo)
	}

	var b strings.Builder
	if len(allFifos) > 0 {
		fmt.Fprintf(&b, "mkfifo %s\n", strings.Join(allFifos, " "))
	}
	for _, c := range consumers {
		b.WriteString(commandLine(c.node, c.fifo))
		b.WriteString(" &\n")
	}
	b.WriteString(commandLine(root, ""))
	b.WriteString("\n")
	b.WriteString("wait\n")
	if len(allFifos) > 0 {
		fmt.Fprintf(&b, "rm -f %s\n", strings.Join(allFifos, " "))
	}

	return Script{Text: b.String(), Fifos: allFifos}, nil
}

// commandLine emits one node's shell command per rule 3.
func commandLine(n *Node, stdinFifo string) string {
	var b strings.Builder
	b.WriteString(shellJoin(n.Argv))

	if stdinFifo != "" {
		fmt.Fprintf(&b, " < %s", shellQuote(stdinFifo))
	}

	if len(n.StderrFiles) == 1 {
		op := "2>"
		if n.WriteMode == Append {
			op = "2>>"
		}
		fmt.Fprintf(&b, " %s %s", op, shellQuote(n.StderrFiles[0]))
	}

	switch len(n.StdoutFiles) {
		case 0:
		// nothing
		case 1:
		op := ">"
		if n.WriteMode == Append {
			op = ">>"
		}
		fmt.Fprintf(&b, " %s %s", op, shellQuote(n.StdoutFiles[0]))
		default:
		teeFlag := ""
		if n.WriteMode == Append {
			teeFlag = "-a "
		}
		targets := n.StdoutFiles
		last := targets[len(targets)-1]
		others := make([]string, len(targets)-1)
		for i, f := range targets[:len(targets)-1] {
			others[i] = shellQuote(f)
		}
		fmt.Fprintf(&b, " | tee %s%s > %s", teeFlag, strings.Join(others, " "), shellQuote(last))
	}

	return b.String()
}

// teeArgv builds the argv for the auxiliary stderr fan-out node: tee
// writing append-or-overwrite into every file but the last, which
// commandLine wires as the node's own stdout redirection target, the same
// way commandLine's own "many files" stdout case uses tee.
func teeArgv(mode WriteMode, files []string) []string {
	argv := []string{"tee"}
	if mode == Append {
		argv = append(argv, "-a")
	}
	return append(argv, files...)
}

// shellJoin renders argv as one command: words made only of letters,
// digits and - _ / = : , + @ % are emitted bare, every other word goes
// through shellQuote.
func shellJoin(argv []string) string {
	parts := make([]string, len(argv))
	for i, a := range argv {
		if a != "" && strings.Trim(a, "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789-_/=:,+@%") == "" {
			parts[i] = a
		} else {
			parts[i] = shellQuote(a)
		}
	}
	return strings.Join(parts, " ")
}

// shellQuote wraps s in single quotes, escaping any embedded single quote
// as the standard '\'' sequence.
func shellQuote(s string) string {
	if s == "" {
		return "''"
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
