// Copyright (c) 2017, Daniel Martí <mvdan@mvdan.cc>
// See LICENSE for licensing information

package syntax

import (
	"bufio"
	"fmt"
	"io"
)

// Printer renders a single AST node as shell source text. Unlike
// [PrintConfig.Fprint], which only prints a whole *File, a Printer can
// print the fragments the interpreter needs for display purposes: an
// alias's replacement words, or the command currently being traced by
// "set -x".
type Printer struct {
	p *printer
}

// NewPrinter returns a Printer ready to print AST fragments.
func NewPrinter() *Printer {
	return &Printer{p: &printer{bufWriter: bufio.NewWriter(nil)}}
}

// emptyFile stands in for the real *File a fragment was parsed from: the
// printer only consults it to decide where line breaks fall, and a single
// dummy line entry is enough to make that lookup a safe no-op.
var emptyFile = &File{Lines: []int{0}}

// Print writes node to w as shell source. It supports the node kinds the
// interpreter actually needs to render outside of a full program: words,
// commands, assignments, and statements, in addition to whole files.
func (pr *Printer) Print(w io.Writer, node Node) error {
	p := pr.p
	p.reset()
	p.f = emptyFile
	p.bufWriter.Reset(w)

	switch n := node.(type) {
	case *File:
		p.f = n
		p.stmts(n.Stmts)
		p.commentsUpTo(0)
	case *Stmt:
		p.stmt(n)
	case *Assign:
		p.assigns([]*Assign{n})
	case *Word:
		p.word(*n)
	case Word:
		p.word(n)
	case Command:
		p.command(n, nil)
	default:
		return fmt.Errorf("syntax: cannot print node of type %T", node)
	}
	return p.bufWriter.Flush()
}
