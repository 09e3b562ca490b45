// Copyright (c) 2017, Daniel Martí <mvdan@mvdan.cc>
// See LICENSE for licensing information

// cjsh is an interactive POSIX-flavored shell built on top of [interp].
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"golang.org/x/term"

	"github.com/CadenFinley/cjsh/interp"
	"github.com/CadenFinley/cjsh/syntax"
)

// cliArgs is the result of hand-parsing os.Args the way a POSIX shell does:
// intermixed single-letter flags, "-o name"/"+o name" long options, an
// optional "-c command", and a trailing "--" before the script/positional
// arguments. The standard "flag" package doesn't fit this shape, since "-o"
// takes a following word and flags may appear interleaved with operands.
type cliArgs struct {
	command     string
	haveCommand bool
	login       bool
	interactive bool
	forceNonInt bool
	setArgs     []string // forwarded to [interp.Params]
	operands    []string // script path (+ its args) or, with -c, $0 and args
}

func parseArgs(argv []string) (cliArgs, error) {
	var a cliArgs
	i := 0
	for ; i < len(argv); i++ {
		arg := argv[i]
		switch {
		case arg == "--":
			i++
			goto operands
		case arg == "-":
			goto operands
		case arg == "-c":
			i++
			if i >= len(argv) {
				return a, fmt.Errorf("-c: option requires an argument")
			}
			a.command = argv[i]
			a.haveCommand = true
			i++
			goto operands
		case arg == "-l" || arg == "--login":
			a.login = true
		case arg == "-i":
			a.interactive = true
		case arg == "+i":
			a.forceNonInt = true
		case arg == "-o" || arg == "+o":
			i++
			if i >= len(argv) {
				return a, fmt.Errorf("%s: option requires an argument", arg)
			}
			a.setArgs = append(a.setArgs, arg, argv[i])
		case len(arg) > 1 && (arg[0] == '-' || arg[0] == '+'):
			a.setArgs = append(a.setArgs, arg)
		default:
			goto operands
		}
	}
operands:
	a.operands = argv[i:]
	return a, nil
}

func main() {
	args, err := parseArgs(os.Args[1:])
	if err == nil {
		err = runAll(args)
	}
	var es interp.ExitStatus
	if errors.As(err, &es) {
		os.Exit(int(es))
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "cjsh: %v\n", err)
		os.Exit(1)
	}
}

func runAll(args cliArgs) error {
	ctx, _ := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	interactive := !args.haveCommand && len(args.operands) == 0 && term.IsTerminal(int(os.Stdin.Fd()))
	if args.interactive {
		interactive = true
	}
	if args.forceNonInt {
		interactive = false
	}

	r, err := interp.New(interp.Interactive(interactive), interp.StdIO(os.Stdin, os.Stdout, os.Stderr))
	if err != nil {
		return err
	}
	// args.login is accepted for compatibility with scripts that invoke
	// "cjsh -l"; profile-file sourcing for login shells is not implemented.
	if len(args.setArgs) > 0 {
		if err := interp.Params(args.setArgs...)(r); err != nil {
			return err
		}
	}

	if args.haveCommand {
		return run(ctx, r, strings.NewReader(args.command), "")
	}
	if len(args.operands) == 0 {
		if interactive {
			return runInteractive(ctx, r, os.Stdin, os.Stdout, os.Stderr)
		}
		return run(ctx, r, os.Stdin, "")
	}
	for _, path := range args.operands {
		if err := runPath(ctx, r, path); err != nil {
			return err
		}
	}
	return nil
}

func run(ctx context.Context, r *interp.Runner, reader io.Reader, name string) error {
	src, err := io.ReadAll(reader)
	if err != nil {
		return err
	}
	prog, err := syntax.Parse(src, name, 0)
	if err != nil {
		return err
	}
	r.Reset()
	return r.Run(ctx, prog)
}

func runPath(ctx context.Context, r *interp.Runner, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return run(ctx, r, f, path)
}

// incompleteInput reports whether err is a parse failure caused by running
// out of source before a quote, heredoc, or compound command was closed,
// which a REPL should treat as "give me another line" rather than a real
// syntax error.
func incompleteInput(err error) bool {
	var perr *syntax.ParseError
	if !errors.As(err, &perr) {
		return false
	}
	return strings.Contains(perr.Text, "reached EOF")
}

// runInteractive drives the read-eval-print loop a line at a time, growing
// the buffered source and re-parsing whenever the parser reports the input
// so far is incomplete (an open quote, heredoc, or "if"/"for"/... awaiting
// its closing keyword).
func runInteractive(ctx context.Context, r *interp.Runner, stdin io.Reader, stdout, stderr io.Writer) error {
	lines := bufio.NewReader(stdin)
	var buf strings.Builder
	fmt.Fprintf(stdout, "$ ")
	for {
		line, err := lines.ReadString('\n')
		buf.WriteString(line)
		atEOF := err != nil

		prog, perr := syntax.Parse([]byte(buf.String()), "", 0)
		if perr != nil {
			if incompleteInput(perr) && !atEOF {
				fmt.Fprintf(stdout, "> ")
				continue
			}
			if buf.Len() == 0 {
				return nil
			}
			if atEOF && err != io.EOF {
				return err
			}
			return perr
		}
		buf.Reset()

		if atEOF && buf.Len() == 0 && len(prog.Stmts) == 0 {
			return nil
		}

		for _, stmt := range prog.Stmts {
			runErr := r.Run(ctx, stmt)
			if r.Exited() {
				return runErr
			}
		}
		r.PollJobs()
		fmt.Fprintf(stdout, "$ ")
	}
}
