// Copyright (c) 2017, Daniel Martí <mvdan@mvdan.cc>
// See LICENSE for licensing information

package interp

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"strconv"

	"golang.org/x/term"

	"github.com/CadenFinley/cjsh/expand"
	"github.com/CadenFinley/cjsh/syntax"
)

// bashTest evaluates a test expression, returning a non-empty string for
// true and an empty string for false. classic is set for the "test"/"["
// builtin, where bare words are never glob patterns and a lone word is its
// own result rather than an implicit "-n" check.
func (r *Runner) bashTest(ctx context.Context, expr syntax.TestExpr, classic bool) string {
	switch x := expr.(type) {
	case *syntax.Word:
		return r.literal(*x)
	case *syntax.ParenTest:
		return r.bashTest(ctx, x.X, classic)
	case *syntax.UnaryTest:
		if x.Op == syntax.TsNot {
			if r.bashTest(ctx, x.X, classic) == "" {
				return "1"
			}
			return ""
		}
		return boolStr(r.unTest(ctx, x.Op, r.bashTest(ctx, x.X, classic)))
	case *syntax.BinaryTest:
		switch x.Op {
		case syntax.AndTest:
			if r.bashTest(ctx, x.X, classic) == "" {
				return ""
			}
			return boolStr(r.bashTest(ctx, x.Y, classic) != "")
		case syntax.OrTest:
			if r.bashTest(ctx, x.X, classic) != "" {
				return "1"
			}
			return boolStr(r.bashTest(ctx, x.Y, classic) != "")
		case syntax.TsMatch, syntax.TsNoMatch:
			if !classic {
				if yw, ok := x.Y.(*syntax.Word); ok {
					str := r.bashTest(ctx, x.X, classic)
					matched := match(r.pattern(*yw), str)
					if x.Op == syntax.TsNoMatch {
						matched = !matched
					}
					return boolStr(matched)
				}
			}
		}
		xs := r.bashTest(ctx, x.X, classic)
		ys := r.bashTest(ctx, x.Y, classic)
		return boolStr(r.binTest(ctx, x.Op, xs, ys))
	}
	return ""
}

func boolStr(b bool) string {
	if b {
		return "1"
	}
	return ""
}

func (r *Runner) binTest(ctx context.Context, op syntax.BinTestOperator, x, y string) bool {
	switch op {
	case syntax.TsNewer:
		i1, err1 := r.stat(ctx, x)
		i2, err2 := r.stat(ctx, y)
		if err1 != nil || err2 != nil {
			return false
		}
		return i1.ModTime().After(i2.ModTime())
	case syntax.TsOlder:
		i1, err1 := r.stat(ctx, x)
		i2, err2 := r.stat(ctx, y)
		if err1 != nil || err2 != nil {
			return false
		}
		return i1.ModTime().Before(i2.ModTime())
	case syntax.TsDevIno:
		i1, err1 := r.stat(ctx, x)
		i2, err2 := r.stat(ctx, y)
		if err1 != nil || err2 != nil {
			return false
		}
		return os.SameFile(i1, i2)
	case syntax.TsEql:
		return atoi(x) == atoi(y)
	case syntax.TsNeq:
		return atoi(x) != atoi(y)
	case syntax.TsLeq:
		return atoi(x) <= atoi(y)
	case syntax.TsGeq:
		return atoi(x) >= atoi(y)
	case syntax.TsLss:
		return atoi(x) < atoi(y)
	case syntax.TsGtr:
		return atoi(x) > atoi(y)
	case syntax.TsReMatch:
		re, err := regexp.Compile(y)
		if err != nil {
			r.exit.code = 2
			return false
		}
		return re.MatchString(x)
	case syntax.TsMatch, syntax.TsMatchAssgn:
		return x == y
	case syntax.TsNoMatch:
		return x != y
	case syntax.TsBefore:
		return x < y
	case syntax.TsAfter:
		return x > y
	default:
		panic(fmt.Sprintf("unhandled binary test op: %v", op))
	}
}

func (r *Runner) unTest(ctx context.Context, op syntax.UnTestOperator, x string) bool {
	switch op {
	case syntax.TsExists:
		_, err := r.stat(ctx, x)
		return err == nil
	case syntax.TsRegFile:
		info, err := r.stat(ctx, x)
		return err == nil && info.Mode().IsRegular()
	case syntax.TsDirect:
		info, err := r.stat(ctx, x)
		return err == nil && info.IsDir()
	case syntax.TsCharSp:
		info, err := r.stat(ctx, x)
		return err == nil && info.Mode()&os.ModeCharDevice != 0
	case syntax.TsBlckSp:
		info, err := r.stat(ctx, x)
		return err == nil && info.Mode()&os.ModeDevice != 0 && info.Mode()&os.ModeCharDevice == 0
	case syntax.TsNmPipe:
		info, err := r.stat(ctx, x)
		return err == nil && info.Mode()&os.ModeNamedPipe != 0
	case syntax.TsSocket:
		info, err := r.stat(ctx, x)
		return err == nil && info.Mode()&os.ModeSocket != 0
	case syntax.TsSmbLink:
		info, err := r.lstat(ctx, x)
		return err == nil && info.Mode()&os.ModeSymlink != 0
	case syntax.TsGIDSet:
		info, err := r.stat(ctx, x)
		return err == nil && info.Mode()&os.ModeSetgid != 0
	case syntax.TsUIDSet:
		info, err := r.stat(ctx, x)
		return err == nil && info.Mode()&os.ModeSetuid != 0
	case syntax.TsRead:
		return r.access(ctx, x, access_R_OK) == nil
	case syntax.TsWrite:
		return r.access(ctx, x, access_W_OK) == nil
	case syntax.TsExec:
		return r.access(ctx, x, access_X_OK) == nil
	case syntax.TsNoEmpty:
		info, err := r.stat(ctx, x)
		return err == nil && info.Size() > 0
	case syntax.TsFdTerm:
		fd, err := strconv.Atoi(x)
		if err != nil {
			return false
		}
		return term.IsTerminal(fd)
	case syntax.TsEmpStr:
		return x == ""
	case syntax.TsNempStr:
		return x != ""
	case syntax.TsOptSet:
		_, status := r.optByName(x, true)
		return status != nil && *status
	case syntax.TsVarSet:
		return r.lookupVar(x).IsSet()
	case syntax.TsRefVar:
		vr := r.lookupVar(x)
		return vr.IsSet() && vr.Kind == expand.NameRef
	case syntax.TsUsrOwn, syntax.TsGrpOwn:
		return r.unTestOwnOrGrp(ctx, op, x)
	case syntax.TsNot:
		return x == ""
	default:
		panic(fmt.Sprintf("unhandled unary test op: %v", op))
	}
}

// testParser builds a syntax.TestExpr out of the already-expanded argument
// list given to the "test"/"[" builtin. Unlike "[[ ]]", whose grammar is
// parsed ahead of time by the syntax package, classic test expressions are
// parsed from a flat, already-evaluated word list, following the same
// "-a"/"-o" precedence POSIX test(1) defines.
type testParser struct {
	rem []string
	pos int
	tok string
	eof bool
	err func(error)
}

func (p *testParser) next() {
	if len(p.rem) == 0 {
		p.tok = ""
		p.eof = true
		return
	}
	p.eof = false
	p.tok = p.rem[0]
	p.rem = p.rem[1:]
	p.pos++
}

func (p *testParser) errorf(format string, a ...any) {
	p.err(fmt.Errorf(format, a...))
}

func (p *testParser) word(val string) *syntax.Word {
	return &syntax.Word{Parts: []syntax.WordPart{&syntax.Lit{Value: val}}}
}

// classicTest parses a full test expression, consuming as many of p.rem's
// remaining words as the grammar requires. fname is used in error messages
// ("test" or "["); withinParen is set while parsing the body of a
// parenthesized sub-expression, where running out of input is also an error.
func (p *testParser) classicTest(fname string, withinParen bool) syntax.TestExpr {
	if p.eof {
		if withinParen {
			p.errorf("%s: argument expected", fname)
		}
		return nil
	}
	return p.orExpr(fname)
}

func (p *testParser) orExpr(fname string) syntax.TestExpr {
	left := p.andExpr(fname)
	for p.tok == "-o" {
		p.next()
		right := p.andExpr(fname)
		left = &syntax.BinaryTest{Op: syntax.OrTest, X: left, Y: right}
	}
	return left
}

func (p *testParser) andExpr(fname string) syntax.TestExpr {
	left := p.notExpr(fname)
	for p.tok == "-a" {
		p.next()
		right := p.notExpr(fname)
		left = &syntax.BinaryTest{Op: syntax.AndTest, X: left, Y: right}
	}
	return left
}

func (p *testParser) notExpr(fname string) syntax.TestExpr {
	if p.tok == "!" {
		p.next()
		return &syntax.UnaryTest{Op: syntax.TsNot, X: p.notExpr(fname)}
	}
	return p.primary(fname)
}

func (p *testParser) primary(fname string) syntax.TestExpr {
	if p.eof {
		p.errorf("%s: argument expected", fname)
		return p.word("")
	}
	if p.tok == "(" {
		p.next()
		x := p.classicTest(fname, true)
		if p.tok != ")" {
			p.errorf("%s: %q expected, found %q", fname, ")", p.tok)
			return x
		}
		p.next()
		return &syntax.ParenTest{X: x}
	}
	if op, ok := classicUnaryOp(p.tok); ok {
		p.next()
		if p.eof {
			p.errorf("%s: argument expected", fname)
			return p.word("")
		}
		x := p.word(p.tok)
		p.next()
		return &syntax.UnaryTest{Op: op, X: x}
	}
	left := p.word(p.tok)
	p.next()
	if op, ok := classicBinaryOp(p.tok); ok {
		p.next()
		if p.eof {
			p.errorf("%s: argument expected", fname)
			return left
		}
		right := p.word(p.tok)
		p.next()
		return &syntax.BinaryTest{Op: op, X: left, Y: right}
	}
	return left
}

// classicUnaryOp maps a "-x"-style flag to its UnTestOperator, the same
// vocabulary "[[ ]]" uses, so classic test and bashTest share one evaluator.
func classicUnaryOp(val string) (syntax.UnTestOperator, bool) {
	switch val {
	case "-e", "-a":
		return syntax.TsExists, true
	case "-f":
		return syntax.TsRegFile, true
	case "-d":
		return syntax.TsDirect, true
	case "-c":
		return syntax.TsCharSp, true
	case "-b":
		return syntax.TsBlckSp, true
	case "-p":
		return syntax.TsNmPipe, true
	case "-S":
		return syntax.TsSocket, true
	case "-L", "-h":
		return syntax.TsSmbLink, true
	case "-g":
		return syntax.TsGIDSet, true
	case "-u":
		return syntax.TsUIDSet, true
	case "-r":
		return syntax.TsRead, true
	case "-w":
		return syntax.TsWrite, true
	case "-x":
		return syntax.TsExec, true
	case "-s":
		return syntax.TsNoEmpty, true
	case "-t":
		return syntax.TsFdTerm, true
	case "-z":
		return syntax.TsEmpStr, true
	case "-n":
		return syntax.TsNempStr, true
	case "-o":
		return syntax.TsOptSet, true
	case "-v":
		return syntax.TsVarSet, true
	case "-R":
		return syntax.TsRefVar, true
	case "-O":
		return syntax.TsUsrOwn, true
	case "-G":
		return syntax.TsGrpOwn, true
	default:
		return 0, false
	}
}

func classicBinaryOp(val string) (syntax.BinTestOperator, bool) {
	switch val {
	case "=", "==":
		return syntax.TsMatch, true
	case "!=":
		return syntax.TsNoMatch, true
	case "-nt":
		return syntax.TsNewer, true
	case "-ot":
		return syntax.TsOlder, true
	case "-ef":
		return syntax.TsDevIno, true
	case "-eq":
		return syntax.TsEql, true
	case "-ne":
		return syntax.TsNeq, true
	case "-le":
		return syntax.TsLeq, true
	case "-ge":
		return syntax.TsGeq, true
	case "-lt":
		return syntax.TsLss, true
	case "-gt":
		return syntax.TsGtr, true
	default:
		return 0, false
	}
}
