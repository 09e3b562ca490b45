// Copyright (c) 2017, Daniel Martí <mvdan@mvdan.cc>
// See LICENSE for licensing information

package interp

import (
	"context"
	"os"
	"testing"

	"github.com/CadenFinley/cjsh/internal"
	"github.com/CadenFinley/cjsh/syntax"
)

func TestMain(m *testing.M) {
	internal.TestMainSetup()
	os.Exit(m.Run())
}

func run(tb testing.TB, src string) (string, int) {
	tb.Helper()
	file, err := syntax.Parse([]byte(src), "", 0)
	if err != nil {
		tb.Fatal(err)
	}
	var cb internal.ConcBuffer
	r, err := New(StdIO(nil, &cb, &cb))
	if err != nil {
		tb.Fatal(err)
	}
	err = r.Run(context.Background(), file)
	status := 0
	if es, ok := err.(ExitStatus); ok {
		status = int(es)
	} else if err != nil {
		tb.Fatal(err)
	}
	return cb.String(), status
}

func TestClassicTestBuiltin(t *testing.T) {
	t.Parallel()
	tests := []struct {
		src  string
		want string
	}{
		{`[ -z "" ] && echo yes`, "yes\n"},
		{`[ -n "x" ] && echo yes`, "yes\n"},
		{`[ 1 -eq 1 ] && echo yes`, "yes\n"},
		{`[ 1 -lt 2 -a 2 -lt 3 ] && echo yes`, "yes\n"},
		{`[ 1 -gt 2 -o 2 -lt 3 ] && echo yes`, "yes\n"},
		{`[ ! 1 -eq 2 ] && echo yes`, "yes\n"},
		{`test 3 -gt 2 && echo yes`, "yes\n"},
		{`[ \( 1 -eq 1 \) -a \( 2 -eq 2 \) ] && echo yes`, "yes\n"},
		{`[ abc = abc ] && echo yes`, "yes\n"},
		{`[ abc != xyz ] && echo yes`, "yes\n"},
	}
	for _, tc := range tests {
		got, status := run(t, tc.src)
		if status != 0 {
			t.Errorf("%s: exit status %d", tc.src, status)
			continue
		}
		if got != tc.want {
			t.Errorf("%s: got %q, want %q", tc.src, got, tc.want)
		}
	}
}

func TestBashTestExtended(t *testing.T) {
	t.Parallel()
	tests := []struct {
		src  string
		want string
	}{
		{`[[ foo == f* ]] && echo yes`, "yes\n"},
		{`[[ foo =~ ^f.o$ ]] && echo yes`, "yes\n"},
		{`[[ abc < abd ]] && echo yes`, "yes\n"},
		{`[[ -v PATH ]] && echo yes`, "yes\n"},
		{`[[ -z "" && -n "x" ]] && echo yes`, "yes\n"},
	}
	for _, tc := range tests {
		got, status := run(t, tc.src)
		if status != 0 {
			t.Errorf("%s: exit status %d", tc.src, status)
			continue
		}
		if got != tc.want {
			t.Errorf("%s: got %q, want %q", tc.src, got, tc.want)
		}
	}
}

func TestClassicUnaryOp(t *testing.T) {
	t.Parallel()
	tests := []struct {
		flag string
		op   syntax.UnTestOperator
	}{
		{"-e", syntax.TsExists},
		{"-f", syntax.TsRegFile},
		{"-d", syntax.TsDirect},
		{"-r", syntax.TsRead},
		{"-w", syntax.TsWrite},
		{"-x", syntax.TsExec},
		{"-z", syntax.TsEmpStr},
		{"-n", syntax.TsNempStr},
		{"-o", syntax.TsOptSet},
		{"-v", syntax.TsVarSet},
		{"-R", syntax.TsRefVar},
		{"-O", syntax.TsUsrOwn},
		{"-G", syntax.TsGrpOwn},
	}
	for _, tc := range tests {
		op, ok := classicUnaryOp(tc.flag)
		if !ok {
			t.Errorf("%s: not recognized as a unary test operator", tc.flag)
			continue
		}
		if op != tc.op {
			t.Errorf("%s: got %v, want %v", tc.flag, op, tc.op)
		}
	}
}

func TestClassicBinaryOp(t *testing.T) {
	t.Parallel()
	tests := []struct {
		flag string
		op   syntax.BinTestOperator
	}{
		{"=", syntax.TsMatch},
		{"!=", syntax.TsNoMatch},
		{"-eq", syntax.TsEql},
		{"-ne", syntax.TsNeq},
		{"-nt", syntax.TsNewer},
		{"-ot", syntax.TsOlder},
		{"-ef", syntax.TsDevIno},
	}
	for _, tc := range tests {
		op, ok := classicBinaryOp(tc.flag)
		if !ok {
			t.Errorf("%s: not recognized as a binary test operator", tc.flag)
			continue
		}
		if op != tc.op {
			t.Errorf("%s: got %v, want %v", tc.flag, op, tc.op)
		}
	}
}
