package interp

import (
	"context"
	"testing"

	"github.com/CadenFinley/cjsh/internal"
	"github.com/CadenFinley/cjsh/syntax"
)

// runInteractive is like run, but with interactive mode on, which is what
// enables abbreviation expansion.
func runInteractive(tb testing.TB, src string) (string, int) {
	tb.Helper()
	file, err := syntax.Parse([]byte(src), "", 0)
	if err != nil {
		tb.Fatal(err)
	}
	var cb internal.ConcBuffer
	r, err := New(StdIO(nil, &cb, &cb), Interactive(true))
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

func TestAliasPipeline(t *testing.T) {
	t.Parallel()
	tests := []struct {
		src  string
		want string
	}{
		// A plain alias still splices into the caller's argument list.
		{"alias greet='echo hi'\ngreet there", "hi there\n"},
		// An alias whose value contains a bare pipe runs as a whole
		// pipeline instead, discarding any trailing user arguments.
		{"alias lc='echo Hi | tr A-Z a-z'\nlc ignored args", "hi\n"},
	}
	for _, tc := range tests {
		got, status := runInteractive(t, tc.src)
		if status != 0 {
			t.Errorf("%s: exit status %d", tc.src, status)
			continue
		}
		if got != tc.want {
			t.Errorf("%s: got %q, want %q", tc.src, got, tc.want)
		}
	}
}

func TestAbbrevExpansion(t *testing.T) {
	t.Parallel()
	src := "abbr g='echo expanded'\ng extra"
	got, status := runInteractive(t, src)
	if status != 0 {
		t.Fatalf("%s: exit status %d", src, status)
	}
	want := "expanded extra\n"
	if got != want {
		t.Errorf("%s: got %q, want %q", src, got, want)
	}
}

func TestAbbrevNotExpandedNonInteractive(t *testing.T) {
	t.Parallel()
	// Abbreviations only fire in interactive sessions; a script running
	// the same source should see "g" fail as an unknown command instead.
	src := "abbr g='echo expanded'\ng extra"
	_, status := run(t, src)
	if status == 0 {
		t.Errorf("%s: expected a nonzero exit status, got 0", src)
	}
}

func TestExitTwoPressWithStoppedJobs(t *testing.T) {
	t.Parallel()
	var cb internal.ConcBuffer
	r, err := New(StdIO(nil, &cb, &cb))
	if err != nil {
		t.Fatal(err)
	}
	r.jobs = newJobTable()
	j := &job{state: jobStopped}
	r.jobs.jobs = append(r.jobs.jobs, j)

	ctx := context.Background()

	file1, err := syntax.Parse([]byte("exit"), "", 0)
	if err != nil {
		t.Fatal(err)
	}
	if err := r.Run(ctx, file1); err != nil {
		t.Fatalf("first exit: unexpected error %v", err)
	}
	if r.Exited() {
		t.Fatalf("first exit with a stopped job should only warn, not exit")
	}
	if r.cmdSeq != r.lastExitWarnSeq {
		t.Fatalf("expected cmdSeq == lastExitWarnSeq right after the warning, got %d != %d", r.cmdSeq, r.lastExitWarnSeq)
	}

	file2, err := syntax.Parse([]byte("exit"), "", 0)
	if err != nil {
		t.Fatal(err)
	}
	err = r.Run(ctx, file2)
	if _, ok := err.(ExitStatus); !ok && err != nil {
		t.Fatalf("second exit: unexpected error %v", err)
	}
	if !r.Exited() {
		t.Fatalf("a second consecutive exit right after the warning should force-quit")
	}
}

func TestExitForceFlag(t *testing.T) {
	t.Parallel()
	var cb internal.ConcBuffer
	r, err := New(StdIO(nil, &cb, &cb))
	if err != nil {
		t.Fatal(err)
	}
	r.jobs = newJobTable()
	r.jobs.jobs = append(r.jobs.jobs, &job{state: jobRunning})

	file, err := syntax.Parse([]byte("exit -f"), "", 0)
	if err != nil {
		t.Fatal(err)
	}
	_ = r.Run(context.Background(), file)
	if !r.Exited() {
		t.Fatalf("exit -f should force-quit even with a running job")
	}
}
