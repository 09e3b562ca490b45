// Copyright (c) 2017, Daniel Martí <mvdan@mvdan.cc>
// See LICENSE for licensing information

package interp

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/CadenFinley/cjsh/syntax"
)

// recordProcessExit translates a finished [os.ProcessState] into the job
// table's bookkeeping, extracting the signal that killed the process (if
// any) the same way [DefaultExecHandler] does for the reported exit status.
func recordProcessExit(jt *jobTable, j *job, pid int, ps *os.ProcessState) {
	var code uint8
	var signaled bool
	var sig int
	if ps != nil {
		if status, ok := ps.Sys().(waitStatus); ok && status.Signaled() {
			signaled = true
			sig = int(status.Signal())
		} else {
			code = uint8(ps.ExitCode())
		}
	}
	jt.recordExit(j, pid, code, signaled, sig)
}

// jobState is the lifecycle state of a [job], mirroring spec.md §4.6's
// Running/Stopped/Done job-control state machine.
type jobState uint8

const (
	jobRunning jobState = iota
	jobStopped
	jobDone
)

func (s jobState) String() string {
	switch s {
	case jobRunning:
		return "Running"
	case jobStopped:
		return "Stopped"
	case jobDone:
		return "Done"
	default:
		return "Unknown"
	}
}

// jobProc is a single process that is part of a job's process group.
type jobProc struct {
	pid      int
	exited   bool
	exitCode uint8
	signaled bool
	signal   int
}

// job is a pipeline tracked by the shell as a single foreground/background
// unit, per spec.md's GLOSSARY entry for "Job".
type job struct {
	id         int
	pgid       int // 0 until the first process in the job has started
	command    string
	procs      []*jobProc
	state      jobState
	foreground bool
	notified   bool // whether a Done/Stopped transition has been reported to the user

	// bg is the background-statement bookkeeping for this job, shared with
	// the goroutine that actually runs it; fg/wait block on bg.done rather
	// than re-waiting on the job's processes themselves, since the exec
	// handler that started them already owns that wait.
	bg *bgProc

	// mu guards the process-group leader election below. A pipeline's
	// stages are started concurrently from separate goroutines, but they
	// must all join a single process group; the first to arrive claims
	// leadership and the rest block until its pid is known.
	mu            sync.Mutex
	leaderClaimed bool
	leaderReady   chan struct{}
}

// pgidForStart returns the process group id that the next process started as
// part of the job should join. A return of 0 means "start a new group",
// which only the first (leader) caller receives; later callers block until
// the leader's real pid is known via [job.setPGID], then join that group.
func (j *job) pgidForStart() int {
	j.mu.Lock()
	if j.pgid != 0 {
		pgid := j.pgid
		j.mu.Unlock()
		return pgid
	}
	if !j.leaderClaimed {
		j.leaderClaimed = true
		j.mu.Unlock()
		return 0
	}
	ready := j.leaderReady
	j.mu.Unlock()
	<-ready
	j.mu.Lock()
	pgid := j.pgid
	j.mu.Unlock()
	return pgid // 0 if the leader's process failed to start
}

// setPGID records pid as the job's process group once a process has
// actually started, unblocking any sibling pipeline stage waiting in
// [job.pgidForStart]. It is safe to call for every process in the job, not
// just the leader: only the first call has any effect.
func (j *job) setPGID(pid int) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.pgid == 0 && pid > 0 {
		j.pgid = pid
	}
	if j.leaderReady != nil {
		close(j.leaderReady)
		j.leaderReady = nil
	}
}

// abandonLeader releases any sibling pipeline stage blocked in
// [job.pgidForStart], used when the leader process failed to start; the
// sibling then falls back to starting its own group.
func (j *job) abandonLeader() {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.leaderReady != nil {
		close(j.leaderReady)
		j.leaderReady = nil
	}
}

// allDone reports whether every process belonging to the job has exited.
func (j *job) allDone() bool {
	for _, p := range j.procs {
		if !p.exited {
			return false
		}
	}
	return len(j.procs) > 0
}

// lastStatus returns the exit status that `$?`/`wait` should observe for the
// job: the last process added wins, matching a pipeline's exit-status rule.
func (j *job) lastStatus() exitStatus {
	if len(j.procs) == 0 {
		return exitStatus{}
	}
	p := j.procs[len(j.procs)-1]
	var e exitStatus
	if p.signaled {
		e.code = uint8(128 + p.signal)
	} else {
		e.code = p.exitCode
	}
	return e
}

// jobTable is the shell's C7 job table: one per interactive [Runner], shared
// by reference with every [Runner] copy it spawns (see [Runner.subshell]) so
// that background jobs report into the same table.
type jobTable struct {
	mu        sync.Mutex
	jobs      []*job
	shellPGID int
}

// newJobTable creates a job table for an interactive (or job-control-enabled)
// Runner. shellPGID is best-effort; platforms without process groups (or a
// Runner not attached to a real process) pass 0 and job control degrades to
// bookkeeping only, with signal/terminal operations becoming no-ops.
func newJobTable() *jobTable {
	return &jobTable{shellPGID: getShellPGID()}
}

// add registers a new job and returns it. The job starts with no attached
// processes; [jobTable.attach] fills those in as the exec handler starts
// each one.
func (jt *jobTable) add(command string, foreground bool) *job {
	jt.mu.Lock()
	defer jt.mu.Unlock()
	id := 1
	for {
		found := false
		for _, j := range jt.jobs {
			if j.id == id {
				found = true
				break
			}
		}
		if !found {
			break
		}
		id++
	}
	j := &job{
		id:          id,
		command:     command,
		state:       jobRunning,
		foreground:  foreground,
		leaderReady: make(chan struct{}),
	}
	jt.jobs = append(jt.jobs, j)
	return j
}

// attach records that pid has started as part of j's process group. Call
// [job.setPGID] first so that the group is already established.
func (jt *jobTable) attach(j *job, pid int) {
	jt.mu.Lock()
	defer jt.mu.Unlock()
	j.procs = append(j.procs, &jobProc{pid: pid})
}

// recordExit fills in the outcome of one of the job's processes, as observed
// after the exec handler that started it has finished waiting for it.
func (jt *jobTable) recordExit(j *job, pid int, code uint8, signaled bool, sig int) {
	jt.mu.Lock()
	defer jt.mu.Unlock()
	for _, p := range j.procs {
		if p.pid == pid {
			p.exited = true
			p.exitCode = code
			p.signaled = signaled
			p.signal = sig
			return
		}
	}
}

// finish marks a job as Done once the goroutine running its statement has
// returned, regardless of whether any external process ever attached to it
// (e.g. "true &" backgrounds a builtin with no process to wait for).
func (jt *jobTable) finish(j *job) {
	jt.mu.Lock()
	defer jt.mu.Unlock()
	if j.state != jobStopped {
		j.state = jobDone
	}
}

// remove drops a job from the table entirely, used once a foreground job has
// been waited for and completed normally (so it never shows up in `jobs`).
func (jt *jobTable) remove(j *job) {
	jt.mu.Lock()
	defer jt.mu.Unlock()
	for i, cand := range jt.jobs {
		if cand == j {
			jt.jobs = append(jt.jobs[:i], jt.jobs[i+1:]...)
			return
		}
	}
}

// list returns a stable, id-ordered snapshot of the table for `jobs` output.
func (jt *jobTable) list() []*job {
	jt.mu.Lock()
	defer jt.mu.Unlock()
	out := make([]*job, len(jt.jobs))
	copy(out, jt.jobs)
	sort.Slice(out, func(i, k int) bool { return out[i].id < out[k].id })
	return out
}

// current and previous implement %+ and %- : the most and second-most
// recently touched non-Done jobs, by id (an approximation of bash's access
// ordering that is stable and easy to reason about).
func (jt *jobTable) current() *job {
	list := jt.list()
	var best *job
	for _, j := range list {
		if j.state == jobDone {
			continue
		}
		if best == nil || j.id > best.id {
			best = j
		}
	}
	return best
}

func (jt *jobTable) previous() *job {
	list := jt.list()
	cur := jt.current()
	var best *job
	for _, j := range list {
		if j.state == jobDone || j == cur {
			continue
		}
		if best == nil || j.id > best.id {
			best = j
		}
	}
	return best
}

// find resolves a job spec as accepted by fg/bg/kill/jobs/wait: "%N", "%%",
// "%+", "%-", "%prefix", a bare job number, or a bare number that happens
// to be a job's pgid.
func (jt *jobTable) find(spec string) (*job, error) {
	if spec == "" {
		if j := jt.current(); j != nil {
			return j, nil
		}
		return nil, fmt.Errorf("current: no such job")
	}
	body, hadPercent := strings.CutPrefix(spec, "%")
	switch {
	case hadPercent && (body == "" || body == "%"):
		if j := jt.current(); j != nil {
			return j, nil
		}
		return nil, fmt.Errorf("%s: no such job", spec)
	case hadPercent && body == "+":
		if j := jt.current(); j != nil {
			return j, nil
		}
		return nil, fmt.Errorf("%s: no such job", spec)
	case hadPercent && body == "-":
		if j := jt.previous(); j != nil {
			return j, nil
		}
		return nil, fmt.Errorf("%s: no such job", spec)
	case hadPercent:
		if n, err := strconv.Atoi(body); err == nil {
			for _, j := range jt.list() {
				if j.id == n {
					return j, nil
				}
			}
			return nil, fmt.Errorf("%s: no such job", spec)
		}
		var match *job
		for _, j := range jt.list() {
			if strings.HasPrefix(j.command, body) {
				if match != nil {
					return nil, fmt.Errorf("%s: ambiguous job spec", spec)
				}
				match = j
			}
		}
		if match == nil {
			return nil, fmt.Errorf("%s: no such job", spec)
		}
		return match, nil
	default:
		if n, err := strconv.Atoi(spec); err == nil {
			for _, j := range jt.list() {
				if j.id == n || j.pgid == n {
					return j, nil
				}
			}
		}
		return nil, fmt.Errorf("%s: no such job", spec)
	}
}

// line formats a job the way `jobs` prints it, e.g.
// "[1]+  Running                sleep 5 &"
func (jt *jobTable) line(j *job) string {
	marker := " "
	switch j {
	case jt.current():
		marker = "+"
	case jt.previous():
		marker = "-"
	}
	suffix := ""
	if !j.foreground && j.state != jobDone {
		suffix = " &"
	}
	return fmt.Sprintf("[%d]%s  %-22s %s%s", j.id, marker, j.state, j.command, suffix)
}

// stmtSummary renders a best-effort source approximation of a statement for
// job-table display. It only needs to be readable, not round-trippable: the
// real source text isn't retained once a [syntax.Stmt] has been parsed.
func stmtSummary(st *syntax.Stmt) string {
	if st == nil || st.Cmd == nil {
		return "command"
	}
	s := cmdSummary(st.Cmd)
	if st.Negated {
		s = "! " + s
	}
	return s
}

func cmdSummary(cm syntax.Command) string {
	switch cm := cm.(type) {
	case *syntax.CallExpr:
		parts := make([]string, 0, len(cm.Args))
		for _, w := range cm.Args {
			parts = append(parts, wordSummary(&w))
		}
		return strings.Join(parts, " ")
	case *syntax.BinaryCmd:
		op := "|"
		if cm.Op == syntax.PipeAll {
			op = "|&"
		} else if cm.Op == syntax.AndStmt {
			op = "&&"
		} else if cm.Op == syntax.OrStmt {
			op = "||"
		}
		return stmtSummary(cm.X) + " " + op + " " + stmtSummary(cm.Y)
	case *syntax.Subshell:
		return "( ... )"
	case *syntax.Block:
		return "{ ... }"
	default:
		return "command"
	}
}

func wordSummary(w *syntax.Word) string {
	if lit := w.Lit(); lit != "" {
		return lit
	}
	var b strings.Builder
	for _, p := range w.Parts {
		switch p := p.(type) {
		case *syntax.Lit:
			b.WriteString(p.Value)
		case *syntax.SglQuoted:
			b.WriteByte('\'')
			b.WriteString(p.Value)
			b.WriteByte('\'')
		default:
			b.WriteString("...")
		}
	}
	if b.Len() == 0 {
		return "..."
	}
	return b.String()
}
