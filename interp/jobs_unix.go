// Copyright (c) 2017, Andrey Nering <andrey.nering@gmail.com>
// See LICENSE for licensing information

//go:build unix

package interp

import (
	"os"
	"strconv"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
	"golang.org/x/term"
)

// killGrace is how long [terminateJobGroup] waits after SIGTERM before
// escalating to SIGKILL.
const killGrace = 200 * time.Millisecond

// processAlive reports whether pid still exists, by probing it with signal
// 0 (which delivers nothing but still fails with ESRCH once the process is
// gone).
func processAlive(pid int) bool {
	return syscall.Kill(pid, 0) == nil
}

// terminateJobGroup asks a job's process group to exit the polite way
// first (SIGTERM to the whole group, falling back to the lone pid if the
// group is gone), gives it [killGrace] to comply, then SIGKILLs whatever is
// still alive. Grounded in the original shell's terminal-cleanup path:
// try SIGTERM, sleep briefly, check liveness, and only then force it.
func terminateJobGroup(pgid int) {
	if pgid == 0 {
		return
	}
	if err := syscall.Kill(-pgid, syscall.SIGTERM); err != nil {
		syscall.Kill(pgid, syscall.SIGTERM)
	}
	time.Sleep(killGrace)
	if processAlive(pgid) {
		if err := syscall.Kill(-pgid, syscall.SIGKILL); err != nil {
			syscall.Kill(pgid, syscall.SIGKILL)
		}
	}
}

// getShellPGID returns the shell's own process group id, used as the
// fallback target when giving the terminal back after a foregrounded job.
func getShellPGID() int {
	return syscall.Getpgrp()
}

// signalNumber is the type used to send signals to a job's process group.
type signalNumber = syscall.Signal

// signalJob sends sig to every process in j's group. pgid is 0 until a
// process has actually started, in which case there is nothing to signal.
func signalJob(j *job, sig signalNumber) error {
	if j.pgid == 0 {
		return nil
	}
	return syscall.Kill(-j.pgid, sig)
}

// signalNames maps the names accepted by the "kill" builtin (with or
// without a leading "SIG") to their numeric value.
var signalNames = map[string]signalNumber{
	"HUP": syscall.SIGHUP, "INT": syscall.SIGINT, "QUIT": syscall.SIGQUIT,
	"ILL": syscall.SIGILL, "TRAP": syscall.SIGTRAP, "ABRT": syscall.SIGABRT,
	"FPE": syscall.SIGFPE, "KILL": syscall.SIGKILL, "USR1": syscall.SIGUSR1,
	"SEGV": syscall.SIGSEGV, "USR2": syscall.SIGUSR2, "PIPE": syscall.SIGPIPE,
	"ALRM": syscall.SIGALRM, "TERM": syscall.SIGTERM, "CHLD": syscall.SIGCHLD,
	"CONT": syscall.SIGCONT, "STOP": syscall.SIGSTOP, "TSTP": syscall.SIGTSTP,
	"TTIN": syscall.SIGTTIN, "TTOU": syscall.SIGTTOU,
}

// signalByName resolves a signal name such as "TERM", "SIGTERM" or "15" to
// its numeric value.
func signalByName(name string) (signalNumber, bool) {
	name = strings.ToUpper(strings.TrimPrefix(name, "SIG"))
	if n, err := strconv.Atoi(name); err == nil {
		return signalNumber(n), true
	}
	sig, ok := signalNames[name]
	return sig, ok
}

// signalNameList returns the names accepted by [signalByName], for "kill -l".
func signalNameList() []string {
	names := make([]string, 0, len(signalNames))
	for n := range signalNames {
		names = append(names, n)
	}
	return names
}

// isStopSignal reports whether sig would stop a job, for the purpose of
// optimistically updating job state when the shell itself sends it.
func isStopSignal(sig signalNumber) bool {
	return sig == syscall.SIGSTOP || sig == syscall.SIGTSTP
}

// isContSignal reports whether sig would resume a stopped job.
func isContSignal(sig signalNumber) bool {
	return sig == syscall.SIGCONT
}

// killPID sends sig directly to a single pid, as the "kill" builtin does
// when given a bare process id rather than a job spec.
func killPID(pid int, sig signalNumber) error {
	return syscall.Kill(pid, sig)
}

// controllingTTY returns the file descriptor of the shell's controlling
// terminal, or -1 if there isn't one (e.g. input redirected from a file, or
// running under a test harness).
func controllingTTY() int {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return -1
	}
	return fd
}

// setForegroundPGID hands the controlling terminal to pgid, as "fg" needs
// when it resumes a job. It is a best-effort operation:
// failures (no controlling terminal, running in a pipe, etc.) are ignored,
// since job control degrades to bookkeeping-only in those cases.
func setForegroundPGID(pgid int) {
	fd := controllingTTY()
	if fd < 0 {
		return
	}
	_ = unix.IoctlSetInt(fd, unix.TIOCSPGRP, pgid)
}
