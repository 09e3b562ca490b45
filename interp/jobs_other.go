// Copyright (c) 2017, Andrey Nering <andrey.nering@gmail.com>
// See LICENSE for licensing information

//go:build !unix

package interp

import "fmt"

// getShellPGID is a no-op on platforms without process groups; job control
// degrades to bookkeeping only.
func getShellPGID() int { return 0 }

// signalNumber is the type used to send signals to a job's process group.
type signalNumber = int

// signalJob is a no-op on platforms without process groups.
func signalJob(j *job, sig signalNumber) error {
	return fmt.Errorf("signals are not supported on this platform")
}

// signalByName always fails: there is no portable signal-name table outside
// of Unix-like platforms.
func signalByName(name string) (signalNumber, bool) { return 0, false }

// signalNameList is empty on platforms without a signal-name table.
func signalNameList() []string { return nil }

// isStopSignal always reports false outside of Unix-like platforms.
func isStopSignal(sig signalNumber) bool { return false }

// isContSignal always reports false outside of Unix-like platforms.
func isContSignal(sig signalNumber) bool { return false }

// killPID is unsupported on platforms without process signals.
func killPID(pid int, sig signalNumber) error {
	return fmt.Errorf("signals are not supported on this platform")
}

// setForegroundPGID is a no-op on platforms without a TIOCSPGRP equivalent.
func setForegroundPGID(pgid int) {}

// processAlive is unsupported on platforms without process signals.
func processAlive(pid int) bool { return false }

// terminateJobGroup is a no-op on platforms without process groups.
func terminateJobGroup(pgid int) {}
