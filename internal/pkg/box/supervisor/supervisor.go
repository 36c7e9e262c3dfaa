// Copyright (c) 2024, The ll-box Authors. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

// Package supervisor reaps every descendant of the calling process
// through a signalfd+epoll loop rather than Go's os/signal channel, so
// that SIGCHLD delivery and waitpid reaping stay on the same blocking
// primitive the rest of the engine already uses (mount, pivot_root,
// /proc writes). The child set is a map keyed by pid with no per-child
// record (no argv[0] or role is kept); the reaper only ever deletes from
// that map, so ownership of "did we already see this child exit" is never
// ambiguous.
package supervisor

import (
	"encoding/binary"
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

// siginfoSignal reads the ssi_signo field (the first 4 bytes) out of a
// raw signalfd_siginfo buffer.
func siginfoSignal(buf []byte) uint32 {
	return binary.LittleEndian.Uint32(buf[0:4])
}

// ErrTerminated is returned by WaitAllUntil when SIGTERM arrives before
// targetPid is reaped. The caller tears the container down rather than
// treating this as an engine failure.
var ErrTerminated = errors.New("supervisor: terminated by SIGTERM")

// Status is the parsed result of one reaped child's wait status.
type Status struct {
	Pid      int
	Exited   bool
	ExitCode int
	Signaled bool
	Signal   unix.Signal
}

// String renders the status the way the engine logs it.
func (s Status) String() string {
	switch {
	case s.Signaled:
		return fmt.Sprintf("pid %d killed by signal %d", s.Pid, s.Signal)
	case s.Exited:
		return fmt.Sprintf("pid %d exited with code %d", s.Pid, s.ExitCode)
	default:
		return fmt.Sprintf("pid %d: unrecognized wait status", s.Pid)
	}
}

// ExitCode translates a reaped status into the process-level exit code
// the engine itself should exit with: the child's own code if it exited
// normally, or 128+signal if it was killed, matching shell convention.
func (s Status) ExitCode() int {
	if s.Signaled {
		return 128 + int(s.Signal)
	}
	return s.ExitCode
}

func parseWaitStatus(pid int, ws unix.WaitStatus) Status {
	s := Status{Pid: pid}
	switch {
	case ws.Signaled():
		s.Signaled = true
		s.Signal = ws.Signal()
	case ws.Exited():
		s.Exited = true
		s.ExitCode = ws.ExitStatus()
	}
	return s
}

// newSignalfdEpoll sets up a signalfd watching SIGCHLD and SIGTERM (both
// blocked from normal delivery) and an epoll instance polling it,
// mirroring the blocking-and-suspension model: epoll_wait(-1) blocks
// indefinitely until a child changes state or SIGTERM arrives.
func newSignalfdEpoll() (sfd, epfd int, err error) {
	var set unix.Sigset_t
	set.Val[0] |= 1 << (uint(unix.SIGCHLD) - 1)
	set.Val[0] |= 1 << (uint(unix.SIGTERM) - 1)
	if err := unix.PthreadSigmask(unix.SIG_BLOCK, &set, nil); err != nil {
		return -1, -1, fmt.Errorf("supervisor: block SIGCHLD: %w", err)
	}

	sfd, err = unix.Signalfd(-1, &set, unix.SFD_CLOEXEC)
	if err != nil {
		return -1, -1, fmt.Errorf("supervisor: signalfd: %w", err)
	}

	epfd, err = unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		unix.Close(sfd)
		return -1, -1, fmt.Errorf("supervisor: epoll_create1: %w", err)
	}

	ev := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(sfd)}
	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, sfd, &ev); err != nil {
		unix.Close(sfd)
		unix.Close(epfd)
		return -1, -1, fmt.Errorf("supervisor: epoll_ctl: %w", err)
	}
	return sfd, epfd, nil
}

// WaitAllUntil blocks, reaping every child that exits, until targetPid
// itself is reaped, and returns its translated exit code. Every other
// descendant reaped along the way is dropped opportunistically; the
// caller only cares about targetPid's own fate.
func WaitAllUntil(targetPid int) (int, error) {
	sfd, epfd, err := newSignalfdEpoll()
	if err != nil {
		return -1, err
	}
	defer unix.Close(sfd)
	defer unix.Close(epfd)

	children := map[int]struct{}{targetPid: {}}

	events := make([]unix.EpollEvent, 1)
	buf := make([]byte, unix.SizeofSignalfdSiginfo)
	for {
		n, err := unix.EpollWait(epfd, events, -1)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return -1, fmt.Errorf("supervisor: epoll_wait: %w", err)
		}
		if n == 0 {
			continue
		}

		if _, err := unix.Read(sfd, buf); err != nil && err != unix.EAGAIN {
			return -1, fmt.Errorf("supervisor: read signalfd: %w", err)
		}
		if siginfoSignal(buf) == uint32(unix.SIGTERM) {
			return -1, ErrTerminated
		}

		for {
			var ws unix.WaitStatus
			pid, err := unix.Wait4(-1, &ws, unix.WNOHANG, nil)
			if err != nil || pid <= 0 {
				break
			}
			delete(children, pid)
			if pid == targetPid {
				return parseWaitStatus(pid, ws).ExitCode(), nil
			}
		}
	}
}

// WaitPid performs a single blocking waitpid for pid and returns its
// translated status, for a caller that waits for exactly one known child
// rather than reaping opportunistically.
func WaitPid(pid int) (Status, error) {
	var ws unix.WaitStatus
	got, err := unix.Wait4(pid, &ws, 0, nil)
	if err != nil {
		return Status{}, fmt.Errorf("supervisor: waitpid %d: %w", pid, err)
	}
	return parseWaitStatus(got, ws), nil
}
