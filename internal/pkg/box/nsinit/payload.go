// Copyright (c) 2024, The ll-box Authors. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.
package nsinit

import (
	"os"
	"os/exec"

	"github.com/linglong-ll/ll-box/internal/pkg/box/seccomp"
	"github.com/linglong-ll/ll-box/internal/pkg/box/sylog"
	specs "github.com/opencontainers/runtime-spec/specs-go"
	"golang.org/x/sys/unix"
)

// PayloadTask is everything the payload stage needs. A seccomp filter
// has to be installed in the exact process that then execve's the
// payload: Go's os/exec offers no hook that runs after fork but before
// exec, so the non-privileged init forks this dedicated stage, which
// installs the filter on itself and then replaces its own image with
// the payload via execve, carrying the filter across exactly as the
// kernel's seccomp semantics require.
type PayloadTask struct {
	Args    []string
	Env     []string
	Cwd     string
	Seccomp *specs.LinuxSeccomp
}

// spawnPayload forks (no new namespaces — the payload runs inside the
// non-privileged init's own) and hands the child its task over a pipe.
func spawnPayload(task PayloadTask) (*exec.Cmd, error) {
	return spawnStage(StagePayload, 0, task)
}

// RunPayload is the payload stage's body, invoked from cmd/ll-box's main
// when os.Args[1] == StagePayload. It never returns on success: it
// becomes the payload via execve.
func RunPayload() {
	log := sylog.Default

	var task PayloadTask
	if err := readTask(&task); err != nil {
		log.Fatalf("payload: %s", err)
	}

	if err := setPdeathsig(); err != nil {
		log.Warningf("payload: set pdeathsig: %s", err)
	}

	if task.Seccomp != nil {
		if err := seccomp.Compile(task.Seccomp); err != nil {
			log.Fatalf("payload: compile seccomp filter: %s", err)
		}
	}

	if task.Cwd != "" {
		if err := os.Chdir(task.Cwd); err != nil {
			log.Fatalf("payload: chdir %s: %s", task.Cwd, err)
		}
	}

	bin, err := exec.LookPath(task.Args[0])
	if err != nil {
		log.Fatalf("payload: resolve %s: %s", task.Args[0], err)
	}
	if err := unix.Exec(bin, task.Args, task.Env); err != nil {
		log.Fatalf("payload: exec %s: %s", bin, err)
	}
}
