// Copyright (c) 2024, The ll-box Authors. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.
package nsinit

import (
	"os"
	"os/exec"

	"github.com/linglong-ll/ll-box/internal/pkg/box/config"
	"github.com/linglong-ll/ll-box/internal/pkg/box/hook"
	"github.com/linglong-ll/ll-box/internal/pkg/box/idmap"
	"github.com/linglong-ll/ll-box/internal/pkg/box/supervisor"
	"github.com/linglong-ll/ll-box/internal/pkg/box/sylog"
	"golang.org/x/sys/unix"
)

// initCloneFlags is the namespace set the non-privileged init creates for
// itself and the payload: its own user namespace (identity-mapped to the
// real host uid, so the payload sees itself as the host user rather than
// as root), its own pid namespace (so the init is pid 1 of a fresh tree
// and the payload runs as its child), and its own mount namespace (so mounting a fresh /proc doesn't
// leak into the entry process).
const initCloneFlags = unix.CLONE_NEWUSER | unix.CLONE_NEWPID | unix.CLONE_NEWNS

// spawnInit clones the non-privileged init from within the entry
// process.
func spawnInit(task InitTask) (*exec.Cmd, error) {
	return spawnStage(StageInit, uintptr(initCloneFlags)|uintptr(unix.SIGCHLD), task)
}

// RunInit is the non-privileged init stage's body, invoked from
// cmd/ll-box's main when os.Args[1] == StageInit. It mounts a fresh
// /proc, runs the prestart and startContainer hooks, execs the payload
// in a forked child, and waits specifically for that child while reaping
// everything else opportunistically. It never returns; it calls os.Exit
// with the payload's own exit status (or 128+signal if it was killed).
func RunInit() {
	log := sylog.Default

	var task InitTask
	if err := readTask(&task); err != nil {
		log.Fatalf("init: %s", err)
	}

	identity := []config.IDMapping{task.UIDMapping}
	gidIdentity := []config.IDMapping{task.GIDMapping}
	if err := idmap.Apply(idmap.Self, identity, gidIdentity); err != nil {
		log.Fatalf("init: apply identity mapping: %s", err)
	}

	if err := unix.Mount("proc", "/proc", "proc", unix.MS_NOSUID|unix.MS_NOEXEC|unix.MS_NODEV, ""); err != nil {
		log.Fatalf("init: mount /proc: %s", err)
	}

	for _, h := range task.Prestart {
		if err := hook.Run(toSpecHook(h)); err != nil {
			log.Warningf("init: prestart hook %s: %s", h.Path, err)
		}
	}
	for _, h := range task.StartContainer {
		if err := hook.Run(toSpecHook(h)); err != nil {
			log.Warningf("init: startContainer hook %s: %s", h.Path, err)
		}
	}

	if err := setPdeathsig(); err != nil {
		log.Warningf("init: set pdeathsig: %s", err)
	}

	payload, err := spawnPayload(PayloadTask{
		Args:    task.Args,
		Env:     task.Env,
		Cwd:     task.Cwd,
		Seccomp: task.Seccomp,
	})
	if err != nil {
		log.Fatalf("init: start payload %s: %s", task.Args[0], err)
	}

	exitCode, err := supervisor.WaitAllUntil(payload.Process.Pid)
	if err != nil {
		log.Errorf("init: supervisor: %s", err)
		os.Exit(-1)
	}
	os.Exit(exitCode)
}

func toSpecHook(h HookTask) hook.Hook {
	return hook.Hook{Path: h.Path, Args: h.Args, Env: h.Env, Timeout: h.Timeout}
}
