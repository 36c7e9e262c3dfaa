// Copyright (c) 2024, The ll-box Authors. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.
package nsinit

import (
	"fmt"
	"os"

	"github.com/linglong-ll/ll-box/internal/pkg/box/boxerr"
	"github.com/linglong-ll/ll-box/internal/pkg/box/cgroup"
	"github.com/linglong-ll/ll-box/internal/pkg/box/config"
	"github.com/linglong-ll/ll-box/internal/pkg/box/idmap"
	"github.com/linglong-ll/ll-box/internal/pkg/box/mount"
	"github.com/linglong-ll/ll-box/internal/pkg/box/supervisor"
	"github.com/linglong-ll/ll-box/internal/pkg/box/sylog"
	specs "github.com/opencontainers/runtime-spec/specs-go"
	"golang.org/x/sys/unix"
)

// EntryResult is what the parent gets back once the entry process (and
// transitively, the non-privileged init it clones) has started.
type EntryResult struct {
	Pid int
}

// SpawnEntry clones the entry process with every namespace the runtime
// document requested plus the always-forced mount and user namespaces,
// and hands it the subset of spec it needs to finish container setup on
// its own.
func SpawnEntry(spec *config.RuntimeSpec, log *sylog.Logger) (*EntryResult, error) {
	cgroupRequested := false
	for _, ns := range spec.Namespaces {
		if ns.Type == specs.CgroupNamespace {
			cgroupRequested = true
		}
	}

	task := EntryTask{
		Root:            spec.Root.Path,
		Mounts:          spec.Mounts,
		UIDMappings:     spec.UIDMappings,
		GIDMappings:     spec.GIDMappings,
		Hostname:        spec.Hostname,
		CgroupRequested: cgroupRequested && spec.CgroupsPath != "",
		CgroupsPath:     spec.CgroupsPath,
		Resources:       spec.Resources,
		Init:            buildInitTask(spec),
	}
	for _, ns := range spec.Namespaces {
		task.Namespaces = append(task.Namespaces, NamespaceTask{Type: string(ns.Type), Flag: ns.Flag})
	}

	cloneFlags := config.CloneFlags(spec.Namespaces) | uintptr(unix.SIGCHLD)
	cmd, err := spawnStage(StageEntry, cloneFlags, task)
	if err != nil {
		return nil, boxerr.NewFatal("spawn_entry", err)
	}
	return &EntryResult{Pid: cmd.Process.Pid}, nil
}

func buildInitTask(spec *config.RuntimeSpec) InitTask {
	identity := config.IDMapping{ContainerID: 0, HostID: 0, Size: 1}
	for _, m := range spec.UIDMappings {
		if m.ContainerID == 0 {
			identity = m
			break
		}
	}
	gidIdentity := config.IDMapping{ContainerID: 0, HostID: 0, Size: 1}
	for _, m := range spec.GIDMappings {
		if m.ContainerID == 0 {
			gidIdentity = m
			break
		}
	}

	it := InitTask{
		UIDMapping: identity,
		GIDMapping: gidIdentity,
		Args:       spec.Process.Args,
		Env:        spec.Process.Env,
		Cwd:        spec.Process.Cwd,
		Seccomp:    spec.Seccomp,
	}
	for _, h := range spec.Hooks.Prestart {
		it.Prestart = append(it.Prestart, hookTaskFromSpec(h))
	}
	for _, h := range spec.Hooks.StartContainer {
		it.StartContainer = append(it.StartContainer, hookTaskFromSpec(h))
	}
	return it
}

// RunEntry is the entry process stage's body, invoked from cmd/ll-box's
// main when os.Args[1] == StageEntry. It never returns on success; it
// calls os.Exit with the non-privileged init's translated exit status.
func RunEntry() {
	log := sylog.Default

	var task EntryTask
	if err := readTask(&task); err != nil {
		log.Fatalf("entry: %s", err)
	}

	if task.Hostname != "" {
		// sethostname(2) would leak into the host's UTS namespace unless a
		// new UTS namespace was requested; rather than conditioning this on
		// the namespace list, hostname is accepted and validated upstream
		// but never applied here.
		log.Debugf("entry: hostname %q read from spec but not applied", task.Hostname)
	}

	log.Debugf("entry: writing id mappings for pid %d", unix.Getpid())
	if err := idmap.Apply(idmap.Self, task.UIDMappings, task.GIDMappings); err != nil {
		log.Fatalf("entry: apply id mappings: %s", err)
	}

	if err := unix.Mount("", "/", "", unix.MS_REC|unix.MS_SLAVE, ""); err != nil {
		log.Fatalf("entry: recursive slave remount of /: %s", err)
	}

	eng := mount.NewEngine(task.Root, log)
	if err := eng.MountAll(task.Mounts); err != nil {
		eng.Close()
		log.Fatalf("entry: assemble mount tree: %s", err)
	}
	if err := eng.Finalize(); err != nil {
		log.Fatalf("entry: finalize deferred remounts: %s", err)
	}

	if err := pivotRoot(task.Root, log); err != nil {
		log.Fatalf("entry: %s", err)
	}

	if err := setPdeathsig(); err != nil {
		log.Warningf("entry: set pdeathsig: %s", err)
	}

	if task.CgroupRequested {
		ctl, err := cgroup.Setup(task.CgroupsPath, task.Resources)
		if err != nil {
			log.Fatalf("entry: cgroup setup: %s", err)
		}
		if err := ctl.AddProcess(unix.Getpid()); err != nil {
			log.Fatalf("entry: move entry process into cgroup: %s", err)
		}
	}

	initCmd, err := spawnInit(task.Init)
	if err != nil {
		log.Fatalf("entry: spawn non-privileged init: %s", err)
	}

	if err := dropToRealUID(); err != nil {
		log.Warningf("entry: drop effective uid: %s", err)
	}

	exitCode, err := supervisor.WaitAllUntil(initCmd.Process.Pid)
	if err != nil {
		log.Errorf("entry: supervisor: %s", err)
		os.Exit(-1)
	}
	os.Exit(exitCode)
}

// dropToRealUID drops the entry process's effective uid back to its real
// uid once container setup is complete; it only ever runs with elevated
// effective privilege when the real uid was already 0.
func dropToRealUID() error {
	real := unix.Getuid()
	if unix.Geteuid() == real {
		return nil
	}
	if err := unix.Setgroups([]int{unix.Getgid()}); err != nil {
		return fmt.Errorf("setgroups: %w", err)
	}
	return unix.Setuid(real)
}

func hookTaskFromSpec(h specs.Hook) HookTask {
	return HookTask{Path: h.Path, Args: h.Args, Env: h.Env, Timeout: h.Timeout}
}
