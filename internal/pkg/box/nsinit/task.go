// Copyright (c) 2024, The ll-box Authors. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

// Package nsinit implements the two-stage clone sequence: an entry
// process that owns every requested namespace, configures the user
// namespace, assembles the mount tree and pivots root, then clones a
// non-privileged init that drops into the mapped uid and execs the
// payload.
//
// Go cannot safely continue running arbitrary Go code on a borrowed
// stack after a bare clone(2) in a multithreaded runtime — only the
// single-purpose fork+exec the runtime itself performs inside os/exec is
// safe, because it execs immediately. Every stage here therefore
// re-execs the ll-box binary against itself (argv[0] unchanged, argv[1]
// replaced with a stage sentinel) and lets the kernel's own clone+exec
// give each stage its fresh stack and namespace set via
// syscall.SysProcAttr.Cloneflags. The child never borrows parent memory:
// everything it needs is marshaled to JSON and handed across on a
// dedicated pipe fd, a heap value the child reads fresh rather than
// inherits.
package nsinit

import (
	"github.com/linglong-ll/ll-box/internal/pkg/box/config"
	specs "github.com/opencontainers/runtime-spec/specs-go"
)

// EntryTask is everything the entry process stage needs, copied out of
// the parsed runtime document so the child owns it independently of the
// parent's memory.
type EntryTask struct {
	Root        string
	Mounts      []config.MountRequest
	UIDMappings []config.IDMapping
	GIDMappings []config.IDMapping
	Namespaces  []NamespaceTask
	Hostname    string

	CgroupRequested bool
	CgroupsPath     string
	Resources       config.Resources

	Init InitTask
}

// NamespaceTask is the wire form of config.Namespace; specs.LinuxNamespaceType
// round-trips through JSON fine on its own, but carrying the resolved
// clone flag alongside it avoids re-deriving it in the child.
type NamespaceTask struct {
	Type string
	Flag uintptr
}

// InitTask is everything the non-privileged init stage needs.
type InitTask struct {
	UIDMapping config.IDMapping
	GIDMapping config.IDMapping
	Args       []string
	Env        []string
	Cwd        string

	Prestart       []HookTask
	StartContainer []HookTask

	Seccomp *specs.LinuxSeccomp
}

// HookTask is the wire form of specs.Hook.
type HookTask struct {
	Path    string
	Args    []string
	Env     []string
	Timeout *int
}
