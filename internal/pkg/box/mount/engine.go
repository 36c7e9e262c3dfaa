// Copyright (c) 2024, The ll-box Authors. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

// Package mount assembles the container's mount tree: it resolves every
// destination through an O_PATH fd so a crafted symlink inside the rootfs
// can never redirect a mount outside containerRoot, classifies each
// source to decide what kind of destination node to create, and — for
// read-only binds — defers the final remount until every other mount has
// landed, preserving read-only semantics that the kernel would otherwise
// grant briefly as read-write. The builder (MountAll) and the executor
// (Finalize) are kept separate per the REDESIGN FLAG on the mutable
// mount-list; the only mutable state threading between them is the
// Engine's own deferred-remount list, which the Engine exclusively owns
// and closes on Finalize (or Close, if setup aborts first).
package mount

import (
	"fmt"
	"os"

	"github.com/linglong-ll/ll-box/internal/pkg/box/boxerr"
	"github.com/linglong-ll/ll-box/internal/pkg/box/config"
	"github.com/linglong-ll/ll-box/internal/pkg/box/sylog"
	"golang.org/x/sys/unix"
)

// deferredRemount is an owned O_PATH fd of a destination that still needs
// a follow-up MS_REMOUNT once every other mount in the request list has
// been applied.
type deferredRemount struct {
	f     *os.File
	flags uintptr
	data  string
}

// Engine assembles an ordered mount-request list against containerRoot.
type Engine struct {
	containerRoot string
	log           *sylog.Logger

	sysfsBound bool
	deferred   []deferredRemount
}

// NewEngine returns an Engine rooted at containerRoot (an absolute,
// already-resolved host path — typically the FilesystemDriver's host
// root).
func NewEngine(containerRoot string, log *sylog.Logger) *Engine {
	return &Engine{containerRoot: containerRoot, log: log}
}

// MountAll applies every request in order. A hostile destination (one
// whose canonical path escapes containerRoot) aborts immediately with a
// *boxerr.Fatal; every other per-mount failure is logged and the engine
// continues to the next request, per the error taxonomy in §7.
func (e *Engine) MountAll(requests []config.MountRequest) error {
	for i, req := range requests {
		if err := e.mountOne(req); err != nil {
			var hostile *hostileDestination
			if isHostile(err, &hostile) {
				return boxerr.NewFatal("mount_tree", err)
			}
			e.log.Errorf("mount request %d (%s -> %s, type=%s) failed: %s", i, req.Source, req.Destination, req.FSType, err)
		}
	}
	return nil
}

func isHostile(err error, target **hostileDestination) bool {
	for err != nil {
		if h, ok := err.(*hostileDestination); ok {
			*target = h
			return true
		}
		unwrapper, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = unwrapper.Unwrap()
	}
	return false
}

func (e *Engine) destHostPath(destination string) string {
	return joinContainerRoot(e.containerRoot, destination)
}

func (e *Engine) mountOne(req config.MountRequest) error {
	destHost := e.destHostPath(req.Destination)

	prepared, err := prepareSource(req, destHost)
	if err != nil {
		return fmt.Errorf("classify source: %w", err)
	}
	if prepared.skip {
		return nil
	}
	if prepared.keepOpen != nil {
		defer prepared.keepOpen.Close()
	}

	switch req.FSType {
	case config.FSBind:
		return e.mountBind(req, destHost, prepared.source)
	case config.FSProc, config.FSDevpts, config.FSTmpfs:
		return mountAt(e.containerRoot, destHost, prepared.source, req.FSType.String(), req.Flags, req.Data)
	case config.FSMqueue:
		if err := mountAt(e.containerRoot, destHost, prepared.source, req.FSType.String(), req.Flags, req.Data); err == nil {
			return nil
		}
		e.log.Warningf("mqueue mount failed, falling back to bind from /dev/mqueue at %s", req.Destination)
		return mountAt(e.containerRoot, destHost, "/dev/mqueue", "", unix.MS_BIND|unix.MS_REC, "")
	case config.FSSysfs:
		if err := mountAt(e.containerRoot, destHost, prepared.source, req.FSType.String(), req.Flags, req.Data); err == nil {
			return nil
		}
		e.log.Warningf("sysfs mount failed, falling back to bind from /sys at %s", req.Destination)
		if err := mountAt(e.containerRoot, destHost, "/sys", "", unix.MS_BIND|unix.MS_REC, ""); err != nil {
			return err
		}
		e.sysfsBound = true
		return nil
	case config.FSCgroup, config.FSCgroup2:
		err := mountAt(e.containerRoot, destHost, prepared.source, req.FSType.String(), req.Flags, req.Data)
		if err == nil {
			return nil
		}
		if e.sysfsBound {
			e.log.Warningf("cgroup mount failed at %s but sysfs is already bound, continuing: %s", req.Destination, err)
			return nil
		}
		return err
	default:
		return fmt.Errorf("unsupported fsType %s", req.FSType)
	}
}

const allPropagationFlags = unix.MS_SHARED | unix.MS_PRIVATE | unix.MS_SLAVE | unix.MS_UNBINDABLE

// mountBind implements §4.3's bind-mount case: the initial call is
// clamped to MS_BIND|MS_REC with no data, propagation (if any) is applied
// as an independent second mount call, and anything left over — extra
// flags or data — is either remounted immediately or, if MS_RDONLY is
// among them, deferred until Finalize so the kernel never briefly grants
// write access before the remount lands.
func (e *Engine) mountBind(req config.MountRequest, destHost, source string) error {
	bindFlags := (req.Flags | unix.MS_BIND) & (unix.MS_BIND | unix.MS_REC)
	if err := mountAt(e.containerRoot, destHost, source, "", bindFlags, ""); err != nil {
		return err
	}

	if source == "/sys" {
		e.sysfsBound = true
	}

	if prop := req.PropagationFlags & allPropagationFlags; prop != 0 {
		rec := req.PropagationFlags & unix.MS_REC
		if err := mountAt(e.containerRoot, destHost, "", "", rec|prop, ""); err != nil {
			return fmt.Errorf("set propagation: %w", err)
		}
	}

	if req.Data == "" && req.Flags&^(unix.MS_BIND|unix.MS_REC|unix.MS_REMOUNT) == 0 {
		return nil
	}
	if req.ExtensionFlags&config.ExtNoSymfollow != 0 {
		// FIXME: the NOSYMFOLLOW source rewrite does not survive a second
		// mount(2) call against the same destination; skip the remount
		// pass for this request rather than risk mounting the wrong fd.
		return nil
	}

	remountFlags := req.Flags | unix.MS_BIND | unix.MS_REMOUNT
	if remountFlags&unix.MS_RDONLY == 0 {
		return remount(destHost, remountFlags, req.Data)
	}

	f, _, err := resolveDestination(e.containerRoot, destHost)
	if err != nil {
		return fmt.Errorf("open %s for deferred remount: %w", destHost, err)
	}
	e.deferred = append(e.deferred, deferredRemount{f: f, flags: remountFlags, data: req.Data})
	return nil
}

// Finalize walks the deferred-remount list in insertion order and applies
// each recorded remount against its owned fd, then closes the fd. It must
// be called after every other mount request has been applied (and after
// Finalize returns, the deferred list is empty: every fd it held has been
// closed, matching the spec's "consumed by the remount pass" ownership
// rule).
func (e *Engine) Finalize() error {
	var firstErr error
	for _, d := range e.deferred {
		target := fmt.Sprintf("/proc/self/fd/%d", d.f.Fd())
		if err := remount(target, d.flags, d.data); err != nil {
			e.log.Warningf("failed to remount %s: %s", target, err)
			if firstErr == nil {
				firstErr = err
			}
		}
		if err := d.f.Close(); err != nil {
			e.log.Warningf("failed to close deferred remount fd: %s", err)
		}
	}
	e.deferred = nil
	return firstErr
}

// Close tears down any deferred-remount fds without applying their
// remount; used when container setup aborts before Finalize runs. Rather
// than leaving a half-configured mount in place, each owned destination is
// given a best-effort lazy unmount (MNT_DETACH) before its fd is closed —
// setup has already failed, so this cannot make the container worse, and
// it avoids leaking a mount whose final flags (e.g. read-only) never got
// applied.
func (e *Engine) Close() {
	for _, d := range e.deferred {
		target := fmt.Sprintf("/proc/self/fd/%d", d.f.Fd())
		if err := unix.Unmount(target, unix.MNT_DETACH); err != nil {
			e.log.Warningf("failed to lazily unmount %s: %s", target, err)
		}
		_ = d.f.Close()
	}
	e.deferred = nil
}
