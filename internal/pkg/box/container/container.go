// Copyright (c) 2024, The ll-box Authors. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

// Package container wires the config decoder, filesystem driver, state
// reporter, and the entry-process launcher in nsinit into the single
// top-level entity cmd/ll-box drives: read a document, start a container,
// wait for it, translate the exit code, clean up.
package container

import (
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/linglong-ll/ll-box/internal/pkg/box/boxerr"
	"github.com/linglong-ll/ll-box/internal/pkg/box/config"
	"github.com/linglong-ll/ll-box/internal/pkg/box/fsdriver"
	"github.com/linglong-ll/ll-box/internal/pkg/box/nsinit"
	"github.com/linglong-ll/ll-box/internal/pkg/box/state"
	"github.com/linglong-ll/ll-box/internal/pkg/box/sylog"
)

// Annotation keys the original ll-box reads out of the runtime document to
// populate the state record and (supplemented here) to pick a non-default
// filesystem driver; every key is optional and defaults to the empty value.
const (
	annotationContainerID = "org.deepin.linglong.containerID"
	annotationApp         = "org.deepin.linglong.app"
	annotationBase        = "org.deepin.linglong.base"
	annotationRuntime     = "org.deepin.linglong.runtime"
	annotationExtensions  = "org.deepin.linglong.extensions"

	annotationDriver       = "org.deepin.linglong.box.filesystemDriver"
	annotationOverlayLower = "org.deepin.linglong.box.overlay.lowerDirs"
	annotationOverlayUpper = "org.deepin.linglong.box.overlay.upperDir"
	annotationOverlayWork  = "org.deepin.linglong.box.overlay.workDir"
	annotationProxyHelper  = "org.deepin.linglong.box.proxy.helperPath"
)

// ResolveID returns the container identifier the caller passed in via the
// well-known annotation, or generates a fresh random one (via
// github.com/google/uuid) when the caller didn't set it — the external
// interface documents the id as "passed in by the caller" but does not
// require it, so an absent value must not crash the engine.
func ResolveID(spec *config.RuntimeSpec) string {
	if id := spec.Annotations[annotationContainerID]; id != "" {
		return id
	}
	return uuid.NewString()
}

// Container is one launched instance of the engine: a decoded runtime
// spec, the filesystem driver backing its rootfs, and (once Run has been
// called) the entry process's pid.
type Container struct {
	spec   *config.RuntimeSpec
	driver fsdriver.Driver
	log    *sylog.Logger

	id     string
	uid    int
	entry  *nsinit.EntryResult
	closed bool
}

// New decodes no further than spec itself; it selects a filesystem driver
// from the document's annotations (native unless the annotations name an
// overlay or proxy configuration) and resolves id/uid for the state
// record. id is the caller-supplied container identifier named in the
// external interface's state-record path.
func New(spec *config.RuntimeSpec, id string, log *sylog.Logger) (*Container, error) {
	if log == nil {
		log = sylog.Default
	}

	driver, err := selectDriver(spec, log)
	if err != nil {
		return nil, boxerr.NewFatal("select_filesystem_driver", err)
	}

	return &Container{
		spec:   spec,
		driver: driver,
		log:    log,
		id:     id,
		uid:    os.Getuid(),
	}, nil
}

func selectDriver(spec *config.RuntimeSpec, log *sylog.Logger) (fsdriver.Driver, error) {
	switch spec.Annotations[annotationDriver] {
	case "", "native":
		return fsdriver.NewNative(spec.Root.Path), nil
	case "overlay":
		lower := strings.Split(spec.Annotations[annotationOverlayLower], ":")
		upper := spec.Annotations[annotationOverlayUpper]
		work := spec.Annotations[annotationOverlayWork]
		if upper == "" || work == "" {
			return nil, fmt.Errorf("overlay driver requires %s and %s annotations", annotationOverlayUpper, annotationOverlayWork)
		}
		return fsdriver.NewOverlay(lower, upper, work, spec.Root.Path, log), nil
	case "proxy":
		helper := spec.Annotations[annotationProxyHelper]
		if helper == "" {
			return nil, fmt.Errorf("proxy driver requires %s annotation", annotationProxyHelper)
		}
		entries := []fsdriver.Entry{{Source: spec.Root.Path, Destination: "/"}}
		return fsdriver.NewProxy(helper, spec.Root.Path, entries, log), nil
	default:
		return nil, fmt.Errorf("unknown filesystem driver %q", spec.Annotations[annotationDriver])
	}
}

// rootfsPath is the host path standing in for "/" once the driver's Setup
// has run; used only for log messages, matching the original's practice
// of logging the assembled root path at Info level on a mount failure.
func (c *Container) rootfsPath() string {
	return c.driver.HostRoot()
}

// Run assembles the filesystem backing, writes the state record, and
// spawns the entry process. The caller must call Wait (and eventually
// Close) regardless of the error Run returns, since the filesystem driver
// and state record may already have been set up.
func (c *Container) Run() error {
	if err := c.driver.Setup(); err != nil {
		return boxerr.NewFatal("filesystem_driver_setup", err)
	}
	c.log.Infof("container: rootfs assembled at %s", c.rootfsPath())

	rec := state.Record{
		ContainerID: c.id,
		App:         c.spec.Annotations[annotationApp],
		Base:        c.spec.Annotations[annotationBase],
		Runtime:     c.spec.Annotations[annotationRuntime],
	}
	if ext := c.spec.Annotations[annotationExtensions]; ext != "" {
		rec.Extensions = strings.Split(ext, ":")
	}
	if err := state.Write(c.uid, rec); err != nil {
		c.log.Warningf("container: write state record: %s", err)
	}

	entry, err := nsinit.SpawnEntry(c.spec, c.log)
	if err != nil {
		return boxerr.NewFatal("spawn_entry", err)
	}
	c.entry = entry
	return nil
}

// Wait blocks until the entry process (and transitively the whole
// container) has exited, and translates its status into the engine exit
// code documented in the external interface: 0 if the payload exited 0,
// otherwise the payload's own exit code, or -1 if the entry process could
// not even be waited on.
func (c *Container) Wait() int {
	if c.entry == nil {
		return -1
	}
	proc, err := os.FindProcess(c.entry.Pid)
	if err != nil {
		c.log.Errorf("container: find entry process %d: %s", c.entry.Pid, err)
		return -1
	}
	ws, err := proc.Wait()
	if err != nil {
		c.log.Errorf("container: wait entry process %d: %s", c.entry.Pid, err)
		return -1
	}
	return ws.ExitCode()
}

// Close removes the state record and tears down the filesystem driver's
// helper process, if any. It is always best-effort: a failure here never
// escalates the container's exit code.
func (c *Container) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true

	if err := state.Remove(c.uid, c.id); err != nil {
		c.log.Warningf("container: remove state record: %s", err)
	}
	if err := c.driver.Close(); err != nil {
		return boxerr.NewBestEffort("close_filesystem_driver", err)
	}
	return nil
}
