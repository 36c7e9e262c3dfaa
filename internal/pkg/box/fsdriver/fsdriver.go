// Copyright (c) 2024, The ll-box Authors. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

// Package fsdriver abstracts over what actually backs the container
// rootfs before the mount engine and pivot_root sequencer run against it:
// a host directory used directly (Native), a fuse-overlayfs process
// stacking several read-only layers under one writable upper (Overlay),
// or an out-of-process proxy fed a list of virtual mounts (Proxy). The
// engine selects one at construction and talks to it only through the
// Driver interface afterwards.
package fsdriver

import (
	"github.com/linglong-ll/ll-box/internal/pkg/box/containerpath"
)

// Driver abstracts the backing of the assembled container rootfs.
type Driver interface {
	// Setup prepares the backing store: a no-op for Native; for Overlay it
	// runs fuse-overlayfs and waits for that command to exit; for Proxy it
	// starts the helper and returns once the descriptor list is written,
	// without waiting for the helper to report that it is ready.
	Setup() error
	// HostRoot is the absolute host path that stands in for "/" once
	// Setup has returned.
	HostRoot() string
	// HostPath resolves a container-relative path against HostRoot,
	// using containerpath's symlink-aware join.
	HostPath(p containerpath.Path) (string, error)
	// Close tears down any helper process Setup started. Safe to call on
	// a driver whose Setup never ran or already failed.
	Close() error
}
