// Copyright (c) 2024, The ll-box Authors. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

// Package boxtest provides skip helpers for tests that need a kernel
// feature (a working user namespace, cgroup-v2) or root privileges the
// test host may not grant — CI containers and unprivileged sandboxes
// routinely lack them. Trimmed from the teacher's require package down to
// the three checks the box engine's own tests actually need.
package boxtest

import (
	"os"
	"os/exec"
	"sync"
	"syscall"
	"testing"
)

var (
	hasUserNamespaceOnce sync.Once
	hasUserNamespace     bool
)

// UserNamespace skips the test unless the current host can create a user
// namespace. There is no cheap way to probe this beyond actually trying.
func UserNamespace(t *testing.T) {
	hasUserNamespaceOnce.Do(func() {
		cmd := exec.Command("/bin/true")
		cmd.SysProcAttr = &syscall.SysProcAttr{Cloneflags: syscall.CLONE_NEWUSER}
		err := cmd.Run()
		hasUserNamespace = err == nil
		if !hasUserNamespace {
			t.Logf("could not create a user namespace: %s", err)
		}
	})
	if !hasUserNamespace {
		t.Skip("user namespaces not enabled or supported on this host")
	}
}

var (
	hasCgroupV2Once sync.Once
	hasCgroupV2     bool
)

// Cgroups skips the test unless cgroup-v2 (the only mode this engine
// supports, per spec non-goals) is mounted as the unified hierarchy.
func Cgroups(t *testing.T) {
	hasCgroupV2Once.Do(func() {
		var st syscall.Statfs_t
		if err := syscall.Statfs("/sys/fs/cgroup", &st); err != nil {
			t.Logf("could not statfs /sys/fs/cgroup: %s", err)
			return
		}
		const cgroup2SuperMagic = 0x63677270
		hasCgroupV2 = st.Type == cgroup2SuperMagic
	})
	if !hasCgroupV2 {
		t.Skip("cgroup-v2 unified hierarchy not mounted on this host")
	}
}

// Root skips the test unless it is running as uid 0; used for the handful
// of assertions (pivot_root, device bind mounts) that cannot be exercised
// from inside an already-unprivileged test binary at all.
func Root(t *testing.T) {
	if os.Geteuid() != 0 {
		t.Skip("test requires root privileges")
	}
}
