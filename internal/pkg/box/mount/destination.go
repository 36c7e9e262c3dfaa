// Copyright (c) 2024, The ll-box Authors. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.
package mount

import (
	"fmt"
	"os"
	"strings"

	"golang.org/x/sys/unix"
)

// hostileDestination is returned by resolveDestination when the canonical
// path of a destination escapes containerRoot; this is always fatal for
// the whole container, never a per-mount warning.
type hostileDestination struct {
	requested string
	resolved  string
}

func (e *hostileDestination) Error() string {
	return fmt.Sprintf("possibly malicious path detected (%s resolves to %s outside containerRoot) -- refusing to operate", e.requested, e.resolved)
}

// resolveDestination opens destination with O_PATH|O_CLOEXEC and reads its
// canonical path back through /proc/self/fd/N before any mount(2) call is
// issued. This closes the race a plain lstat-then-mount would leave open:
// between the check and the mount syscall an attacker with write access to
// the rootfs could swap a path component for a symlink pointing outside
// containerRoot. Every subsequent mount(2) against the returned fd target
// operates on the already-opened inode, not the path string, so the swap
// cannot matter even if it happens immediately after this call returns.
//
// The returned *os.File must be kept alive (and is the caller's to close)
// for exactly as long as its /proc/self/fd/N path needs to remain valid as
// a mount(2) target.
func resolveDestination(containerRoot, destination string) (*os.File, string, error) {
	fd, err := unix.Open(destination, unix.O_PATH|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, "", fmt.Errorf("open destination %s: %w", destination, err)
	}
	f := os.NewFile(uintptr(fd), destination)

	fdPath := fmt.Sprintf("/proc/self/fd/%d", fd)
	resolved, err := os.Readlink(fdPath)
	if err != nil {
		f.Close()
		return nil, "", fmt.Errorf("readlink %s: %w", fdPath, err)
	}

	if !strings.HasPrefix(resolved, containerRoot) {
		f.Close()
		return nil, "", &hostileDestination{requested: destination, resolved: resolved}
	}

	return f, fdPath, nil
}

// mountAt resolves destination safely and then mounts source onto it,
// issuing the actual mount(2) call against the /proc/self/fd/N path rather
// than the caller-supplied destination string.
func mountAt(containerRoot, destination, source, fsType string, flags uintptr, data string) error {
	f, fdPath, err := resolveDestination(containerRoot, destination)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := unix.Mount(source, fdPath, fsType, flags, data); err != nil {
		return fmt.Errorf("mount %s -> %s (fsType=%s flags=%#x): %w", source, destination, fsType, flags, err)
	}
	return nil
}
