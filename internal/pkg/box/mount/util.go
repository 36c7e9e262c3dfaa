// Copyright (c) 2024, The ll-box Authors. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.
package mount

import (
	"fmt"
	"path/filepath"
	"strings"

	"golang.org/x/sys/unix"
)

// joinContainerRoot resolves a container-relative destination (absolute or
// not) against containerRoot, the way toHostDestination does: a leading
// "/" is stripped rather than treated as an escape back to the real root.
func joinContainerRoot(containerRoot, destination string) string {
	return filepath.Join(containerRoot, strings.TrimPrefix(destination, "/"))
}

// remount issues the deferred MS_REMOUNT call against target (a path or,
// for the deferred pass, a /proc/self/fd/N string). On the first EINVAL it
// inspects statfs(2)'s reported flags and ORs in whichever of
// MS_NOSUID|MS_NODEV|MS_NOEXEC (and MS_RDONLY, if the filesystem is
// already read-only) the kernel requires to be preserved across a
// remount, then retries once.
func remount(target string, flags uintptr, data string) error {
	dataArg := data
	if flags&(unix.MS_REMOUNT|unix.MS_RDONLY) != 0 {
		dataArg = ""
	}

	err := unix.Mount("none", target, "", flags, dataArg)
	if err == nil {
		return nil
	}
	if err != unix.EINVAL {
		return fmt.Errorf("remount %s: %w", target, err)
	}

	var sfs unix.Statfs_t
	if statErr := unix.Statfs(target, &sfs); statErr != nil {
		return fmt.Errorf("statfs %s: %w", target, statErr)
	}

	preserved := uintptr(sfs.Flags) & (unix.MS_NOSUID | unix.MS_NODEV | unix.MS_NOEXEC | unix.MS_RDONLY)
	if flags|preserved == flags {
		return fmt.Errorf("remount %s: %w", target, err)
	}

	if err := unix.Mount("", target, "", flags|preserved, dataArg); err != nil {
		return fmt.Errorf("remount %s (with preserved flags): %w", target, err)
	}
	return nil
}
