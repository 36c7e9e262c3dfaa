// Copyright (c) 2024, The ll-box Authors. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.
package nsinit

import (
	"errors"
	"os"
	"path/filepath"

	"github.com/linglong-ll/ll-box/internal/pkg/box/boxerr"
	"github.com/linglong-ll/ll-box/internal/pkg/box/sylog"
	"golang.org/x/sys/unix"
)

// putOldDir is where the pre-pivot root is parked before being detached.
const putOldDir = "run/ll-host"

// defaultDevices are bind-mounted from the host into the rootfs's /dev;
// the engine runs unprivileged inside a user namespace and so cannot
// mknod them itself.
var defaultDevices = []string{"null", "zero", "full", "random", "urandom", "tty"}

// pivotRoot performs the bind-onto-itself + pivot_root + chroot sequence
// that swaps the process's root filesystem for containerRoot, then hooks
// in the default device nodes and the fallback /dev symlinks.
// Any failure aborts; the caller has already run finalize_mounts, so
// there is nothing partial left to unwind here beyond what unwinds on
// process exit.
func pivotRoot(containerRoot string, log *sylog.Logger) error {
	if err := unix.Chdir(containerRoot); err != nil {
		return boxerr.NewFatal("pivot_root_chdir_root", err)
	}
	if err := unix.Mount(".", ".", "", unix.MS_BIND|unix.MS_REC, ""); err != nil {
		return boxerr.NewFatal("pivot_root_bind_self", err)
	}

	putOld := filepath.Join(containerRoot, putOldDir)
	if err := os.MkdirAll(putOld, 0o755); err != nil {
		return boxerr.NewFatal("pivot_root_mkdir_put_old", err)
	}

	if err := unix.PivotRoot(containerRoot, putOld); err != nil {
		return boxerr.NewFatal("pivot_root", err)
	}

	if err := unix.Chdir("/"); err != nil {
		return boxerr.NewFatal("pivot_root_chdir_slash", err)
	}
	if err := unix.Chroot("."); err != nil {
		return boxerr.NewFatal("pivot_root_chroot", err)
	}
	if err := unix.Chdir("/"); err != nil {
		return boxerr.NewFatal("pivot_root_chdir_slash_after_chroot", err)
	}

	bindDefaultDevices(log)

	if err := unix.Unmount(putOldDir, unix.MNT_DETACH); err != nil {
		log.Warningf("failed to detach old root at %s: %s", putOldDir, err)
	}

	fallbackSymlinks(log)
	return nil
}

// fallbackSymlinks recreates the handful of /dev entries that normally
// come from devtmpfs, which this engine never mounts because it has no
// privilege to. EEXIST is expected whenever the rootfs already ships a
// real entry and is silently ignored.
func fallbackSymlinks(log *sylog.Logger) {
	links := [][2]string{
		{"/proc/kcore", "/dev/core"},
		{"/proc/self/fd", "/dev/fd"},
		{"/proc/self/fd/0", "/dev/stdin"},
		{"/proc/self/fd/1", "/dev/stdout"},
		{"/proc/self/fd/2", "/dev/stderr"},
		{"/dev/pts/ptmx", "/dev/ptmx"},
	}
	for _, l := range links {
		if err := os.Symlink(l[0], l[1]); err != nil && !errors.Is(err, os.ErrExist) {
			log.Warningf("failed to create fallback symlink %s -> %s: %s", l[1], l[0], err)
		}
	}
}

// bindDefaultDevices bind-mounts /dev/{null,zero,full,random,urandom,tty}
// from the host into the already-pivoted rootfs, reading the host devices
// through the old root parked at putOldDir, so it must run before that is
// detached. A missing host device is a warning rather than a fatal error,
// since headless hosts sometimes lack /dev/tty.
func bindDefaultDevices(log *sylog.Logger) {
	for _, name := range defaultDevices {
		host := filepath.Join("/", putOldDir, "dev", name)
		dst := filepath.Join("/dev", name)

		if _, err := os.Stat(host); err != nil {
			log.Warningf("default device %s unavailable on host: %s", host, err)
			continue
		}
		if err := ensureRegularFile(dst); err != nil {
			log.Warningf("failed to prepare device node %s: %s", dst, err)
			continue
		}
		if err := unix.Mount(host, dst, "", unix.MS_BIND, ""); err != nil {
			log.Warningf("failed to bind device %s: %s", host, err)
		}
	}
}

func ensureRegularFile(path string) error {
	f, err := os.OpenFile(path, os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	return f.Close()
}

