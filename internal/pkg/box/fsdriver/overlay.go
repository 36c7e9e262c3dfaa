// Copyright (c) 2024, The ll-box Authors. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.
package fsdriver

import (
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/linglong-ll/ll-box/internal/pkg/box/containerpath"
	"github.com/linglong-ll/ll-box/internal/pkg/box/sylog"
)

// Overlay backs the container rootfs with fuse-overlayfs, stacking the
// layered base/runtime/app/extension directories the packaging system
// hands us as read-only lowerdirs under one writable upper.
type Overlay struct {
	LowerDirs []string
	UpperDir  string
	WorkDir   string
	Mountpoint string

	log *sylog.Logger
	cmd *exec.Cmd
}

// NewOverlay returns a Driver that mounts lowerDirs (outermost first,
// matching fuse-overlayfs's own lowerdir ordering) with upperDir as the
// writable layer, at mountpoint.
func NewOverlay(lowerDirs []string, upperDir, workDir, mountpoint string, log *sylog.Logger) *Overlay {
	return &Overlay{LowerDirs: lowerDirs, UpperDir: upperDir, WorkDir: workDir, Mountpoint: mountpoint, log: log}
}

func (o *Overlay) Setup() error {
	if len(o.LowerDirs) == 0 {
		return fmt.Errorf("overlay: at least one lowerdir is required")
	}
	if err := os.MkdirAll(o.Mountpoint, 0o755); err != nil {
		return fmt.Errorf("overlay: create mountpoint %s: %w", o.Mountpoint, err)
	}

	opts := fmt.Sprintf("lowerdir=%s", strings.Join(o.LowerDirs, ":"))
	if o.UpperDir != "" {
		opts += fmt.Sprintf(",upperdir=%s,workdir=%s", o.UpperDir, o.WorkDir)
	}

	args := []string{"-o", opts, o.Mountpoint}
	o.log.Debugf("executing fuse-overlayfs %s", strings.Join(args, " "))

	cmd := exec.Command("fuse-overlayfs", args...)
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("overlay: fuse-overlayfs %s: %w", strings.Join(args, " "), err)
	}
	o.cmd = cmd
	return nil
}

func (o *Overlay) HostRoot() string { return o.Mountpoint }

func (o *Overlay) HostPath(p containerpath.Path) (string, error) {
	return p.HostPath(o.Mountpoint)
}

func (o *Overlay) Close() error {
	if o.cmd == nil {
		return nil
	}
	cmd := exec.Command("fusermount", "-u", o.Mountpoint)
	cmd.Stderr = os.Stderr
	return cmd.Run()
}
