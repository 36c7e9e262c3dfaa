// Copyright (c) 2024, The ll-box Authors. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

// Package cgroup applies cgroup-v2 resource limits to the container.
// Unlike the mount engine's general-purpose bind/dummy machinery, the
// handful of controller files this writes (memory.max, memory.swap.max,
// memory.low, cpu.max, cpu.weight, cgroup.procs) have a well-known
// third-party manager, so this package is a thin translation from the
// runtime document's Resources into containerd/cgroups/v3's own
// resource struct rather than a hand-rolled file writer.
package cgroup

import (
	"fmt"
	"os"

	"github.com/containerd/cgroups/v3/cgroup2"
	"github.com/linglong-ll/ll-box/internal/pkg/box/boxerr"
	"github.com/linglong-ll/ll-box/internal/pkg/box/config"
	"golang.org/x/sys/unix"
)

// leaf is the sub-hierarchy every container's processes are moved into;
// the engine never nests per-container sub-hierarchies beneath it.
const leaf = "/ll-box"

// Controller owns the manager for one container's cgroup-v2 leaf.
type Controller struct {
	mgr *cgroup2.Manager
}

// Setup creates cgroupsPath, mounts a fresh cgroup2 instance there,
// creates the ll-box leaf beneath it, and writes the resource limits
// that differ from config.decodeResources's defaults. It is a fatal
// error for the container whenever cgroup namespacing was requested
// (the caller only calls Setup in that case).
func Setup(cgroupsPath string, resources config.Resources) (*Controller, error) {
	if err := os.MkdirAll(cgroupsPath, 0o755); err != nil {
		return nil, boxerr.NewFatal("cgroup_mkdir", err)
	}
	if err := unix.Mount("cgroup2", cgroupsPath, "cgroup2", 0, ""); err != nil {
		return nil, boxerr.NewFatal("cgroup_mount", err)
	}

	mgr, err := cgroup2.NewManager(cgroupsPath, leaf, buildResources(resources))
	if err != nil {
		return nil, boxerr.NewFatal("cgroup_manager", err)
	}
	return &Controller{mgr: mgr}, nil
}

// AddProcess moves pid into the container's cgroup leaf; all future
// children it forks inherit cgroup membership from the kernel.
func (c *Controller) AddProcess(pid int) error {
	if c == nil || c.mgr == nil {
		return nil
	}
	if err := c.mgr.AddProc(uint64(pid)); err != nil {
		return boxerr.NewFatal("cgroup_add_proc", fmt.Errorf("pid %d: %w", pid, err))
	}
	return nil
}

// buildResources translates the engine's own Resources into
// containerd/cgroups/v3's wire struct, setting only the fields that
// differ from decodeResources's documented defaults so an unconfigured
// resource is left to the kernel's own cgroup2 defaults rather than
// pinned to a value the caller never asked for.
func buildResources(r config.Resources) *cgroup2.Resources {
	res := &cgroup2.Resources{}

	if r.MemoryLimit > 0 {
		limit := r.MemoryLimit
		res.Memory = &cgroup2.Memory{Max: &limit}
		if r.MemorySwap > r.MemoryLimit {
			swap := r.MemorySwap - r.MemoryLimit
			res.Memory.Swap = &swap
		}
	}
	if r.MemoryReservation > 0 {
		if res.Memory == nil {
			res.Memory = &cgroup2.Memory{}
		}
		low := r.MemoryReservation
		res.Memory.Low = &low
	}

	const defaultShares = 1024
	const defaultPeriod = uint64(100000)
	const defaultQuota = int64(100000)

	if r.CPUPeriod != defaultPeriod || r.CPUQuota != defaultQuota {
		period := r.CPUPeriod
		quota := r.CPUQuota
		res.CPU = &cgroup2.CPU{Max: cgroup2.NewCPUMax(&quota, &period)}
	}
	if r.CPUShares != defaultShares {
		weight := config.CPUWeight(r.CPUShares)
		if res.CPU == nil {
			res.CPU = &cgroup2.CPU{}
		}
		res.CPU.Weight = &weight
	}

	return res
}
