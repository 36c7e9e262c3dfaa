// Copyright (c) 2024, The ll-box Authors. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.
package cgroup

import (
	"testing"

	"github.com/linglong-ll/ll-box/internal/pkg/box/boxtest"
	"github.com/linglong-ll/ll-box/internal/pkg/box/config"
	"gotest.tools/v3/assert"
)

func TestBuildResourcesSkipsUnconfiguredDefaults(t *testing.T) {
	res := buildResources(config.Resources{
		MemoryLimit: -1,
		CPUShares:   1024,
		CPUPeriod:   100000,
		CPUQuota:    100000,
	})
	assert.Assert(t, res.Memory == nil)
	assert.Assert(t, res.CPU == nil)
}

func TestBuildResourcesSetsMemoryLimit(t *testing.T) {
	res := buildResources(config.Resources{MemoryLimit: 1 << 20, CPUShares: 1024, CPUPeriod: 100000, CPUQuota: 100000})
	assert.Assert(t, res.Memory != nil)
	assert.Equal(t, *res.Memory.Max, int64(1<<20))
}

func TestBuildResourcesSetsSwapAsDelta(t *testing.T) {
	res := buildResources(config.Resources{
		MemoryLimit: 1 << 20, MemorySwap: 3 << 20,
		CPUShares: 1024, CPUPeriod: 100000, CPUQuota: 100000,
	})
	assert.Equal(t, *res.Memory.Swap, int64(2<<20))
}

func TestBuildResourcesSetsCPUWeightFromShares(t *testing.T) {
	res := buildResources(config.Resources{MemoryLimit: -1, CPUShares: 2048, CPUPeriod: 100000, CPUQuota: 100000})
	assert.Assert(t, res.CPU != nil)
	assert.Equal(t, *res.CPU.Weight, config.CPUWeight(2048))
}

func TestSetupRequiresRootAndCgroupV2(t *testing.T) {
	boxtest.Root(t)
	boxtest.Cgroups(t)
	t.Skip("exercising a real cgroup2 mount + manager round trip belongs to an integration suite")
}
