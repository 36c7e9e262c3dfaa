// Copyright (c) 2024, The ll-box Authors. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.
package config

import (
	"testing"

	"gotest.tools/v3/assert"
)

func TestCPUWeightMapping(t *testing.T) {
	tests := []struct {
		shares uint64
		want   uint64
	}{
		{2, 1},
		{1024, 39},
		{262144, 10000},
	}
	for _, tt := range tests {
		assert.Equal(t, CPUWeight(tt.shares), tt.want)
	}
}

func TestCPUWeightMonotonic(t *testing.T) {
	prev := CPUWeight(2)
	for shares := uint64(100); shares <= 262144; shares += 5000 {
		w := CPUWeight(shares)
		assert.Assert(t, w >= prev, "weight must be monotonic: shares=%d got=%d prev=%d", shares, w, prev)
		prev = w
	}
}

func TestCPUWeightClampsOutOfRangeShares(t *testing.T) {
	assert.Equal(t, CPUWeight(0), uint64(1))
	assert.Equal(t, CPUWeight(1_000_000), uint64(10000))
}

func TestDecodeResourcesDefaults(t *testing.T) {
	r := decodeResources(nil)
	assert.Equal(t, r.MemoryLimit, int64(-1))
	assert.Equal(t, r.CPUShares, uint64(1024))
	assert.Equal(t, r.CPUPeriod, uint64(100000))
	assert.Equal(t, r.CPUQuota, int64(100000))
}
