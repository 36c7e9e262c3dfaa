// Copyright (c) 2024, The ll-box Authors. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.
package config

import specs "github.com/opencontainers/runtime-spec/specs-go"

// Resources is the decoded, defaulted subset of linux.resources that the
// cgroup-v2 controller needs.
type Resources struct {
	MemoryLimit       int64 // bytes; -1 means unset
	MemorySwap        int64
	MemoryReservation int64
	CPUShares         uint64
	CPUPeriod         uint64
	CPUQuota          int64
}

func decodeResources(r *specs.LinuxResources) Resources {
	res := Resources{
		MemoryLimit: -1,
		CPUShares:   1024,
		CPUPeriod:   100000,
		CPUQuota:    100000,
	}
	if r == nil {
		return res
	}
	if r.Memory != nil {
		if r.Memory.Limit != nil {
			res.MemoryLimit = *r.Memory.Limit
		}
		if r.Memory.Swap != nil {
			res.MemorySwap = *r.Memory.Swap
		}
		if r.Memory.Reservation != nil {
			res.MemoryReservation = *r.Memory.Reservation
		}
	}
	if r.CPU != nil {
		if r.CPU.Shares != nil {
			res.CPUShares = *r.CPU.Shares
		}
		if r.CPU.Period != nil {
			res.CPUPeriod = *r.CPU.Period
		}
		if r.CPU.Quota != nil {
			res.CPUQuota = *r.CPU.Quota
		}
	}
	return res
}

// CPUWeight maps cgroup-v1-style cpu.shares (2..262144) onto the cgroup-v2
// cpu.weight range [1, 10000] using 1 + (shares-2)*9999/262142.
func CPUWeight(shares uint64) uint64 {
	if shares < 2 {
		shares = 2
	}
	if shares > 262144 {
		shares = 262144
	}
	weight := 1 + (shares-2)*9999/262142
	if weight < 1 {
		weight = 1
	}
	if weight > 10000 {
		weight = 10000
	}
	return weight
}
