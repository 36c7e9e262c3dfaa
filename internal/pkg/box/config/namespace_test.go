// Copyright (c) 2024, The ll-box Authors. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.
package config

import (
	"testing"

	specs "github.com/opencontainers/runtime-spec/specs-go"
	"golang.org/x/sys/unix"
	"gotest.tools/v3/assert"
)

func TestDecodeNamespacesAlwaysForcesMountAndUser(t *testing.T) {
	ns, err := decodeNamespaces(nil)
	assert.NilError(t, err)

	var flags uintptr
	for _, n := range ns {
		flags |= n.Flag
	}
	assert.Assert(t, flags&unix.CLONE_NEWNS != 0)
	assert.Assert(t, flags&unix.CLONE_NEWUSER != 0)
}

func TestDecodeNamespacesMergesRequested(t *testing.T) {
	ns, err := decodeNamespaces([]specs.LinuxNamespace{
		{Type: specs.PIDNamespace},
		{Type: specs.UTSNamespace},
	})
	assert.NilError(t, err)
	assert.Equal(t, CloneFlags(ns), uintptr(unix.CLONE_NEWNS|unix.CLONE_NEWUSER|unix.CLONE_NEWPID|unix.CLONE_NEWUTS))
}

func TestDecodeNamespacesRejectsUnknown(t *testing.T) {
	_, err := decodeNamespaces([]specs.LinuxNamespace{{Type: "bogus"}})
	assert.ErrorContains(t, err, "unsupported namespace type")
}

func TestDecodeNamespacesDeduplicates(t *testing.T) {
	ns, err := decodeNamespaces([]specs.LinuxNamespace{
		{Type: specs.MountNamespace},
		{Type: specs.UserNamespace},
	})
	assert.NilError(t, err)
	assert.Equal(t, len(ns), 2)
}
