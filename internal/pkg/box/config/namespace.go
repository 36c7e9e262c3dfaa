// Copyright (c) 2024, The ll-box Authors. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.
package config

import (
	"fmt"

	specs "github.com/opencontainers/runtime-spec/specs-go"
	"golang.org/x/sys/unix"
)

// Namespace is a requested kernel namespace, already resolved to its clone
// flag.
type Namespace struct {
	Type specs.LinuxNamespaceType
	Flag uintptr
}

var namespaceFlags = map[specs.LinuxNamespaceType]uintptr{
	specs.IPCNamespace:     unix.CLONE_NEWIPC,
	specs.UTSNamespace:     unix.CLONE_NEWUTS,
	specs.MountNamespace:   unix.CLONE_NEWNS,
	specs.PIDNamespace:     unix.CLONE_NEWPID,
	specs.NetworkNamespace: unix.CLONE_NEWNET,
	specs.UserNamespace:    unix.CLONE_NEWUSER,
	specs.CgroupNamespace:  unix.CLONE_NEWCGROUP,
}

// decodeNamespaces validates the requested namespace list and forces mount
// and user namespaces on regardless of whether the caller asked for them:
// the engine cannot assemble a mount tree or drop privilege without them.
func decodeNamespaces(requested []specs.LinuxNamespace) ([]Namespace, error) {
	seen := map[specs.LinuxNamespaceType]bool{}
	var out []Namespace

	add := func(t specs.LinuxNamespaceType) error {
		if seen[t] {
			return nil
		}
		flag, ok := namespaceFlags[t]
		if !ok {
			return fmt.Errorf("unsupported namespace type %q", t)
		}
		seen[t] = true
		out = append(out, Namespace{Type: t, Flag: flag})
		return nil
	}

	if err := add(specs.MountNamespace); err != nil {
		return nil, err
	}
	if err := add(specs.UserNamespace); err != nil {
		return nil, err
	}
	for _, ns := range requested {
		if err := add(ns.Type); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// CloneFlags ORs together the clone(2) flags for the given namespace set.
func CloneFlags(namespaces []Namespace) uintptr {
	var flags uintptr
	for _, ns := range namespaces {
		flags |= ns.Flag
	}
	return flags
}
