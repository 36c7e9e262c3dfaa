// Copyright (c) 2024, The ll-box Authors. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.
package fsdriver

import "github.com/linglong-ll/ll-box/internal/pkg/box/containerpath"

// Native uses a host directory directly as the container rootfs: the
// common case where the caller has already assembled root.path (e.g. via
// an earlier overlay-composition pass done by the packaging layer itself).
type Native struct {
	root string
}

// NewNative returns a Driver backed directly by root.
func NewNative(root string) *Native {
	return &Native{root: root}
}

func (n *Native) Setup() error { return nil }

func (n *Native) HostRoot() string { return n.root }

func (n *Native) HostPath(p containerpath.Path) (string, error) {
	return p.HostPath(n.root)
}

func (n *Native) Close() error { return nil }
