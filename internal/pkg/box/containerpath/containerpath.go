// Copyright (c) 2024, The ll-box Authors. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

// Package containerpath gives container-relative destinations (the
// "destination" field of a mount request, bind-mount targets, device node
// paths) a distinct type instead of raw strings concatenated with a host
// root. A Path rejects embedded NULs, is always rooted at "/" relative to
// the container, and can never climb above that root: it never mixes with
// a host path except through HostPath, which resolves it against a root
// using cyphar/filepath-securejoin so the resolution itself cannot be
// tricked by a symlink planted inside the rootfs.
package containerpath

import (
	"fmt"
	"path"
	"strings"

	securejoin "github.com/cyphar/filepath-securejoin"
)

// Path is a cleaned, rootfs-relative container path. The zero value is "/".
type Path struct {
	rel string // always starts with "/", produced by path.Clean
}

// Root is the container's "/".
var Root = Path{rel: "/"}

// New validates and cleans a container-relative path. p is interpreted as
// rooted at the container regardless of whether it carries a leading "/".
// New rejects embedded NUL bytes; path.Clean already collapses any ".."
// that would otherwise climb above the root once the leading "/" is
// enforced, since Clean on an absolute path never produces a result above
// "/".
func New(p string) (Path, error) {
	if strings.IndexByte(p, 0) >= 0 {
		return Path{}, fmt.Errorf("containerpath: %q contains a NUL byte", p)
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return Path{rel: path.Clean(p)}, nil
}

// MustNew is New, panicking on error; reserved for literal paths baked
// into the engine itself (default device nodes, "/proc", "/dev").
func MustNew(p string) Path {
	cp, err := New(p)
	if err != nil {
		panic(err)
	}
	return cp
}

// String returns the cleaned container-relative path, always "/"-rooted.
func (p Path) String() string {
	if p.rel == "" {
		return "/"
	}
	return p.rel
}

// Join appends elem (itself validated as a fresh container path) to p and
// returns the combined, re-cleaned path.
func (p Path) Join(elem string) (Path, error) {
	child, err := New(elem)
	if err != nil {
		return Path{}, err
	}
	return New(path.Join(p.String(), child.String()))
}

// Base returns the final path element, e.g. "null" for "/dev/null".
func (p Path) Base() string {
	return path.Base(p.String())
}

// Dir returns the parent of p.
func (p Path) Dir() (Path, error) {
	return New(path.Dir(p.String()))
}

// HostPath resolves p against root using a symlink-aware, TOCTOU-safe join:
// every path component is resolved one at a time inside root, so a symlink
// planted at any point along p cannot cause the result to land outside
// root even if an attacker controls the rootfs contents between the check
// and the eventual mount(2) call. The returned string still names a path
// under root; callers that need a race-free handle to it (rather than a
// path that could be swapped out before use) should open it instead, as
// the mount engine does for destinations with an O_PATH fd whose
// /proc/self/fd/N link it checks against the root.
func (p Path) HostPath(root string) (string, error) {
	return securejoin.SecureJoin(root, p.String())
}

// Equal reports whether p and other name the same cleaned container path.
func (p Path) Equal(other Path) bool {
	return p.String() == other.String()
}
