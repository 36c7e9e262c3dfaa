// Copyright (c) 2024, The ll-box Authors. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

// Package config parses the runtime document into the engine's working
// types: a RuntimeSpec tree, a decoded mount-option bitmask per mount
// request, and validated namespace/resource values. The wire shape is the
// OCI runtime-spec JSON described in the external interface, so decoding
// leans on specs-go for every field it already models faithfully and adds
// only the engine-local derivations (fsType classification, compiled mount
// flags, forced NS+USER namespaces, the cpu-shares-to-weight formula).
package config

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/linglong-ll/ll-box/internal/pkg/box/boxerr"
	specs "github.com/opencontainers/runtime-spec/specs-go"
)

// RuntimeSpec is the parsed, validated runtime document. It is immutable
// once returned by Decode.
type RuntimeSpec struct {
	OCIVersion  string
	Hostname    string
	Process     Process
	Root        Root
	Mounts      []MountRequest
	Namespaces  []Namespace
	UIDMappings []IDMapping
	GIDMappings []IDMapping
	CgroupsPath string
	Resources   Resources
	Seccomp     *specs.LinuxSeccomp
	Hooks       Hooks
	Annotations map[string]string
}

// Process is the payload command the non-privileged init execs.
type Process struct {
	Args []string
	Env  []string
	Cwd  string
}

// Root is the host filesystem backing the container rootfs before any
// filesystem driver runs.
type Root struct {
	Path     string
	Readonly bool
}

// IDMapping is one containerID/hostID/size triple for uid_map or gid_map.
type IDMapping struct {
	ContainerID uint32
	HostID      uint32
	Size        uint32
}

// Hooks groups the OCI hook lifecycle points the engine actually runs;
// poststart/poststop are carried through for the external interface but the
// engine itself only ever invokes prestart and startContainer (§4.7).
type Hooks struct {
	Prestart       []specs.Hook
	StartContainer []specs.Hook
	Poststart      []specs.Hook
	Poststop       []specs.Hook
}

// Decode reads and validates a runtime document from r. It fails closed:
// any malformed field, unknown enum token, or missing required value is
// returned as a *boxerr.Parse before anything is cloned or mounted.
func Decode(r io.Reader) (*RuntimeSpec, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, boxerr.NewFatal("read_runtime_document", err)
	}

	var spec specs.Spec
	if err := json.Unmarshal(raw, &spec); err != nil {
		return nil, boxerr.NewParse("<document>", err)
	}

	if spec.Process == nil || len(spec.Process.Args) == 0 {
		return nil, boxerr.NewParse("process.args", fmt.Errorf("must be non-empty"))
	}
	if spec.Root == nil || spec.Root.Path == "" {
		return nil, boxerr.NewParse("root.path", fmt.Errorf("must be set"))
	}

	rs := &RuntimeSpec{
		OCIVersion: spec.Version,
		Hostname:   spec.Hostname,
		Process: Process{
			Args: spec.Process.Args,
			Env:  spec.Process.Env,
			Cwd:  spec.Process.Cwd,
		},
		Root: Root{
			Path:     spec.Root.Path,
			Readonly: spec.Root.Readonly,
		},
		Annotations: spec.Annotations,
	}

	for i, m := range spec.Mounts {
		mr, err := decodeMountRequest(m)
		if err != nil {
			return nil, boxerr.NewParse(fmt.Sprintf("mounts[%d]", i), err)
		}
		rs.Mounts = append(rs.Mounts, mr)
	}

	if spec.Linux == nil {
		return nil, boxerr.NewParse("linux", fmt.Errorf("must be set"))
	}

	ns, err := decodeNamespaces(spec.Linux.Namespaces)
	if err != nil {
		return nil, boxerr.NewParse("linux.namespaces", err)
	}
	rs.Namespaces = ns

	for i, m := range spec.Linux.UIDMappings {
		rs.UIDMappings = append(rs.UIDMappings, IDMapping{ContainerID: m.ContainerID, HostID: m.HostID, Size: m.Size})
		_ = i
	}
	for _, m := range spec.Linux.GIDMappings {
		rs.GIDMappings = append(rs.GIDMappings, IDMapping{ContainerID: m.ContainerID, HostID: m.HostID, Size: m.Size})
	}
	if len(rs.UIDMappings) == 0 {
		return nil, boxerr.NewParse("linux.uidMappings", fmt.Errorf("must contain at least the identity mapping"))
	}

	rs.CgroupsPath = spec.Linux.CgroupsPath
	rs.Resources = decodeResources(spec.Linux.Resources)
	rs.Seccomp = spec.Linux.Seccomp

	if spec.Hooks != nil {
		rs.Hooks = Hooks{
			Prestart:       spec.Hooks.Prestart,
			StartContainer: spec.Hooks.StartContainer,
			Poststart:      spec.Hooks.Poststart,
			Poststop:       spec.Hooks.Poststop,
		}
	}

	return rs, nil
}
