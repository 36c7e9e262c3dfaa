// Copyright (c) 2024, The ll-box Authors. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

// Package idmap writes the uid_map/gid_map/setgroups triple that turns a
// freshly unshared user namespace into one where the calling process's
// real uid/gid map to whatever container ids the runtime document
// requested. The creator of a user namespace is permitted to write its
// own /proc/self/{uid,gid}_map exactly once; every subsequent attempt
// fails, so these calls are not idempotent and must run exactly once per
// namespace, immediately after the unshare/clone that created it.
package idmap

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/linglong-ll/ll-box/internal/pkg/box/boxerr"
	"github.com/linglong-ll/ll-box/internal/pkg/box/config"
)

// FormatIDMap renders mappings in the kernel's "containerID hostID size"
// line format, one mapping per line.
func FormatIDMap(mappings []config.IDMapping) string {
	var b strings.Builder
	for _, m := range mappings {
		fmt.Fprintf(&b, "%d %d %d\n", m.ContainerID, m.HostID, m.Size)
	}
	return b.String()
}

func writeProcFile(pid, name, content string) error {
	path := "/proc/" + pid + "/" + name
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return boxerr.NewFatal("write_"+name, fmt.Errorf("%s: %w", path, err))
	}
	return nil
}

// WriteUIDMap writes mappings to /proc/<pid>/uid_map. pid is "self" for
// the calling process's own namespace.
func WriteUIDMap(pid string, mappings []config.IDMapping) error {
	return writeProcFile(pid, "uid_map", FormatIDMap(mappings))
}

// WriteGIDMap writes mappings to /proc/<pid>/gid_map. The kernel refuses
// this unless /proc/<pid>/setgroups has already been set to "deny" (or
// the process holds CAP_SETGID in the parent namespace), so callers
// should use Apply rather than calling this directly.
func WriteGIDMap(pid string, mappings []config.IDMapping) error {
	return writeProcFile(pid, "gid_map", FormatIDMap(mappings))
}

// SetSetgroupsDeny writes "deny" to /proc/<pid>/setgroups.
func SetSetgroupsDeny(pid string) error {
	return writeProcFile(pid, "setgroups", "deny")
}

// Apply writes the full id-mapping sequence for pid's user namespace in
// the order the kernel requires: uid_map, then setgroups=deny, then
// gid_map.
func Apply(pid string, uidMappings, gidMappings []config.IDMapping) error {
	if err := WriteUIDMap(pid, uidMappings); err != nil {
		return err
	}
	if err := SetSetgroupsDeny(pid); err != nil {
		return err
	}
	return WriteGIDMap(pid, gidMappings)
}

// PidString renders a numeric pid as a /proc path component; use "self"
// directly for the calling process.
func PidString(pid int) string {
	return strconv.Itoa(pid)
}

const Self = "self"
