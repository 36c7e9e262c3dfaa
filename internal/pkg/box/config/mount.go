// Copyright (c) 2024, The ll-box Authors. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.
package config

import (
	"fmt"
	"strings"

	specs "github.com/opencontainers/runtime-spec/specs-go"
	"golang.org/x/sys/unix"
)

// FSType is the closed set of mount filesystem types the engine understands.
type FSType int

const (
	FSBind FSType = iota
	FSProc
	FSSysfs
	FSDevpts
	FSMqueue
	FSTmpfs
	FSCgroup
	FSCgroup2
)

func (t FSType) String() string {
	switch t {
	case FSBind:
		return "bind"
	case FSProc:
		return "proc"
	case FSSysfs:
		return "sysfs"
	case FSDevpts:
		return "devpts"
	case FSMqueue:
		return "mqueue"
	case FSTmpfs:
		return "tmpfs"
	case FSCgroup:
		return "cgroup"
	case FSCgroup2:
		return "cgroup2"
	default:
		return "unknown"
	}
}

func parseFSType(s string) (FSType, bool) {
	switch strings.ToLower(s) {
	case "bind":
		return FSBind, true
	case "proc":
		return FSProc, true
	case "sysfs":
		return FSSysfs, true
	case "devpts":
		return FSDevpts, true
	case "mqueue":
		return FSMqueue, true
	case "tmpfs":
		return FSTmpfs, true
	case "cgroup":
		return FSCgroup, true
	case "cgroup2":
		return FSCgroup2, true
	default:
		return 0, false
	}
}

// ExtensionFlag is an engine-local mount modifier with no kernel flag
// equivalent.
type ExtensionFlag int

const (
	ExtCopySymlink ExtensionFlag = 1 << iota
	ExtNoSymfollow
)

// MountRequest is one decoded entry of the runtime document's mount list.
type MountRequest struct {
	Destination      string
	Source           string
	FSType           FSType
	Flags            uintptr
	PropagationFlags uintptr
	ExtensionFlags   ExtensionFlag
	Data             string
}

// clearFlags are mount options that remove a kernel flag bit.
var clearFlags = map[string]uintptr{
	"async":         unix.MS_SYNCHRONOUS,
	"atime":         unix.MS_NOATIME,
	"dev":           unix.MS_NODEV,
	"diratime":      unix.MS_NODIRATIME,
	"exec":          unix.MS_NOEXEC,
	"loud":          unix.MS_SILENT,
	"noacl":         unix.MS_POSIXACL,
	"noiversion":    unix.MS_I_VERSION,
	"nolazytime":    unix.MS_LAZYTIME,
	"nomand":        unix.MS_MANDLOCK,
	"norelatime":    unix.MS_RELATIME,
	"nostrictatime": unix.MS_STRICTATIME,
	"rw":            unix.MS_RDONLY,
	"suid":          unix.MS_NOSUID,
	"symfollow":     0, // NOSYMFOLLOW is engine-local, cleared via extension flags
}

// setFlags are mount options that add a kernel flag bit; "defaults" is a
// documented no-op kept in the table so it is recognized rather than
// falling through to the data string.
var setFlags = map[string]uintptr{
	"acl":         unix.MS_POSIXACL,
	"bind":        unix.MS_BIND,
	"defaults":    0,
	"dirsync":     unix.MS_DIRSYNC,
	"iversion":    unix.MS_I_VERSION,
	"lazytime":    unix.MS_LAZYTIME,
	"mand":        unix.MS_MANDLOCK,
	"noatime":     unix.MS_NOATIME,
	"nodev":       unix.MS_NODEV,
	"nodiratime":  unix.MS_NODIRATIME,
	"noexec":      unix.MS_NOEXEC,
	"nosuid":      unix.MS_NOSUID,
	"rbind":       unix.MS_BIND | unix.MS_REC,
	"relatime":    unix.MS_RELATIME,
	"remount":     unix.MS_REMOUNT,
	"ro":          unix.MS_RDONLY,
	"silent":      unix.MS_SILENT,
	"strictatime": unix.MS_STRICTATIME,
	"sync":        unix.MS_SYNCHRONOUS,
}

var propagationFlags = map[string]uintptr{
	"shared":     unix.MS_SHARED,
	"rshared":    unix.MS_SHARED | unix.MS_REC,
	"slave":      unix.MS_SLAVE,
	"rslave":     unix.MS_SLAVE | unix.MS_REC,
	"private":    unix.MS_PRIVATE,
	"rprivate":   unix.MS_PRIVATE | unix.MS_REC,
	"unbindable": unix.MS_UNBINDABLE,
	"runbindable": unix.MS_UNBINDABLE | unix.MS_REC,
}

// decodeMountOptions walks the closed options table, returning the
// compiled kernel flags, propagation flags, engine-local extension flags,
// and the leftover comma-joined data string for any token the table does
// not recognize.
func decodeMountOptions(options []string) (flags, propFlags uintptr, ext ExtensionFlag, data string) {
	var extra []string
	for _, opt := range options {
		switch opt {
		case "nosymfollow":
			ext |= ExtNoSymfollow
			continue
		case "copy-symlink":
			ext |= ExtCopySymlink
			continue
		case "symfollow":
			ext &^= ExtNoSymfollow
			continue
		}
		if bit, ok := propagationFlags[opt]; ok {
			propFlags |= bit
			continue
		}
		if bit, ok := clearFlags[opt]; ok {
			flags &^= bit
			if opt == "rw" {
				flags &^= unix.MS_RDONLY
			}
			continue
		}
		if bit, ok := setFlags[opt]; ok {
			flags |= bit
			continue
		}
		extra = append(extra, opt)
	}
	return flags, propFlags, ext, strings.Join(extra, ",")
}

func decodeMountRequest(m specs.Mount) (MountRequest, error) {
	fsType, ok := parseFSType(m.Type)
	if !ok {
		return MountRequest{}, fmt.Errorf("unknown mount type %q", m.Type)
	}
	if m.Destination == "" {
		return MountRequest{}, fmt.Errorf("destination must be set")
	}

	flags, propFlags, ext, data := decodeMountOptions(m.Options)

	return MountRequest{
		Destination:      m.Destination,
		Source:           m.Source,
		FSType:           fsType,
		Flags:            flags,
		PropagationFlags: propFlags,
		ExtensionFlags:   ext,
		Data:             data,
	}, nil
}
