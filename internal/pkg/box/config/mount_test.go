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

func specsMount(dest, source, fsType string, options []string) specs.Mount {
	return specs.Mount{Destination: dest, Source: source, Type: fsType, Options: options}
}

func TestDecodeMountOptionsSetFlags(t *testing.T) {
	tests := []struct {
		opt  string
		want uintptr
	}{
		{"ro", unix.MS_RDONLY},
		{"bind", unix.MS_BIND},
		{"rbind", unix.MS_BIND | unix.MS_REC},
		{"nosuid", unix.MS_NOSUID},
		{"nodev", unix.MS_NODEV},
		{"noexec", unix.MS_NOEXEC},
		{"remount", unix.MS_REMOUNT},
		{"acl", unix.MS_POSIXACL},
		{"iversion", unix.MS_I_VERSION},
		{"lazytime", unix.MS_LAZYTIME},
	}
	for _, tt := range tests {
		flags, _, _, data := decodeMountOptions([]string{tt.opt})
		assert.Equal(t, flags, tt.want, tt.opt)
		assert.Equal(t, data, "")
	}
}

func TestDecodeMountOptionsInversePairsClearToZero(t *testing.T) {
	pairs := [][2]string{
		{"ro", "rw"},
		{"nosuid", "suid"},
		{"nodev", "dev"},
		{"noexec", "exec"},
		{"acl", "noacl"},
		{"iversion", "noiversion"},
		{"lazytime", "nolazytime"},
	}
	for _, p := range pairs {
		flags, _, _, _ := decodeMountOptions([]string{p[0], p[1]})
		assert.Equal(t, flags, uintptr(0), p[0]+","+p[1])
	}
}

func TestDecodeMountOptionsPropagation(t *testing.T) {
	flags, prop, _, _ := decodeMountOptions([]string{"rbind", "slave"})
	assert.Equal(t, flags, uintptr(unix.MS_BIND|unix.MS_REC))
	assert.Equal(t, prop, uintptr(unix.MS_SLAVE))
}

func TestDecodeMountOptionsExtensions(t *testing.T) {
	_, _, ext, _ := decodeMountOptions([]string{"nosymfollow", "copy-symlink"})
	assert.Assert(t, ext&ExtNoSymfollow != 0)
	assert.Assert(t, ext&ExtCopySymlink != 0)
}

func TestDecodeMountOptionsUnknownGoesToData(t *testing.T) {
	_, _, _, data := decodeMountOptions([]string{"size=64m", "mode=0755"})
	assert.Equal(t, data, "size=64m,mode=0755")
}

func TestDecodeMountRequestUnknownType(t *testing.T) {
	_, err := decodeMountRequest(specsMount("/mnt", "", "ext4", nil))
	assert.ErrorContains(t, err, "unknown mount type")
}

func TestDecodeMountRequestBind(t *testing.T) {
	mr, err := decodeMountRequest(specsMount("/mnt", "/tmp", "bind", []string{"rbind", "ro"}))
	assert.NilError(t, err)
	assert.Equal(t, mr.FSType, FSBind)
	assert.Equal(t, mr.Flags, uintptr(unix.MS_BIND|unix.MS_REC|unix.MS_RDONLY))
}
