// Copyright (c) 2024, The ll-box Authors. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.
package mount

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/linglong-ll/ll-box/internal/pkg/box/boxtest"
	"github.com/linglong-ll/ll-box/internal/pkg/box/config"
	"github.com/linglong-ll/ll-box/internal/pkg/box/sylog"
	"golang.org/x/sys/unix"
	"gotest.tools/v3/assert"
)

func TestIsHostileUnwrapsWrappedErrors(t *testing.T) {
	root := t.TempDir()
	link := filepath.Join(root, "link")
	assert.NilError(t, os.Symlink("/etc", link))

	_, _, err := resolveDestination(root, link)
	assert.Assert(t, err != nil)

	var target *hostileDestination
	assert.Assert(t, isHostile(err, &target))
	assert.Equal(t, target.requested, link)
}

func TestIsHostileFalseForOrdinaryErrors(t *testing.T) {
	var target *hostileDestination
	assert.Assert(t, !isHostile(os.ErrNotExist, &target))
}

func TestMountAllAbortsOnHostileDestination(t *testing.T) {
	root := t.TempDir()
	assert.NilError(t, os.Symlink("/etc", filepath.Join(root, "link")))

	e := NewEngine(root, sylog.New(sylog.ErrorLevel, nil, ""))
	err := e.MountAll([]config.MountRequest{
		{Destination: "/link", Source: "/tmp", FSType: config.FSBind, Flags: unix.MS_BIND},
	})
	assert.ErrorContains(t, err, "possibly malicious path detected")
}

func TestMountBindRequiresPrivilege(t *testing.T) {
	boxtest.UserNamespace(t)
	t.Skip("full bind-mount exercise belongs to an integration suite run inside a dedicated namespace")
}

// TestCloseUnmountsAndClosesDeferredFds exercises the abort path without
// requiring a real mount: the lazy unmount against a plain file's
// /proc/self/fd/N path fails (it is not a mountpoint), but Close must
// swallow that error and still close the fd, per the best-effort
// contract — an unprivileged unit test cannot set up a real deferred
// remount (that needs an actual bind mount), but it can verify the fd
// bookkeeping and error tolerance around the unmount call.
func TestCloseUnmountsAndClosesDeferredFds(t *testing.T) {
	f, err := os.Open(filepath.Join(t.TempDir()))
	assert.NilError(t, err)

	e := NewEngine(t.TempDir(), sylog.New(sylog.ErrorLevel, nil, ""))
	e.deferred = append(e.deferred, deferredRemount{f: f, flags: unix.MS_RDONLY})

	e.Close()

	assert.Equal(t, len(e.deferred), 0)
	assert.ErrorContains(t, f.Close(), "file already closed")
}
