// Copyright (c) 2024, The ll-box Authors. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.
package mount

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/linglong-ll/ll-box/internal/pkg/box/config"
	"gotest.tools/v3/assert"
)

func TestEnsureDirectoryIdempotent(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "a", "b")

	assert.NilError(t, ensureDirectory(dir))
	info, err := os.Stat(dir)
	assert.NilError(t, err)
	assert.Assert(t, info.IsDir())

	assert.NilError(t, ensureDirectory(dir))
}

func TestEnsureFileCreatesParents(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "a", "b", "file")

	assert.NilError(t, ensureFile(path))
	info, err := os.Stat(path)
	assert.NilError(t, err)
	assert.Assert(t, !info.IsDir())
}

func TestPrepareSourceRegularFileCreatesDestinationFile(t *testing.T) {
	root := t.TempDir()
	source := filepath.Join(root, "src")
	assert.NilError(t, os.WriteFile(source, []byte("x"), 0o644))
	destHost := filepath.Join(root, "dest")

	req := config.MountRequest{Source: source, FSType: config.FSBind}
	prepared, err := prepareSource(req, destHost)
	assert.NilError(t, err)
	assert.Equal(t, prepared.source, source)

	info, err := os.Stat(destHost)
	assert.NilError(t, err)
	assert.Assert(t, !info.IsDir())
}

func TestPrepareSourceDirectoryCreatesDestinationDir(t *testing.T) {
	root := t.TempDir()
	source := filepath.Join(root, "srcdir")
	assert.NilError(t, os.Mkdir(source, 0o755))
	destHost := filepath.Join(root, "destdir")

	req := config.MountRequest{Source: source, FSType: config.FSBind}
	_, err := prepareSource(req, destHost)
	assert.NilError(t, err)

	info, err := os.Stat(destHost)
	assert.NilError(t, err)
	assert.Assert(t, info.IsDir())
}

func TestPrepareSourceMissingDummyFS(t *testing.T) {
	root := t.TempDir()
	destHost := filepath.Join(root, "proc")

	req := config.MountRequest{Source: "proc", FSType: config.FSProc}
	prepared, err := prepareSource(req, destHost)
	assert.NilError(t, err)
	assert.Equal(t, prepared.source, "proc")

	info, err := os.Stat(destHost)
	assert.NilError(t, err)
	assert.Assert(t, info.IsDir())
}

func TestPrepareSourceMissingNonDummyIsError(t *testing.T) {
	root := t.TempDir()
	destHost := filepath.Join(root, "mnt")

	req := config.MountRequest{Source: filepath.Join(root, "does-not-exist"), FSType: config.FSBind}
	_, err := prepareSource(req, destHost)
	assert.ErrorContains(t, err, "does not exist")
}

func TestPrepareSourceCopySymlink(t *testing.T) {
	root := t.TempDir()
	source := filepath.Join(root, "link")
	assert.NilError(t, os.Symlink("/etc/passwd", source))
	destHost := filepath.Join(root, "destlink")

	req := config.MountRequest{Source: source, FSType: config.FSBind, ExtensionFlags: config.ExtCopySymlink}
	prepared, err := prepareSource(req, destHost)
	assert.NilError(t, err)
	assert.Assert(t, prepared.skip)

	target, err := os.Readlink(destHost)
	assert.NilError(t, err)
	assert.Equal(t, target, "/etc/passwd")
}

func TestPrepareSourceNoSymfollowRewritesToProcFd(t *testing.T) {
	root := t.TempDir()
	real := filepath.Join(root, "real")
	assert.NilError(t, os.WriteFile(real, []byte("x"), 0o644))
	source := filepath.Join(root, "link")
	assert.NilError(t, os.Symlink(real, source))
	destHost := filepath.Join(root, "destlink")

	req := config.MountRequest{Source: source, FSType: config.FSBind, ExtensionFlags: config.ExtNoSymfollow}
	prepared, err := prepareSource(req, destHost)
	assert.NilError(t, err)
	assert.Assert(t, prepared.keepOpen != nil)
	defer prepared.keepOpen.Close()
	assert.Assert(t, len(prepared.source) > len("/proc/self/fd/"))
}
