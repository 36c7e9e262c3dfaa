// Copyright (c) 2024, The ll-box Authors. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.
package mount

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"gotest.tools/v3/assert"
)

func TestResolveDestinationWithinRoot(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "mnt")
	assert.NilError(t, os.MkdirAll(dir, 0o755))

	f, fdPath, err := resolveDestination(root, dir)
	assert.NilError(t, err)
	defer f.Close()

	assert.Equal(t, fdPath, fmt.Sprintf("/proc/self/fd/%d", f.Fd()))

	resolved, err := os.Readlink(fdPath)
	assert.NilError(t, err)
	assert.Equal(t, resolved, dir)
}

func TestResolveDestinationRefusesSymlinkEscape(t *testing.T) {
	root := t.TempDir()
	outside := t.TempDir()
	link := filepath.Join(root, "link")
	assert.NilError(t, os.Symlink(outside, link))

	_, _, err := resolveDestination(root, link)
	assert.ErrorContains(t, err, "possibly malicious path detected")
}

func TestResolveDestinationMissingPath(t *testing.T) {
	root := t.TempDir()
	_, _, err := resolveDestination(root, filepath.Join(root, "nope"))
	assert.ErrorContains(t, err, "open destination")
}
