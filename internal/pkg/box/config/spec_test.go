// Copyright (c) 2024, The ll-box Authors. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.
package config

import (
	"strings"
	"testing"

	"gotest.tools/v3/assert"
)

const minimalDoc = `{
  "ociVersion": "1.0.1",
  "process": {"args": ["/bin/true"], "cwd": "/"},
  "root": {"path": "/tmp/rootfs"},
  "mounts": [
    {"destination": "/proc", "type": "proc", "source": "proc"}
  ],
  "linux": {
    "namespaces": [{"type": "pid"}, {"type": "mount"}, {"type": "user"}],
    "uidMappings": [{"containerID": 0, "hostID": 1000, "size": 1}],
    "gidMappings": [{"containerID": 0, "hostID": 1000, "size": 1}]
  }
}`

func TestDecodeMinimalDocument(t *testing.T) {
	rs, err := Decode(strings.NewReader(minimalDoc))
	assert.NilError(t, err)
	assert.Equal(t, rs.Root.Path, "/tmp/rootfs")
	assert.Equal(t, len(rs.Mounts), 1)
	assert.Equal(t, rs.Mounts[0].FSType, FSProc)
	assert.Equal(t, rs.UIDMappings[0].HostID, uint32(1000))
	assert.Equal(t, rs.Resources.MemoryLimit, int64(-1))
}

func TestDecodeRejectsMissingProcessArgs(t *testing.T) {
	_, err := Decode(strings.NewReader(`{"root": {"path": "/x"}, "process": {"args": []}}`))
	assert.ErrorContains(t, err, "process.args")
}

func TestDecodeRejectsMissingRoot(t *testing.T) {
	_, err := Decode(strings.NewReader(`{"process": {"args": ["/bin/true"]}}`))
	assert.ErrorContains(t, err, "root.path")
}

func TestDecodeRejectsMissingUIDMappings(t *testing.T) {
	doc := `{
		"process": {"args": ["/bin/true"]},
		"root": {"path": "/x"},
		"linux": {"namespaces": []}
	}`
	_, err := Decode(strings.NewReader(doc))
	assert.ErrorContains(t, err, "uidMappings")
}

func TestDecodeRejectsMalformedJSON(t *testing.T) {
	_, err := Decode(strings.NewReader(`{not json`))
	assert.Assert(t, err != nil)
}
