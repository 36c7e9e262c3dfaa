// Copyright (c) 2024, The ll-box Authors. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.
package nsinit

import (
	"encoding/json"
	"testing"

	"github.com/linglong-ll/ll-box/internal/pkg/box/boxtest"
	"github.com/linglong-ll/ll-box/internal/pkg/box/config"
	specs "github.com/opencontainers/runtime-spec/specs-go"
	"gotest.tools/v3/assert"
)

func TestEntryTaskRoundTripsThroughJSON(t *testing.T) {
	task := EntryTask{
		Root:        "/tmp/root",
		UIDMappings: []config.IDMapping{{ContainerID: 0, HostID: 1000, Size: 1}},
		Namespaces:  []NamespaceTask{{Type: string(specs.UserNamespace), Flag: 0x10000000}},
		Init: InitTask{
			UIDMapping: config.IDMapping{ContainerID: 0, HostID: 1000, Size: 1},
			Args:       []string{"/bin/true"},
		},
	}

	data, err := json.Marshal(task)
	assert.NilError(t, err)

	var got EntryTask
	assert.NilError(t, json.Unmarshal(data, &got))
	assert.Equal(t, got.Root, task.Root)
	assert.Equal(t, got.Init.Args[0], "/bin/true")
	assert.Equal(t, len(got.Namespaces), 1)
}

func TestHookTaskFromSpecCarriesFields(t *testing.T) {
	timeout := 5
	got := hookTaskFromSpec(specs.Hook{Path: "/bin/sh", Args: []string{"sh", "-c", "true"}, Env: []string{"A=B"}, Timeout: &timeout})
	assert.Equal(t, got.Path, "/bin/sh")
	assert.Equal(t, len(got.Args), 3)
	assert.Equal(t, *got.Timeout, 5)
}

func TestBuildInitTaskPicksIdentityMapping(t *testing.T) {
	spec := &config.RuntimeSpec{
		UIDMappings: []config.IDMapping{{ContainerID: 0, HostID: 1000, Size: 1}},
		GIDMappings: []config.IDMapping{{ContainerID: 0, HostID: 1000, Size: 1}},
		Process:     config.Process{Args: []string{"/bin/true"}},
	}
	it := buildInitTask(spec)
	assert.Equal(t, it.UIDMapping.HostID, uint32(1000))
	assert.Equal(t, it.GIDMapping.HostID, uint32(1000))
}

func TestFullSequenceRequiresUserNamespace(t *testing.T) {
	boxtest.UserNamespace(t)
	t.Skip("exercising SpawnEntry/RunEntry/RunInit end to end belongs to an integration suite run as a dedicated process, since this process re-execs itself")
}
