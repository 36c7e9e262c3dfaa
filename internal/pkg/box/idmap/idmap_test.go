// Copyright (c) 2024, The ll-box Authors. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.
package idmap

import (
	"os"
	"testing"

	"github.com/linglong-ll/ll-box/internal/pkg/box/boxtest"
	"github.com/linglong-ll/ll-box/internal/pkg/box/config"
	"gotest.tools/v3/assert"
)

func TestFormatIDMapSingleIdentityMapping(t *testing.T) {
	got := FormatIDMap([]config.IDMapping{{ContainerID: 0, HostID: uint32(os.Getuid()), Size: 1}})
	assert.Equal(t, got, "0 "+PidString(os.Getuid())+" 1\n")
}

func TestFormatIDMapMultipleMappings(t *testing.T) {
	got := FormatIDMap([]config.IDMapping{
		{ContainerID: 0, HostID: 1000, Size: 1},
		{ContainerID: 1, HostID: 100000, Size: 65536},
	})
	assert.Equal(t, got, "0 1000 1\n1 100000 65536\n")
}

func TestApplyIdentityMappingInsideFreshUserNamespace(t *testing.T) {
	boxtest.UserNamespace(t)
	t.Skip("exercising a real unshare(CLONE_NEWUSER)+Apply round trip belongs to an integration suite that runs as a dedicated child process")
}
