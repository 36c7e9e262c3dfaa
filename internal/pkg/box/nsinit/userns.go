// Copyright (c) 2024, The ll-box Authors. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.
package nsinit

import "github.com/moby/sys/userns"

// RunningInUserNS reports whether the calling process is already inside a
// user namespace. The engine always creates its own regardless of the
// answer; this is surfaced for diagnostic logging only (a container
// started from inside an already-unprivileged host namespace is a
// supported but noteworthy configuration).
func RunningInUserNS() bool {
	return userns.RunningInUserNS()
}
