// Copyright (c) 2024, The ll-box Authors. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.
package nsinit

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

// Stage sentinels recognized as os.Args[1] by cmd/ll-box's main, routing
// execution into RunEntry, RunInit or RunPayload instead of the normal top-level
// "parse a runtime document and start a container" path.
const (
	StageEntry   = "__ll_box_entry__"
	StageInit    = "__ll_box_init__"
	StagePayload = "__ll_box_payload__"
)

// taskFD is the fd the task JSON is readable on inside the re-exec'd
// child; cmd.ExtraFiles[0] always lands at fd 3.
const taskFD = 3

// spawnStage re-execs the running binary with argv[1] = stage, clones
// with flags, and writes v as JSON on a pipe the child inherits at
// taskFD. It returns once the child has been started and the write side
// of the pipe has been closed; the caller owns reaping the process.
func spawnStage(stage string, cloneFlags uintptr, v interface{}) (*exec.Cmd, error) {
	self, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("nsinit: resolve self executable: %w", err)
	}

	r, w, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("nsinit: create task pipe: %w", err)
	}

	cmd := exec.Command(self, stage)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.ExtraFiles = []*os.File{r}
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Cloneflags: cloneFlags,
		Pdeathsig:  syscall.SIGKILL,
	}

	if err := cmd.Start(); err != nil {
		r.Close()
		w.Close()
		return nil, fmt.Errorf("nsinit: start %s: %w", stage, err)
	}
	r.Close()

	enc := json.NewEncoder(w)
	encErr := enc.Encode(v)
	w.Close()
	if encErr != nil {
		return cmd, fmt.Errorf("nsinit: encode %s task: %w", stage, encErr)
	}
	return cmd, nil
}

// readTask decodes the JSON task handed to this process on taskFD.
func readTask(v interface{}) error {
	f := os.NewFile(taskFD, "task")
	defer f.Close()
	if err := json.NewDecoder(f).Decode(v); err != nil {
		return fmt.Errorf("nsinit: decode task: %w", err)
	}
	return nil
}

// setPdeathsig arranges for this process to receive SIGKILL if its
// parent dies first, matching the entry and init stages' requirement
// that an unexpectedly-dead parent never leaves orphaned container
// processes behind.
func setPdeathsig() error {
	return unix.Prctl(unix.PR_SET_PDEATHSIG, uintptr(unix.SIGKILL), 0, 0, 0)
}
