// Copyright (c) 2024, The ll-box Authors. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.
package main

import (
	"os"
	"strconv"

	"github.com/linglong-ll/ll-box/internal/pkg/box/config"
	"github.com/linglong-ll/ll-box/internal/pkg/box/container"
	"github.com/linglong-ll/ll-box/internal/pkg/box/nsinit"
	"github.com/linglong-ll/ll-box/internal/pkg/box/sylog"
	"github.com/spf13/cobra"
)

// version is set by the release build via -ldflags; "dev" otherwise.
var version = "dev"

func main() {
	// The three re-exec stages never reach cobra: they are an
	// implementation detail of nsinit, not part of the documented CLI
	// surface, so they are dispatched before any flag parsing happens.
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case nsinit.StageEntry:
			nsinit.RunEntry()
			return
		case nsinit.StageInit:
			nsinit.RunInit()
			return
		case nsinit.StagePayload:
			nsinit.RunPayload()
			return
		}
	}

	os.Exit(exitCode(os.Args[1:]))
}

// exitCode parses argv through the root command and returns the process
// exit code the external interface documents. It never panics or calls
// os.Exit itself, so it can be exercised from a test.
func exitCode(argv []string) int {
	code := -1

	cmd := &cobra.Command{
		Use:           "ll-box <document|fd>",
		Short:         "Launch a Linglong container from an OCI-shaped runtime document",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			code = launch(args[0])
			return nil
		},
	}
	cmd.SetArgs(argv)
	cmd.SetOut(os.Stdout)
	cmd.SetErr(os.Stderr)

	if err := cmd.Execute(); err != nil {
		cmd.PrintErrln(err)
		return -1
	}
	return code
}

// launch opens the runtime document named by arg (a file path, or a
// non-negative integer interpreted as an already-open fd per the external
// interface), decodes it, and runs a container to completion.
func launch(arg string) int {
	log := sylog.New(sylog.ParseLevel(os.Getenv("LINGLONG_LOG_LEVEL")), os.Stderr, "ll-box")
	sylog.Default = log

	doc, err := openDocument(arg)
	if err != nil {
		log.Errorf("open runtime document %q: %s", arg, err)
		return -1
	}
	defer doc.Close()

	spec, err := config.Decode(doc)
	if err != nil {
		log.Errorf("decode runtime document: %s", err)
		return -1
	}

	id := container.ResolveID(spec)
	c, err := container.New(spec, id, log)
	if err != nil {
		log.Errorf("construct container %s: %s", id, err)
		return -1
	}
	defer func() {
		if err := c.Close(); err != nil {
			log.Warningf("close container %s: %s", id, err)
		}
	}()

	if err := c.Run(); err != nil {
		log.Errorf("start container %s: %s", id, err)
		return -1
	}

	return c.Wait()
}

// openDocument implements the external interface's two input modes:
// argv[1] is a numeric, non-negative fd already open in this process, or
// otherwise a file path to open fresh.
func openDocument(arg string) (*os.File, error) {
	if fd, err := strconv.Atoi(arg); err == nil && fd >= 0 {
		return os.NewFile(uintptr(fd), "runtime-document-fd"), nil
	}
	return os.Open(arg)
}
