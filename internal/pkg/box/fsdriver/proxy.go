// Copyright (c) 2024, The ll-box Authors. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.
package fsdriver

import (
	"fmt"
	"os"
	"os/exec"

	"github.com/linglong-ll/ll-box/internal/pkg/box/containerpath"
	"github.com/linglong-ll/ll-box/internal/pkg/box/sylog"
)

// proxyFD is the fixed fd number the spawned helper reads its mount
// descriptor list from, matching the external interface's documented
// wire contract.
const proxyFD = 112

// Entry is one "source:destination" line of the proxy's mount descriptor
// list; the helper serves reads of destination by proxying to source.
type Entry struct {
	Source      string
	Destination string
}

// Proxy hands an out-of-process helper a pipe describing a virtual mount
// list and lets it serve container file reads itself, rather than letting
// the kernel mount anything at all. Used when the rootfs is composed from
// sources the kernel cannot mount directly (e.g. a remote or synthetic
// layer store).
type Proxy struct {
	HelperPath string
	Mountpoint string
	Entries    []Entry

	log *sylog.Logger
	cmd *exec.Cmd
}

// NewProxy returns a Driver that execs helperPath with the descriptor pipe
// on fd 112, the first entry always being "<mountpoint>/.root:/" per the
// external interface.
func NewProxy(helperPath, mountpoint string, entries []Entry, log *sylog.Logger) *Proxy {
	return &Proxy{HelperPath: helperPath, Mountpoint: mountpoint, Entries: entries, log: log}
}

func (p *Proxy) Setup() error {
	if err := os.MkdirAll(p.Mountpoint, 0o755); err != nil {
		return fmt.Errorf("proxy: create mountpoint %s: %w", p.Mountpoint, err)
	}

	r, w, err := os.Pipe()
	if err != nil {
		return fmt.Errorf("proxy: create descriptor pipe: %w", err)
	}

	cmd := exec.Command(p.HelperPath, p.Mountpoint)
	cmd.Stderr = os.Stderr
	cmd.ExtraFiles = extraFilesForFD(r, proxyFD)

	if err := cmd.Start(); err != nil {
		r.Close()
		w.Close()
		return fmt.Errorf("proxy: start helper %s: %w", p.HelperPath, err)
	}
	r.Close()
	p.cmd = cmd

	entries := append([]Entry{{Source: p.Mountpoint + "/.root", Destination: "/"}}, p.Entries...)
	for _, e := range entries {
		if _, err := fmt.Fprintf(w, "%s:%s\n", e.Source, e.Destination); err != nil {
			w.Close()
			return fmt.Errorf("proxy: write descriptor line: %w", err)
		}
	}
	return w.Close()
}

func (p *Proxy) HostRoot() string { return p.Mountpoint }

func (p *Proxy) HostPath(path containerpath.Path) (string, error) {
	return path.HostPath(p.Mountpoint)
}

func (p *Proxy) Close() error {
	if p.cmd == nil || p.cmd.Process == nil {
		return nil
	}
	if err := p.cmd.Process.Kill(); err != nil {
		p.log.Warningf("failed to kill fuse proxy helper: %s", err)
	}
	return p.cmd.Wait()
}

// extraFilesForFD places f so that it lands at fd wantFD inside the
// child: cmd.ExtraFiles[i] becomes fd 3+i in the child, so only index
// wantFD-3 must hold f. The intervening slots are filled with /dev/null so
// the helper never trips over an fd it doesn't expect to be open.
func extraFilesForFD(f *os.File, wantFD int) []*os.File {
	extra := make([]*os.File, wantFD-2)
	for i := range extra[:len(extra)-1] {
		devNull, err := os.Open(os.DevNull)
		if err != nil {
			devNull = f // best effort: reuse f rather than fail Setup over a filler slot
		}
		extra[i] = devNull
	}
	extra[len(extra)-1] = f
	return extra
}
