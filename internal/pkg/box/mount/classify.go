// Copyright (c) 2024, The ll-box Authors. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.
package mount

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/linglong-ll/ll-box/internal/pkg/box/config"
	"golang.org/x/sys/unix"
)

func ensureDirectory(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("stat %s: %w", path, err)
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", path, err)
	}
	return os.Chmod(path, 0o755)
}

func ensureFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("stat %s: %w", path, err)
	}
	if err := ensureDirectory(filepath.Dir(path)); err != nil {
		return fmt.Errorf("ensure parent of %s: %w", path, err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	return f.Close()
}

// preparedSource is the effective source for the subsequent mount(2) call,
// plus any fd that must be kept open until that call returns (the
// NOSYMFOLLOW /proc/self/fd/N rewrite keeps its source fd open this way).
type preparedSource struct {
	source   string
	keepOpen *os.File
	skip     bool // true when the request is fully handled (e.g. copy-symlink)
}

// prepareSource classifies req.Source by lstat and readies destHost (the
// host-resolved destination path) as either a file or a directory per the
// classification, exactly mirroring the source's own algorithm: regular/
// block/fifo/character/socket sources need a file destination; symlinks
// are copied, NOSYMFOLLOW-opened, or followed one level; directories need
// a directory destination; a missing source is only valid for dummy
// filesystem types, where the destination is a fresh directory and the
// source becomes the literal type string.
func prepareSource(req config.MountRequest, destHost string) (preparedSource, error) {
	info, err := os.Lstat(req.Source)
	switch {
	case err == nil:
		return prepareExistingSource(req, destHost, info)
	case errors.Is(err, os.ErrNotExist):
		return prepareMissingSource(req, destHost)
	default:
		return preparedSource{}, fmt.Errorf("lstat source %s: %w", req.Source, err)
	}
}

func prepareExistingSource(req config.MountRequest, destHost string, info os.FileInfo) (preparedSource, error) {
	switch {
	case info.Mode()&os.ModeSymlink != 0:
		return prepareSymlinkSource(req, destHost)
	case info.IsDir():
		if err := ensureDirectory(destHost); err != nil {
			return preparedSource{}, err
		}
		return preparedSource{source: req.Source}, nil
	default: // regular, device, fifo, socket
		if err := ensureFile(destHost); err != nil {
			return preparedSource{}, err
		}
		return preparedSource{source: req.Source}, nil
	}
}

func prepareSymlinkSource(req config.MountRequest, destHost string) (preparedSource, error) {
	if err := ensureDirectory(filepath.Dir(destHost)); err != nil {
		return preparedSource{}, err
	}

	if req.ExtensionFlags&config.ExtCopySymlink != 0 {
		target, err := os.Readlink(req.Source)
		if err != nil {
			return preparedSource{}, fmt.Errorf("readlink %s: %w", req.Source, err)
		}
		if err := os.Symlink(target, destHost); err != nil && !errors.Is(err, os.ErrExist) {
			return preparedSource{}, fmt.Errorf("copy symlink %s -> %s: %w", req.Source, destHost, err)
		}
		return preparedSource{skip: true}, nil
	}

	nosymfollow := req.ExtensionFlags&config.ExtNoSymfollow != 0
	if nosymfollow {
		fd, err := unix.Open(req.Source, unix.O_PATH|unix.O_NOFOLLOW|unix.O_CLOEXEC, 0)
		if err != nil {
			return preparedSource{}, fmt.Errorf("open source %s O_PATH|O_NOFOLLOW: %w", req.Source, err)
		}
		f := os.NewFile(uintptr(fd), req.Source)
		if err := ensureFile(destHost); err != nil {
			f.Close()
			return preparedSource{}, err
		}
		return preparedSource{source: fmt.Sprintf("/proc/self/fd/%d", fd), keepOpen: f}, nil
	}

	targetInfo, err := os.Stat(req.Source)
	if err != nil {
		return preparedSource{}, fmt.Errorf("stat symlink target %s: %w", req.Source, err)
	}
	if targetInfo.IsDir() {
		if err := ensureDirectory(destHost); err != nil {
			return preparedSource{}, err
		}
	} else if err := ensureFile(destHost); err != nil {
		return preparedSource{}, err
	}

	target, err := os.Readlink(req.Source)
	if err != nil {
		return preparedSource{}, fmt.Errorf("readlink %s: %w", req.Source, err)
	}
	return preparedSource{source: target}, nil
}

func prepareMissingSource(req config.MountRequest, destHost string) (preparedSource, error) {
	dummy, known := isDummy(req.FSType.String())
	if !known || !dummy {
		return preparedSource{}, fmt.Errorf("source %s does not exist and %s is not a dummy filesystem", req.Source, req.FSType)
	}
	if err := ensureDirectory(destHost); err != nil {
		return preparedSource{}, err
	}
	return preparedSource{source: req.FSType.String()}, nil
}
