// Copyright (c) 2024, The ll-box Authors. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.
package mount

import (
	"bufio"
	"io"
	"os"
	"strings"
	"sync"
)

var (
	dummyOnce  sync.Once
	dummyTypes map[string]bool
	dummyErr   error
)

// dummyFilesystems returns the memoized set of filesystem types registered
// in /proc/filesystems, keyed by type name, valued true for "nodev" (dummy,
// no backing device required) types and false for device-backed ones.
func dummyFilesystems() (map[string]bool, error) {
	dummyOnce.Do(func() {
		f, err := os.Open("/proc/filesystems")
		if err != nil {
			dummyErr = err
			return
		}
		defer f.Close()
		dummyTypes, dummyErr = parseFilesystemsList(f)
	})
	return dummyTypes, dummyErr
}

// parseFilesystemsList parses the /proc/filesystems format: each line is
// either "nodev\t<type>" or "\t<type>"; the former is dummy, the latter is
// device-backed.
func parseFilesystemsList(r io.Reader) (map[string]bool, error) {
	types := make(map[string]bool)
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "nodev\t") {
			types[strings.TrimPrefix(line, "nodev\t")] = true
			continue
		}
		types[strings.TrimPrefix(line, "\t")] = false
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return types, nil
}

// isDummy reports whether fsType is known to be dummy (nodev); the second
// return is false if fsType is not present in /proc/filesystems at all.
func isDummy(fsType string) (dummy bool, known bool) {
	types, err := dummyFilesystems()
	if err != nil {
		return false, false
	}
	v, ok := types[fsType]
	return v, ok
}
