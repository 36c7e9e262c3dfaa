// Copyright (c) 2024, The ll-box Authors. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

// Package state writes the per-container record external ps-style
// tooling reads to enumerate running containers: one small JSON file per
// container, named after its id, removed on normal shutdown.
package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/linglong-ll/ll-box/internal/pkg/box/boxerr"
)

// Record is the JSON shape written to the state directory.
type Record struct {
	ContainerID string   `json:"containerID"`
	App         string   `json:"app"`
	Base        string   `json:"base"`
	Runtime     string   `json:"runtime,omitempty"`
	Extensions  []string `json:"extensions,omitempty"`
}

// Dir returns the state directory for uid, matching the external
// interface's documented path.
func Dir(uid int) string {
	return filepath.Join("/run/user", fmt.Sprint(uid), "linglong", "box")
}

// Write creates dir if necessary and writes rec as id.json.
func Write(uid int, rec Record) error {
	dir := Dir(uid)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return boxerr.NewBestEffort("state_mkdir", err)
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return boxerr.NewBestEffort("state_marshal", err)
	}

	path := filepath.Join(dir, rec.ContainerID+".json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return boxerr.NewBestEffort("state_write", err)
	}
	return nil
}

// Remove deletes the state record for id, ignoring a missing file.
func Remove(uid int, id string) error {
	path := filepath.Join(Dir(uid), id+".json")
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return boxerr.NewBestEffort("state_remove", err)
	}
	return nil
}
