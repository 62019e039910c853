// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Adjudicator Contributors

// Package xdg resolves XDG Base Directory paths for adjudicator.
package xdg

import (
	"os"
	"path/filepath"

	"github.com/samber/oops"
)

const appName = "adjudicator"

// CodeDirFailed is returned when a directory cannot be created.
const CodeDirFailed = "XDG_DIR_FAILED"

// ConfigDir returns the XDG config directory.
// Checks XDG_CONFIG_HOME first, falls back to ~/.config.
func ConfigDir() string {
	return dir("XDG_CONFIG_HOME", ".config")
}

// DataDir returns the XDG data directory.
// Checks XDG_DATA_HOME first, falls back to ~/.local/share.
func DataDir() string {
	return dir("XDG_DATA_HOME", ".local", "share")
}

// SQLitePath is the default hand-off database used when the sqlite driver
// has no DSN.
func SQLitePath() string {
	return filepath.Join(DataDir(), "handoff.db")
}

func dir(envVar string, fallback ...string) string {
	base := os.Getenv(envVar)
	if base == "" {
		base = filepath.Join(append([]string{os.Getenv("HOME")}, fallback...)...)
	}
	return filepath.Join(base, appName)
}

// EnsureDir creates a directory and all parents with 0700 permissions.
func EnsureDir(path string) error {
	if err := os.MkdirAll(path, 0o700); err != nil {
		return oops.Code(CodeDirFailed).With("path", path).Wrap(err)
	}
	return nil
}
