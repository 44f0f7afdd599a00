// Package fsutil writes report artifacts with optional ownership and builds
// filesystem-safe names from test identifiers.
package fsutil

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

// OwnerConfig holds parsed UID/GID for file ownership.
type OwnerConfig struct {
	UID int
	GID int
}

// ParseOwner parses a "UID:GID" string. Returns nil for an empty string.
func ParseOwner(owner string) (*OwnerConfig, error) {
	if owner == "" {
		return nil, nil
	}

	uidStr, gidStr, ok := strings.Cut(owner, ":")
	if !ok || strings.Contains(gidStr, ":") {
		return nil, fmt.Errorf("invalid format %q, expected UID:GID", owner)
	}

	uid, err := strconv.Atoi(uidStr)
	if err != nil {
		return nil, fmt.Errorf("invalid UID %q: %w", uidStr, err)
	}

	gid, err := strconv.Atoi(gidStr)
	if err != nil {
		return nil, fmt.Errorf("invalid GID %q: %w", gidStr, err)
	}

	return &OwnerConfig{UID: uid, GID: gid}, nil
}

// chown is best-effort; artifacts stay readable when it fails.
func chown(path string, owner *OwnerConfig) {
	if owner == nil {
		return
	}

	_ = os.Chown(path, owner.UID, owner.GID)
}

// MkdirAll creates a directory tree and sets ownership on the leaf.
func MkdirAll(path string, owner *OwnerConfig) error {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return err
	}

	chown(path, owner)

	return nil
}

// WriteFile creates the parent directory, writes data and sets ownership.
func WriteFile(path string, data []byte, owner *OwnerConfig) error {
	if err := MkdirAll(filepath.Dir(path), owner); err != nil {
		return fmt.Errorf("creating directory for %s: %w", path, err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return err
	}

	chown(path, owner)

	return nil
}

// WriteJSON writes v as indented JSON.
func WriteJSON(path string, v any, owner *OwnerConfig) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling %s: %w", filepath.Base(path), err)
	}

	return WriteFile(path, append(data, '\n'), owner)
}

// ReadJSON decodes the JSON file at path into v.
func ReadJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parsing %s: %w", filepath.Base(path), err)
	}

	return nil
}

const maxNameLength = 100

var unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// SanitizeName turns a test identifier into a lower-case name safe for
// file names and git branch names.
func SanitizeName(name string) string {
	s := unsafeChars.ReplaceAllString(strings.ToLower(name), "-")
	s = strings.Trim(s, "-.")

	if len(s) > maxNameLength {
		s = strings.TrimRight(s[:maxNameLength], "-.")
	}

	if s == "" {
		return "unnamed"
	}

	return s
}
