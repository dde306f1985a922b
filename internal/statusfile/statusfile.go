// Package statusfile writes the bridge's status sidecar document —
// {port, instanceName, mode, peers:[...]} per spec.md §6 — using the same
// write-temp-then-rename pattern as bureau-foundation-bureau's
// lib/watchdog/watchdog.go, so a reader never observes a partially written
// file.
package statusfile

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// PeerStatus is one entry in Document.Peers.
type PeerStatus struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	ConnectedAt  int64  `json:"connectedAt"`
	LastActivity int64  `json:"lastActivity"`
}

// Document is the full status sidecar contents.
type Document struct {
	Port         int          `json:"port"`
	InstanceName string       `json:"instanceName"`
	Mode         string       `json:"mode"`
	Peers        []PeerStatus `json:"peers"`
}

// Write atomically replaces the file at path with doc's JSON encoding.
func Write(path string, doc Document) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("statusfile: marshal: %w", err)
	}

	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("statusfile: create temp file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("statusfile: write temp file: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("statusfile: sync temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("statusfile: close temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("statusfile: rename into place: %w", err)
	}
	return nil
}

// Read loads and decodes the status document at path.
func Read(path string) (Document, error) {
	var doc Document
	b, err := os.ReadFile(path)
	if err != nil {
		return doc, fmt.Errorf("statusfile: read: %w", err)
	}
	if err := json.Unmarshal(b, &doc); err != nil {
		return doc, fmt.Errorf("statusfile: decode: %w", err)
	}
	return doc, nil
}

// Remove deletes the status file, ignoring a not-exist error, used on
// stop().
func Remove(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("statusfile: remove: %w", err)
	}
	return nil
}

// DefaultPath mirrors the teacher's convention of placing runtime
// side-channel files alongside the working directory's data dir.
func DefaultPath(dataDir, instanceName string) string {
	return filepath.Join(dataDir, instanceName+".status.json")
}
