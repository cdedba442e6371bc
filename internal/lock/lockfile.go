package lock

import (
	"encoding/json"
	"os"
)

// FileName is the lockfile written next to a project's manifest.
const FileName = "cairn.lock"

// Lockfile pins the exact versions and checksums of fetched packages.
type Lockfile struct {
	Packages map[string]Entry `json:"packages"`
}

// Entry records one fetched package.
type Entry struct {
	Version string `json:"version"`
	SHA256  string `json:"sha256"`
	Source  string `json:"source,omitempty"`
}

// Load reads a lockfile, returning an empty one when the file is absent.
func Load(path string) (*Lockfile, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &Lockfile{Packages: make(map[string]Entry)}, nil
	}
	if err != nil {
		return nil, err
	}

	var lf Lockfile
	if err := json.Unmarshal(data, &lf); err != nil {
		return nil, err
	}
	if lf.Packages == nil {
		lf.Packages = make(map[string]Entry)
	}
	return &lf, nil
}

// Save writes the lockfile to disk.
func (l *Lockfile) Save(path string) error {
	data, err := json.MarshalIndent(l, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Pin adds or updates a package entry.
func (l *Lockfile) Pin(name string, entry Entry) {
	if l.Packages == nil {
		l.Packages = make(map[string]Entry)
	}
	l.Packages[name] = entry
}

// Get returns the entry for a package, if pinned.
func (l *Lockfile) Get(name string) (Entry, bool) {
	if l.Packages == nil {
		return Entry{}, false
	}
	entry, exists := l.Packages[name]
	return entry, exists
}
