// Package index models the registry index: the metadata set describing all
// published versions of a package name.
package index

import (
	"encoding/json"
	"fmt"
)

// IndexDependency is a single dependency requirement of a published version.
type IndexDependency struct {
	Name string `json:"name"`
	Req  string `json:"req"`
}

// IndexRecord describes one published version of a package.
type IndexRecord struct {
	Version      string            `json:"v"`
	Dependencies []IndexDependency `json:"deps"`
	// Checksum is the sha256 of the published archive, "sha256:" prefixed.
	Checksum string `json:"cksum"`
	Yanked   bool   `json:"yanked,omitempty"`
}

// IndexRecords is the full record set for one package name, newest last.
type IndexRecords []IndexRecord

// DecodeRecords parses the registry's JSON index payload.
func DecodeRecords(data []byte) (IndexRecords, error) {
	var records IndexRecords
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("failed to parse index records: %w", err)
	}
	return records, nil
}

// EncodeRecords serializes records to the registry's JSON index payload.
func EncodeRecords(records IndexRecords) ([]byte, error) {
	data, err := json.Marshal(records)
	if err != nil {
		return nil, fmt.Errorf("failed to encode index records: %w", err)
	}
	return data, nil
}

// FindVersion returns the record for an exact version, or nil.
func (r IndexRecords) FindVersion(version string) *IndexRecord {
	for i := range r {
		if r[i].Version == version {
			return &r[i]
		}
	}
	return nil
}
