// Package cache implements the on-disk stores backing the caching registry
// client: an opaque cache-key store, a records store, and an archive store.
package cache

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

// RequestKind namespaces cache keys by the operation that issued them.
type RequestKind string

const (
	KindRecords  RequestKind = "records"
	KindDownload RequestKind = "download"
)

// KeyStore persists the opaque, backend-issued cache keys between runs,
// keyed by (request kind, package identity). Keys are stored as-is; their
// structure is meaningful only to the backend that issued them.
type KeyStore struct {
	db *bolt.DB
}

// OpenKeyStore opens (creating if needed) the cache-key database at path.
func OpenKeyStore(path string) (*KeyStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	db, err := bolt.Open(path, 0o644, &bolt.Options{Timeout: 3 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open cache-key store: %w", err)
	}

	return &KeyStore{db: db}, nil
}

// Get returns the stored key for ident, or "" when none is stored.
func (s *KeyStore) Get(kind RequestKind, ident string) (string, error) {
	var key string
	err := s.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(kind))
		if bucket == nil {
			return nil
		}
		if v := bucket.Get([]byte(ident)); v != nil {
			key = string(v)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return key, nil
}

// Put stores key for ident, replacing any previous value.
func (s *KeyStore) Put(kind RequestKind, ident, key string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		bucket, err := tx.CreateBucketIfNotExists([]byte(kind))
		if err != nil {
			return err
		}
		return bucket.Put([]byte(ident), []byte(key))
	})
}

// Delete removes any stored key for ident.
func (s *KeyStore) Delete(kind RequestKind, ident string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(kind))
		if bucket == nil {
			return nil
		}
		return bucket.Delete([]byte(ident))
	})
}

// Close releases the underlying database.
func (s *KeyStore) Close() error {
	return s.db.Close()
}
