// Package store persists session snapshots in a bolt database.
//
// Snapshots are flat cell-id to value maps. Each session gets its own
// bucket nested under a top-level sessions bucket; values are stored as
// JSON so snapshots survive process restarts and version upgrades.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

// ErrNoSession is returned when loading a session with no snapshot.
var ErrNoSession = errors.New("store: no such session")

var bucketSessions = []byte("sessions")

// Store is a bolt-backed snapshot store. Safe for concurrent use.
type Store struct {
	db *bolt.DB
}

// Open opens or creates the database at path.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0o644, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketSessions)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("store: init %s: %w", path, err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveSession stores the snapshot for id, replacing any previous one.
func (s *Store) SaveSession(id string, values map[string]any) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		sessions := tx.Bucket(bucketSessions)
		if err := sessions.DeleteBucket([]byte(id)); err != nil && !errors.Is(err, bolt.ErrBucketNotFound) {
			return err
		}
		b, err := sessions.CreateBucket([]byte(id))
		if err != nil {
			return err
		}
		for cell, value := range values {
			data, err := json.Marshal(value)
			if err != nil {
				return fmt.Errorf("store: encode %s/%s: %w", id, cell, err)
			}
			if err := b.Put([]byte(cell), data); err != nil {
				return err
			}
		}
		return nil
	})
}

// LoadSession returns the snapshot for id, or ErrNoSession.
func (s *Store) LoadSession(id string) (map[string]any, error) {
	values := make(map[string]any)
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSessions).Bucket([]byte(id))
		if b == nil {
			return ErrNoSession
		}
		return b.ForEach(func(k, v []byte) error {
			var value any
			if err := json.Unmarshal(v, &value); err != nil {
				return fmt.Errorf("store: decode %s/%s: %w", id, string(k), err)
			}
			values[string(k)] = value
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return values, nil
}

// HasSession reports whether a snapshot exists for id.
func (s *Store) HasSession(id string) (bool, error) {
	var ok bool
	err := s.db.View(func(tx *bolt.Tx) error {
		ok = tx.Bucket(bucketSessions).Bucket([]byte(id)) != nil
		return nil
	})
	return ok, err
}

// DeleteSession removes the snapshot for id; deleting a missing session is
// not an error.
func (s *Store) DeleteSession(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		err := tx.Bucket(bucketSessions).DeleteBucket([]byte(id))
		if errors.Is(err, bolt.ErrBucketNotFound) {
			return nil
		}
		return err
	})
}

// Sessions lists the ids with stored snapshots.
func (s *Store) Sessions() ([]string, error) {
	var ids []string
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSessions).ForEachBucket(func(k []byte) error {
			ids = append(ids, string(k))
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}
