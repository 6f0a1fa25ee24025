// Package state persists the Commander's last-execution-time and
// tasks-output maps across restarts in an embedded BoltDB file. The
// Commander loop is the sole writer; the store is a durability side
// effect of its mutations, not a second owner.
package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

var (
	bucketLastExecution = []byte("last_execution")
	bucketTasksOutput   = []byte("tasks_output")
)

// Store is a BoltDB-backed persistence layer for Commander State.
type Store struct {
	db *bolt.DB
}

// Open opens (creating if necessary) the state database at path, which may
// be a bare file name resolved under dataDir.
func Open(dataDir, path string) (*Store, error) {
	dbPath := path
	if !filepath.IsAbs(dbPath) {
		dbPath = filepath.Join(dataDir, path)
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("state: create dir: %w", err)
	}

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("state: open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketLastExecution, bucketTasksOutput} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("state: create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveLastExecution persists the last-execution-time for a task name.
func (s *Store) SaveLastExecution(taskName string, at time.Time) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketLastExecution)
		return b.Put([]byte(taskName), []byte(at.Format(time.RFC3339Nano)))
	})
}

// LoadLastExecution returns every persisted last-execution-time, keyed by
// task name. Entries that fail to parse are skipped rather than aborting
// the whole load — a corrupt single record should not prevent recovering
// the rest of the schedule.
func (s *Store) LoadLastExecution() (map[string]time.Time, error) {
	out := make(map[string]time.Time)
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketLastExecution)
		return b.ForEach(func(k, v []byte) error {
			t, err := time.Parse(time.RFC3339Nano, string(v))
			if err != nil {
				return nil
			}
			out[string(k)] = t
			return nil
		})
	})
	return out, err
}

// OutputRecord is the persisted form of a task's most recent collected
// triple.
type OutputRecord struct {
	Text string         `json:"text"`
	HTML string         `json:"html"`
	Data map[string]any `json:"data"`
}

// SaveOutput persists the most recent output triple for a task name.
func (s *Store) SaveOutput(taskName string, rec OutputRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("state: marshal output for %s: %w", taskName, err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketTasksOutput)
		return b.Put([]byte(taskName), data)
	})
}

// LoadOutputs returns every persisted output triple, keyed by task name.
func (s *Store) LoadOutputs() (map[string]OutputRecord, error) {
	out := make(map[string]OutputRecord)
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketTasksOutput)
		return b.ForEach(func(k, v []byte) error {
			var rec OutputRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return nil
			}
			out[string(k)] = rec
			return nil
		})
	})
	return out, err
}
