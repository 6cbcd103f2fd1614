// Package journal keeps a persistent record of provisioning runs in a
// bbolt database, so operators can see which packages went into which
// image and whether a run left a dirty environment behind.
package journal

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"
)

const bucketRuns = "runs"

// Run statuses. StatusTeardownFailed is recorded separately from plain
// failure because it means mounts may still be live on the host.
const (
	StatusRunning        = "running"
	StatusSuccess        = "success"
	StatusFailed         = "failed"
	StatusTeardownFailed = "teardown_failed"
)

// Record captures one provisioning run.
type Record struct {
	ID         string    `json:"id"`
	Package    string    `json:"package"`
	Mountpoint string    `json:"mountpoint"`
	Status     string    `json:"status"`
	Detail     string    `json:"detail,omitempty"`
	StartTime  time.Time `json:"start_time"`
	EndTime    time.Time `json:"end_time"`
}

// Journal wraps a bbolt database of run records.
type Journal struct {
	db *bolt.DB
}

// Open opens (or creates) the journal database at path, creating parent
// directories as needed.
func Open(path string) (*Journal, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create journal directory: %w", err)
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketRuns))
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize journal: %w", err)
	}

	return &Journal{db: db}, nil
}

// Close closes the underlying database.
func (j *Journal) Close() error {
	return j.db.Close()
}

// Start records a new running entry and returns its ID.
func (j *Journal) Start(pkg, mountpoint string) (string, error) {
	rec := Record{
		ID:         uuid.NewString(),
		Package:    pkg,
		Mountpoint: mountpoint,
		Status:     StatusRunning,
		StartTime:  time.Now().UTC(),
	}
	if err := j.put(rec); err != nil {
		return "", err
	}
	return rec.ID, nil
}

// Finish updates a run with its terminal status and optional detail text.
func (j *Journal) Finish(id, status, detail string) error {
	rec, err := j.Get(id)
	if err != nil {
		return err
	}
	rec.Status = status
	rec.Detail = detail
	rec.EndTime = time.Now().UTC()
	return j.put(*rec)
}

// Get fetches a run record by ID.
func (j *Journal) Get(id string) (*Record, error) {
	var rec Record
	err := j.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket([]byte(bucketRuns)).Get([]byte(id))
		if data == nil {
			return fmt.Errorf("run %s not found", id)
		}
		return json.Unmarshal(data, &rec)
	})
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// List returns all recorded runs, most recent start first.
func (j *Journal) List() ([]Record, error) {
	var runs []Record
	err := j.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketRuns)).ForEach(func(_, v []byte) error {
			var rec Record
			if err := json.Unmarshal(v, &rec); err != nil {
				return err
			}
			runs = append(runs, rec)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	// Bucket iteration is keyed by ID; order by start time instead
	for i := 1; i < len(runs); i++ {
		for k := i; k > 0 && runs[k].StartTime.After(runs[k-1].StartTime); k-- {
			runs[k], runs[k-1] = runs[k-1], runs[k]
		}
	}
	return runs, nil
}

func (j *Journal) put(rec Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode run record: %w", err)
	}
	return j.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketRuns)).Put([]byte(rec.ID), data)
	})
}
