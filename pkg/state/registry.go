package state

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/cuemby/minicluster/pkg/types"
)

var bucketNodes = []byte("nodes")

// NodeRecord is the persisted trace of one spawned node process. Records
// outlive the supervisor that wrote them, which is the whole point: a
// crashed test run leaves records behind that the reaper can act on.
type NodeRecord struct {
	ClusterID  string         `json:"cluster_id"`
	Role       types.NodeRole `json:"role"`
	Address    string         `json:"address"`
	PID        int            `json:"pid"`
	Binary     string         `json:"binary"`
	ScratchDir string         `json:"scratch_dir"`
	StartedAt  time.Time      `json:"started_at"`

	// ProcessCreateTime is the kernel's start time for the PID in
	// milliseconds since the epoch. It distinguishes the recorded process
	// from an unrelated one that later reused the PID.
	ProcessCreateTime int64 `json:"process_create_time"`
}

func (r *NodeRecord) key() []byte {
	return []byte(r.ClusterID + "/" + r.Address)
}

// Registry is a bbolt-backed record of processes spawned by this machine's
// clusters. All writes are transactional; concurrent supervisors may share
// one registry file.
type Registry struct {
	db *bolt.DB
}

// DefaultPath returns the per-user registry location.
func DefaultPath() string {
	return filepath.Join(os.TempDir(), fmt.Sprintf("minicluster-registry-%d.db", os.Getuid()))
}

// Open opens (or creates) a registry database at the given path.
func Open(path string) (*Registry, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating registry dir: %w", err)
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open registry: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketNodes)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create bucket: %w", err)
	}

	return &Registry{db: db}, nil
}

// Close closes the database
func (r *Registry) Close() error {
	return r.db.Close()
}

// RecordNode upserts the record for a spawned process.
func (r *Registry) RecordNode(rec *NodeRecord) error {
	return r.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketNodes)
		data, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		return b.Put(rec.key(), data)
	})
}

// RemoveNode drops the record for one node. Removing an absent record is
// not an error.
func (r *Registry) RemoveNode(clusterID, address string) error {
	return r.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketNodes)
		return b.Delete([]byte(clusterID + "/" + address))
	})
}

// RemoveCluster drops every record belonging to one cluster.
func (r *Registry) RemoveCluster(clusterID string) error {
	prefix := []byte(clusterID + "/")
	return r.db.Update(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketNodes).Cursor()
		for k, _ := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = c.Next() {
			if err := c.Delete(); err != nil {
				return err
			}
		}
		return nil
	})
}

// ListNodes returns all recorded processes.
func (r *Registry) ListNodes() ([]*NodeRecord, error) {
	var records []*NodeRecord
	err := r.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketNodes)
		return b.ForEach(func(k, v []byte) error {
			var rec NodeRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return err
			}
			records = append(records, &rec)
			return nil
		})
	})
	return records, err
}
