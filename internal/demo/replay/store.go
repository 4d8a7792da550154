// Package replay provides an append-only transcript store for the demo
// harness, backed by bbolt: one bucket per session, keys are a
// fixed-length big-endian sequence number so entries replay back in the
// order they were appended. This is a debugging side-channel for the demo
// binary only - the core protocol state is never persisted.
package replay

import (
	"bytes"
	"encoding/binary"
	"encoding/json"

	bolt "go.etcd.io/bbolt"
)

// StoreOpenPerm is the file mode used when creating a new transcript database.
const StoreOpenPerm = 0660

var sessionsBucket = []byte("sessions")

// Store is an append-only log of transcript entries, keyed by session id.
type Store struct {
	db *bolt.DB
}

// Open creates or opens the bbolt file at path and ensures the top-level
// sessions bucket exists.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, StoreOpenPerm, nil)
	if err != nil {
		return nil, err
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(sessionsBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close releases the underlying bbolt file.
func (s *Store) Close() error {
	return s.db.Close()
}

// Append marshals entry as JSON and appends it to sessionID's transcript.
func (s *Store) Append(sessionID string, entry interface{}) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		top := tx.Bucket(sessionsBucket)
		sub, err := top.CreateBucketIfNotExists([]byte(sessionID))
		if err != nil {
			return err
		}
		seq, err := sub.NextSequence()
		if err != nil {
			return err
		}
		return sub.Put(seqToBytes(seq), data)
	})
}

// Replay returns every transcript entry recorded for sessionID, in append
// order, as raw JSON. A caller decodes each entry into the type it expects.
func (s *Store) Replay(sessionID string) ([]json.RawMessage, error) {
	var out []json.RawMessage
	err := s.db.View(func(tx *bolt.Tx) error {
		top := tx.Bucket(sessionsBucket)
		sub := top.Bucket([]byte(sessionID))
		if sub == nil {
			return nil
		}
		return sub.ForEach(func(_, v []byte) error {
			cp := make([]byte, len(v))
			copy(cp, v)
			out = append(out, cp)
			return nil
		})
	})
	return out, err
}

func seqToBytes(seq uint64) []byte {
	var buf bytes.Buffer
	_ = binary.Write(&buf, binary.BigEndian, seq)
	return buf.Bytes()
}
