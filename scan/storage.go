package scan

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"log"
	"os"
	"time"

	bolt "go.etcd.io/bbolt"
)

var dimensionsBucket = []byte("dimensions")

// StoredFileData is the persisted dimension record for one image path.
type StoredFileData struct {
	Size     int64
	Modified int64 // UnixNano
	Width    int
	Height   int
}

// Serialize encodes StoredFileData using gob
func (s *StoredFileData) Serialize() ([]byte, error) {
	var buf bytes.Buffer
	enc := gob.NewEncoder(&buf)
	if err := enc.Encode(s); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Deserialize decodes StoredFileData from gob
func (s *StoredFileData) Deserialize(data []byte) error {
	dec := gob.NewDecoder(bytes.NewReader(data))
	return dec.Decode(s)
}

// matches reports whether the record still describes the file behind info.
func (s *StoredFileData) matches(info os.FileInfo) bool {
	return s.Size == info.Size() && s.Modified == info.ModTime().UnixNano()
}

// Store is a bbolt-backed dimension index keyed by absolute image path.
// Records are reused while the file's size and mtime are unchanged.
type Store struct {
	db *bolt.DB
}

// OpenStore opens (or creates) the index at path.
func OpenStore(path string) (*Store, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open dimension index: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(dimensionsBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create bucket: %w", err)
	}

	return &Store{db: db}, nil
}

// Close releases the underlying database file.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Dimensions implements Prober. A nil Store probes directly.
func (s *Store) Dimensions(path string, info os.FileInfo) (int, int) {
	if s == nil || s.db == nil {
		return Direct.Dimensions(path, info)
	}

	if rec, err := s.lookup(path); err == nil && rec != nil && rec.matches(info) {
		return rec.Width, rec.Height
	}

	w, h, err := Probe(path)
	if err != nil {
		// Unreadable headers are not recorded so a later fix is picked up.
		return 0, 0
	}

	rec := &StoredFileData{
		Size:     info.Size(),
		Modified: info.ModTime().UnixNano(),
		Width:    w,
		Height:   h,
	}
	if err := s.put(path, rec); err != nil {
		log.Printf("Failed to store dimensions for %s: %v", path, err)
	}
	return w, h
}

// Len returns the number of indexed paths.
func (s *Store) Len() int {
	n := 0
	s.db.View(func(tx *bolt.Tx) error {
		n = tx.Bucket(dimensionsBucket).Stats().KeyN
		return nil
	})
	return n
}

func (s *Store) lookup(path string) (*StoredFileData, error) {
	var rec *StoredFileData
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(dimensionsBucket).Get([]byte(path))
		if data == nil {
			return nil
		}
		rec = &StoredFileData{}
		return rec.Deserialize(data)
	})
	return rec, err
}

func (s *Store) put(path string, rec *StoredFileData) error {
	data, err := rec.Serialize()
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(dimensionsBucket).Put([]byte(path), data)
	})
}
