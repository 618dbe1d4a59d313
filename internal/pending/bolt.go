package pending

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/boltdb/bolt"
)

var bucketName = []byte("pending")

// BoltStore persists entries in a bolt file so confirmations survive a
// restart. It honors the same TTL contract as MemoryStore.
type BoltStore struct {
	db  *bolt.DB
	ttl time.Duration
	now func() time.Time
}

func OpenBolt(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open pending store: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create pending bucket: %w", err)
	}
	return &BoltStore{db: db, ttl: TTL, now: time.Now}, nil
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}

func (s *BoltStore) Put(e Entry) (string, error) {
	now := s.now()
	e.CreatedAt = now

	var id string
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketName)

		var expired [][]byte
		c := b.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var old Entry
			if err := json.Unmarshal(v, &old); err != nil || now.Sub(old.CreatedAt) > s.ttl {
				expired = append(expired, append([]byte(nil), k...))
			}
		}
		for _, k := range expired {
			if err := b.Delete(k); err != nil {
				return err
			}
		}

		id = newID()
		for b.Get([]byte(id)) != nil {
			id = newID()
		}
		data, err := json.Marshal(e)
		if err != nil {
			return err
		}
		return b.Put([]byte(id), data)
	})
	if err != nil {
		return "", fmt.Errorf("store pending entry: %w", err)
	}
	return id, nil
}

func (s *BoltStore) Get(id string) (Entry, bool) {
	var (
		e     Entry
		found bool
	)
	_ = s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketName).Get([]byte(id))
		if v == nil {
			return nil
		}
		if err := json.Unmarshal(v, &e); err != nil {
			return nil
		}
		found = s.now().Sub(e.CreatedAt) <= s.ttl
		return nil
	})
	if !found {
		return Entry{}, false
	}
	return e, true
}

func (s *BoltStore) Delete(id string) {
	_ = s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketName).Delete([]byte(id))
	})
}

func (s *BoltStore) Take(id string, userID uint) (Entry, error) {
	var e Entry
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketName)
		v := b.Get([]byte(id))
		if v == nil {
			return ErrExpired
		}
		if err := json.Unmarshal(v, &e); err != nil || s.now().Sub(e.CreatedAt) > s.ttl {
			return ErrExpired
		}
		if e.UserID != userID {
			return ErrNotOwner
		}
		return b.Delete([]byte(id))
	})
	switch {
	case errors.Is(err, ErrExpired), errors.Is(err, ErrNotOwner):
		return Entry{}, err
	case err != nil:
		return Entry{}, fmt.Errorf("take pending entry: %w", err)
	}
	return e, nil
}

func (s *BoltStore) Restore(id string, e Entry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("restore pending entry: %w", err)
	}
	err = s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketName).Put([]byte(id), data)
	})
	if err != nil {
		return fmt.Errorf("restore pending entry: %w", err)
	}
	return nil
}
