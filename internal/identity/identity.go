// Package identity keeps a stable per-installation user id.
package identity

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"
)

var (
	bucketName = []byte("identity")
	userIDKey  = []byte("user_id")
)

// Store is a tiny key-value backend for the user id.
type Store interface {
	Get() (string, error)
	Put(id string) error
}

// Load возвращает сохранённый id или генерирует и сохраняет новый.
func Load(s Store) (string, error) {
	id, err := s.Get()
	if err != nil {
		return "", fmt.Errorf("identity: read: %w", err)
	}
	if id != "" {
		return id, nil
	}
	id = generate()
	if err := s.Put(id); err != nil {
		return "", fmt.Errorf("identity: write: %w", err)
	}
	return id, nil
}

var newRandom = uuid.NewRandom

func generate() string {
	if u, err := newRandom(); err == nil {
		return u.String()
	}
	return fallbackV4()
}

// fallbackV4 форматирует 16 псевдослучайных байт как UUID v4.
func fallbackV4() string {
	var b [16]byte
	for i := range b {
		b[i] = byte(rand.UintN(256))
	}
	b[6] = (b[6] & 0x0f) | 0x40
	b[8] = (b[8] & 0x3f) | 0x80
	return fmt.Sprintf("%x-%x-%x-%x-%x", b[0:4], b[4:6], b[6:8], b[8:10], b[10:16])
}

type BoltStore struct {
	db *bolt.DB
}

func Open(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("identity: open %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("identity: init bucket: %w", err)
	}
	return &BoltStore{db: db}, nil
}

func (s *BoltStore) Get() (string, error) {
	var id string
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketName)
		if b == nil {
			return errors.New("bucket missing")
		}
		id = strings.TrimSpace(string(b.Get(userIDKey)))
		return nil
	})
	return id, err
}

func (s *BoltStore) Put(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketName).Put(userIDKey, []byte(id))
	})
}

func (s *BoltStore) Close() error { return s.db.Close() }

// MemoryStore is used by tests and by bots that don't need a stable id.
type MemoryStore struct {
	mu sync.Mutex
	id string
}

func (m *MemoryStore) Get() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.id, nil
}

func (m *MemoryStore) Put(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.id = id
	return nil
}
