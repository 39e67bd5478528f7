package storage

import (
	"os"
	"path/filepath"

	"go.etcd.io/bbolt"
	"go.uber.org/zap"

	"github.com/young1lin/agentsearch/internal/session"
	"github.com/young1lin/agentsearch/pkg/logger"
)

var bucketName = []byte("sessions")

var _ session.Store = (*SessionStore)(nil)

// SessionStore persists one session identifier per browser profile using BBolt
type SessionStore struct {
	db *bbolt.DB
}

// NewSessionStore opens (or creates) the session database at path
func NewSessionStore(path string) (*SessionStore, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, err
		}
	}

	db, err := bbolt.Open(path, 0600, nil)
	if err != nil {
		return nil, err
	}

	// Create bucket if not exists
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("session store initialized", zap.String("path", path))
	return &SessionStore{db: db}, nil
}

// Save stores the session identifier for a profile
func (s *SessionStore) Save(profile, id string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketName).Put([]byte(profile), []byte(id))
	})
}

// Load returns the session identifier for a profile and whether it exists
func (s *SessionStore) Load(profile string) (string, bool, error) {
	var id string

	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketName).Get([]byte(profile))
		if data != nil {
			// bbolt values are only valid inside the transaction
			id = string(data)
		}
		return nil
	})
	if err != nil {
		return "", false, err
	}

	return id, id != "", nil
}

// Delete forgets the session identifier of a profile
func (s *SessionStore) Delete(profile string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketName).Delete([]byte(profile))
	})
}

// Close closes the database connection
func (s *SessionStore) Close() error {
	return s.db.Close()
}
