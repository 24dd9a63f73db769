package inventory

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.etcd.io/bbolt"
)

const (
	lookupBucketName  = "lookups"
	sessionBucketName = "session"
	sessionKey        = "current"
)

// ErrNotFound is returned when a record is not in the local database
var ErrNotFound = errors.New("not found")

// DB defines the interface for local database operations
type DB interface {
	// SaveLookup caches a barcode lookup result
	SaveLookup(lookup *CachedLookup) error

	// GetLookup retrieves a cached lookup by barcode
	GetLookup(barcode string) (*CachedLookup, error)

	// SaveToken persists the login session
	SaveToken(session *Session) error

	// Session returns the persisted login session
	Session() (*Session, error)

	// Token returns the persisted access token, or "" when logged out
	Token() (string, error)

	// ClearToken forgets the login session
	ClearToken() error

	// Close closes the database connection
	Close() error
}

// BoltDB implements the DB interface using BoltDB
type BoltDB struct {
	db *bbolt.DB
}

// NewBoltDB creates a new BoltDB instance
func NewBoltDB(path string) (*BoltDB, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening boltdb: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(lookupBucketName)); err != nil {
			return err
		}
		if _, err := tx.CreateBucketIfNotExists([]byte(sessionBucketName)); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating buckets: %w", err)
	}

	return &BoltDB{db: db}, nil
}

// SaveLookup caches a barcode lookup result
func (b *BoltDB) SaveLookup(lookup *CachedLookup) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(lookupBucketName))
		data, err := json.Marshal(lookup)
		if err != nil {
			return fmt.Errorf("marshaling lookup: %w", err)
		}
		return bucket.Put([]byte(lookup.Barcode), data)
	})
}

// GetLookup retrieves a cached lookup by barcode
func (b *BoltDB) GetLookup(barcode string) (*CachedLookup, error) {
	var lookup *CachedLookup
	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(lookupBucketName))
		data := bucket.Get([]byte(barcode))
		if data == nil {
			return fmt.Errorf("lookup %s: %w", barcode, ErrNotFound)
		}
		return json.Unmarshal(data, &lookup)
	})
	if err != nil {
		return nil, err
	}
	return lookup, nil
}

// SaveToken persists the login session
func (b *BoltDB) SaveToken(session *Session) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(sessionBucketName))
		data, err := json.Marshal(session)
		if err != nil {
			return fmt.Errorf("marshaling session: %w", err)
		}
		return bucket.Put([]byte(sessionKey), data)
	})
}

// Session returns the persisted login session
func (b *BoltDB) Session() (*Session, error) {
	var session *Session
	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(sessionBucketName))
		data := bucket.Get([]byte(sessionKey))
		if data == nil {
			return fmt.Errorf("session: %w", ErrNotFound)
		}
		return json.Unmarshal(data, &session)
	})
	if err != nil {
		return nil, err
	}
	return session, nil
}

// Token returns the persisted access token, or "" when logged out. It makes BoltDB an
// api.TokenSource.
func (b *BoltDB) Token() (string, error) {
	session, err := b.Session()
	if errors.Is(err, ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return session.Token, nil
}

// ClearToken forgets the login session
func (b *BoltDB) ClearToken() error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(sessionBucketName))
		return bucket.Delete([]byte(sessionKey))
	})
}

// Close closes the database connection
func (b *BoltDB) Close() error {
	return b.db.Close()
}
