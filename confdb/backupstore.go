// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

package confdb

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.etcd.io/bbolt"

	"github.com/netascode/go-confapi/cfgerr"
)

// BackupStore keeps encoded tree snapshots under generated names
type BackupStore interface {
	// Save stores data and returns the name it can be loaded under
	Save(ctx context.Context, data []byte) (string, error)

	// Load returns the data saved under name
	Load(ctx context.Context, name string) ([]byte, error)

	// Remove forgets name
	Remove(ctx context.Context, name string) error

	// Close releases the store
	Close() error
}

// FileBackupStore keeps one file per backup in a directory. The
// backup name is the file path.
type FileBackupStore struct {
	mu  sync.Mutex
	dir string
	seq uint64
}

// NewFileBackupStore creates a store in dir; "" means os.TempDir()
func NewFileBackupStore(dir string) *FileBackupStore {
	if dir == "" {
		dir = os.TempDir()
	}
	return &FileBackupStore{dir: filepath.Clean(dir)}
}

// Save writes data to <dir>/cfg_backup_<pid>_<seq>.mpk
func (s *FileBackupStore) Save(_ context.Context, data []byte) (string, error) {
	s.mu.Lock()
	s.seq++
	name := filepath.Join(s.dir, fmt.Sprintf("cfg_backup_%d_%d.mpk", os.Getpid(), s.seq))
	s.mu.Unlock()

	if err := os.MkdirAll(s.dir, 0o750); err != nil {
		return "", cfgerr.Wrap(cfgerr.ModuleCS, cfgerr.Internal, err, "cannot create backup directory")
	}
	if err := os.WriteFile(name, data, 0o600); err != nil {
		return "", cfgerr.Wrap(cfgerr.ModuleCS, cfgerr.Internal, err, "cannot write backup")
	}
	return name, nil
}

// Load reads a backup file
func (s *FileBackupStore) Load(_ context.Context, name string) ([]byte, error) {
	if err := s.own(name); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(name)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, cfgerr.New(cfgerr.ModuleCS, cfgerr.NotFound, "backup %s does not exist", name)
	}
	if err != nil {
		return nil, cfgerr.Wrap(cfgerr.ModuleCS, cfgerr.Internal, err, "cannot read backup %s", name)
	}
	return data, nil
}

// Remove deletes a backup file
func (s *FileBackupStore) Remove(_ context.Context, name string) error {
	if err := s.own(name); err != nil {
		return err
	}
	err := os.Remove(name)
	if errors.Is(err, fs.ErrNotExist) {
		return cfgerr.New(cfgerr.ModuleCS, cfgerr.NotFound, "backup %s does not exist", name)
	}
	if err != nil {
		return cfgerr.Wrap(cfgerr.ModuleCS, cfgerr.Internal, err, "cannot remove backup %s", name)
	}
	return nil
}

// Close is a no-op
func (s *FileBackupStore) Close() error {
	return nil
}

// own rejects names outside the store directory
func (s *FileBackupStore) own(name string) error {
	if filepath.Dir(filepath.Clean(name)) != s.dir || !strings.HasPrefix(filepath.Base(name), "cfg_backup_") {
		return cfgerr.New(cfgerr.ModuleCS, cfgerr.InvalidArgument, "%s is not a backup name", name)
	}
	return nil
}

// BoltPrefix starts the names of backups kept by a BoltBackupStore
const BoltPrefix = "bolt:"

var backupBucket = []byte("backups")

// BoltBackupStore keeps backups in a bbolt database
type BoltBackupStore struct {
	db *bbolt.DB
}

// OpenBoltBackupStore opens (or creates) the database at path
func OpenBoltBackupStore(path string) (*BoltBackupStore, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, cfgerr.Wrap(cfgerr.ModuleCS, cfgerr.Internal, err, "cannot open backup database %s", path)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(backupBucket)
		return err
	})
	if err != nil {
		db.Close() //nolint:errcheck
		return nil, cfgerr.Wrap(cfgerr.ModuleCS, cfgerr.Internal, err, "cannot initialise backup database %s", path)
	}
	return &BoltBackupStore{db: db}, nil
}

// Save stores data under bolt:<sequence>
func (s *BoltBackupStore) Save(_ context.Context, data []byte) (string, error) {
	var name string
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(backupBucket)
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		key := strconv.FormatUint(seq, 10)
		name = BoltPrefix + key
		return b.Put([]byte(key), data)
	})
	if err != nil {
		return "", cfgerr.Wrap(cfgerr.ModuleCS, cfgerr.Internal, err, "cannot store backup")
	}
	return name, nil
}

// Load returns the backup stored under name
func (s *BoltBackupStore) Load(_ context.Context, name string) ([]byte, error) {
	key, err := boltKey(name)
	if err != nil {
		return nil, err
	}
	var data []byte
	err = s.db.View(func(tx *bbolt.Tx) error {
		if v := tx.Bucket(backupBucket).Get(key); v != nil {
			data = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return nil, cfgerr.Wrap(cfgerr.ModuleCS, cfgerr.Internal, err, "cannot read backup %s", name)
	}
	if data == nil {
		return nil, cfgerr.New(cfgerr.ModuleCS, cfgerr.NotFound, "backup %s does not exist", name)
	}
	return data, nil
}

// Remove deletes the backup stored under name
func (s *BoltBackupStore) Remove(_ context.Context, name string) error {
	key, err := boltKey(name)
	if err != nil {
		return err
	}
	var found bool
	err = s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(backupBucket)
		found = b.Get(key) != nil
		return b.Delete(key)
	})
	if err != nil {
		return cfgerr.Wrap(cfgerr.ModuleCS, cfgerr.Internal, err, "cannot remove backup %s", name)
	}
	if !found {
		return cfgerr.New(cfgerr.ModuleCS, cfgerr.NotFound, "backup %s does not exist", name)
	}
	return nil
}

// Close closes the database
func (s *BoltBackupStore) Close() error {
	return s.db.Close()
}

func boltKey(name string) ([]byte, error) {
	key, ok := strings.CutPrefix(name, BoltPrefix)
	if !ok || key == "" {
		return nil, cfgerr.New(cfgerr.ModuleCS, cfgerr.InvalidArgument, "%s is not a backup name", name)
	}
	return []byte(key), nil
}
