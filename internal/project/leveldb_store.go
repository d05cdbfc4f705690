package project

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/syndtr/goleveldb/leveldb"
)

const leveldbKeyPrefix = "project:"

// LevelDBStore persists project records in an embedded LevelDB
// database, recovering from an unclean shutdown the way an existing
// database directory is reopened.
type LevelDBStore struct {
	db *leveldb.DB
}

// NewLevelDBStore opens (recovering if needed) the database at path.
func NewLevelDBStore(path string) (*LevelDBStore, error) {
	var db *leveldb.DB
	var err error
	if _, statErr := os.Stat(path); statErr == nil {
		db, err = leveldb.RecoverFile(path, nil)
	} else {
		db, err = leveldb.OpenFile(path, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("project: open leveldb %s: %w", path, err)
	}
	return &LevelDBStore{db: db}, nil
}

func (s *LevelDBStore) Load(project string) (Record, error) {
	data, err := s.db.Get([]byte(leveldbKeyPrefix+project), nil)
	if err == leveldb.ErrNotFound {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("project: leveldb get %s: %w", project, err)
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Record{}, fmt.Errorf("project: leveldb decode %s: %w", project, err)
	}
	return rec, nil
}

func (s *LevelDBStore) Save(project string, rec Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("project: leveldb encode %s: %w", project, err)
	}
	if err := s.db.Put([]byte(leveldbKeyPrefix+project), data, nil); err != nil {
		return fmt.Errorf("project: leveldb put %s: %w", project, err)
	}
	return nil
}

func (s *LevelDBStore) Delete(project string) error {
	if err := s.db.Delete([]byte(leveldbKeyPrefix+project), nil); err != nil {
		return fmt.Errorf("project: leveldb delete %s: %w", project, err)
	}
	return nil
}

func (s *LevelDBStore) Close() error {
	return s.db.Close()
}
