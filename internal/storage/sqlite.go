//go:build sqlite

package storage

import (
	_ "modernc.org/sqlite"
)

type SQLiteStore struct {
	sqlLedger
}

func NewSQLiteStore(path string) *SQLiteStore {
	return &SQLiteStore{sqlLedger: sqlLedger{driver: "sqlite", dsn: path, blobType: "BLOB"}}
}

func newSQLiteStore(path string) (Store, error) {
	return NewSQLiteStore(path), nil
}
