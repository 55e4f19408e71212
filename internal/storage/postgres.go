package storage

import (
	_ "github.com/lib/pq"
)

// PostgresStore keeps the run ledger in PostgreSQL via lib/pq.
type PostgresStore struct {
	sqlLedger
}

func NewPostgresStore(dsn string) *PostgresStore {
	return &PostgresStore{sqlLedger: sqlLedger{driver: "postgres", dsn: dsn, numbered: true, blobType: "BYTEA"}}
}
