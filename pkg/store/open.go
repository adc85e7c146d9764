// Package store is the SQLite persistence layer for tasks, task attempts
// and execution processes. It opens databases with an optional row-change
// hook so the event service can observe every committed mutation.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync/atomic"

	"github.com/mattn/go-sqlite3"
)

// Op is a row-change operation reported by the update hook.
type Op string

const (
	OpInsert  Op = "insert"
	OpUpdate  Op = "update"
	OpDelete  Op = "delete"
	OpUnknown Op = "unknown"
)

// HookFunc observes one committed row change. It runs on the SQL engine's
// connection thread and must not block; delegate real work to a
// goroutine.
type HookFunc func(op Op, table string, rowid int64)

// DB wraps the pooled connection handle.
type DB struct {
	*sql.DB
}

// Driver registration is global and permanent, so each hooked open gets
// its own driver name.
var driverSeq atomic.Int64

func opFromSQLite(op int) Op {
	switch op {
	case sqlite3.SQLITE_INSERT:
		return OpInsert
	case sqlite3.SQLITE_UPDATE:
		return OpUpdate
	case sqlite3.SQLITE_DELETE:
		return OpDelete
	default:
		return OpUnknown
	}
}

// Open opens the database at path without a change hook.
func Open(path string) (*DB, error) {
	return open("sqlite3", path)
}

// OpenWithHook opens the database at path and installs hook on every
// pooled connection. Row fetches triggered by the hook go through the
// same pool, so they observe the state that fired the hook.
func OpenWithHook(path string, hook HookFunc) (*DB, error) {
	name := fmt.Sprintf("sqlite3_hook_%d", driverSeq.Add(1))
	sql.Register(name, &sqlite3.SQLiteDriver{
		ConnectHook: func(conn *sqlite3.SQLiteConn) error {
			conn.RegisterUpdateHook(func(op int, dbName, table string, rowid int64) {
				hook(opFromSQLite(op), table, rowid)
			})
			return nil
		},
	})
	return open(name, path)
}

// open enforces production-safe defaults: WAL journal mode and a
// 5-second busy timeout, with a ping to verify the connection is usable
// before returning.
func open(driver, path string) (*DB, error) {
	db, err := sql.Open(driver, path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}

	ctx := context.Background()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite %s: %w", path, err)
	}

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode on %s: %w", path, err)
	}

	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy_timeout on %s: %w", path, err)
	}

	return &DB{DB: db}, nil
}
