// SPDX-License-Identifier: ice License 1.0

package history

import (
	"context"
	"crypto/sha256"
	_ "embed"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/reflectx"
	_ "github.com/mattn/go-sqlite3"
)

// Client stores superseded versions of replaceable and addressable events.
// The live cache only ever holds the newest event per address; everything it
// replaces lands here so edit history survives restarts and can be inspected.
type Client struct {
	*sqlx.DB

	stmtCacheMx *sync.RWMutex
	stmtCache   map[string]*sqlx.NamedStmt
}

var (
	//go:embed DDL.sql
	ddl string
)

// Open connects to the sqlite database at target (":memory:" works for
// tests) and applies the schema.
func Open(target string) *Client {
	client := &Client{
		DB:          sqlx.MustConnect("sqlite3", target),
		stmtCacheMx: new(sync.RWMutex),
		stmtCache:   make(map[string]*sqlx.NamedStmt),
	}
	client.Mapper = reflectx.NewMapperFunc("history", func(in string) (out string) {
		n := strings.ToLower(in)
		switch n {
		case "createdat":
			out = "created_at"
		case "dtag":
			out = "d_tag"
		default:
			out = n
		}

		return out
	})

	for _, statement := range strings.Split(ddl, "--------") {
		client.MustExec(statement)
	}

	return client
}

func (db *Client) exec(ctx context.Context, sql string, arg any) (rowsAffected int64, err error) {
	stmt, err := db.prepare(ctx, sql)
	if err != nil {
		return 0, errors.Wrapf(err, "failed to prepare exec sql: `%v`", sql)
	}

	result, err := stmt.ExecContext(ctx, arg)
	if err != nil {
		return 0, errors.Wrapf(err, "failed to exec prepared sql: `%v`", sql)
	}
	if rowsAffected, err = result.RowsAffected(); err != nil {
		return 0, errors.Wrapf(err, "failed to process rows affected for exec prepared sql: `%v`", sql)
	}

	return rowsAffected, nil
}

func (db *Client) selectMany(ctx context.Context, sql string, arg, dest any) error {
	stmt, err := db.prepare(ctx, sql)
	if err != nil {
		return errors.Wrapf(err, "failed to prepare select sql: `%v`", sql)
	}

	return errors.Wrapf(stmt.SelectContext(ctx, dest, arg), "failed to run prepared select sql: `%v`", sql)
}

func (db *Client) prepare(ctx context.Context, sql string) (stmt *sqlx.NamedStmt, err error) {
	hash := hashSQL(sql)
	db.stmtCacheMx.RLock()
	stmt, found := db.stmtCache[hash]
	db.stmtCacheMx.RUnlock()
	if found {
		return stmt, nil
	}

	db.stmtCacheMx.Lock()
	stmt, found = db.stmtCache[hash]
	if found {
		db.stmtCacheMx.Unlock()

		return stmt, nil
	}

	stmt, err = db.PrepareNamedContext(ctx, sql)
	if err == nil {
		db.stmtCache[hash] = stmt
	}
	db.stmtCacheMx.Unlock()

	return stmt, err
}

func hashSQL(sql string) (hash string) {
	sum := sha256.Sum256([]byte(sql))

	return string(sum[:])
}
