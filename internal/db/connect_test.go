package db

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTest(t *testing.T) *sql.DB {
	t.Helper()
	conn, err := Open(context.Background(), DriverSQLite, "file:"+t.Name()+"?mode=memory&cache=shared")
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestOpenCreatesSchema(t *testing.T) {
	conn := openTest(t)
	for _, table := range []string{"questions", "assessments", "review_transitions", "attempts", "submissions", "assessment_results", "event_log", "gradebook_links", "gradebook_line_items", "gradebook_users", "gradebook_sync"} {
		var name string
		err := conn.QueryRow(`SELECT name FROM sqlite_master WHERE type='table' AND name=$1`, table).Scan(&name)
		require.NoError(t, err, table)
	}

	_, err := Open(context.Background(), Driver("mysql"), "")
	assert.Error(t, err)
}

func TestWithTx(t *testing.T) {
	conn := openTest(t)
	ctx := context.Background()
	insert := func(tx *sql.Tx, typ string) error {
		_, err := tx.ExecContext(ctx, `INSERT INTO event_log (site_id, typ, key, data, created_at) VALUES ('s', $1, 'k', '{}', 0)`, typ)
		return err
	}
	count := func() int {
		var n int
		require.NoError(t, conn.QueryRow(`SELECT COUNT(*) FROM event_log`).Scan(&n))
		return n
	}

	require.NoError(t, WithTx(ctx, conn, func(tx *sql.Tx) error { return insert(tx, "kept") }))
	assert.Equal(t, 1, count())

	boom := errors.New("boom")
	err := WithTx(ctx, conn, func(tx *sql.Tx) error {
		require.NoError(t, insert(tx, "dropped"))
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, count(), "rolled back")

	assert.Panics(t, func() {
		_ = WithTx(ctx, conn, func(tx *sql.Tx) error {
			_ = insert(tx, "panicked")
			panic("bad")
		})
	})
	assert.Equal(t, 1, count())
}
