package gradebook_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mind-engage/mindengage-grading/internal/db"
	"github.com/mind-engage/mindengage-grading/internal/errs"
	"github.com/mind-engage/mindengage-grading/internal/gradebook"
)

func storeContract(t *testing.T, s gradebook.Store) {
	ctx := context.Background()
	at := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

	_, err := s.GetLink(ctx, "as1")
	assert.True(t, errs.IsNotFound(err))
	link := gradebook.Link{AssessmentID: "as1", LineItemsURL: "https://lms/li", ResourceLinkID: "rl", Label: "L", UpdatedAt: at}
	require.NoError(t, s.PutLink(ctx, link))
	link.Label = "L2"
	require.NoError(t, s.PutLink(ctx, link))
	got, err := s.GetLink(ctx, "as1")
	require.NoError(t, err)
	assert.Equal(t, link, got)

	_, err = s.FindLineItem(ctx, "as1")
	assert.True(t, errs.IsNotFound(err))
	li := gradebook.BoundLineItem{AssessmentID: "as1", URL: "https://lms/li/1", Label: "L", ScoreMax: 20}
	require.NoError(t, s.UpsertLineItem(ctx, li))
	li.ScoreMax = 25
	require.NoError(t, s.UpsertLineItem(ctx, li))
	gotLI, err := s.FindLineItem(ctx, "as1")
	require.NoError(t, err)
	assert.Equal(t, li, gotLI)

	_, err = s.PlatformUserID(ctx, "s1")
	assert.True(t, errs.IsNotFound(err))
	require.NoError(t, s.PutPlatformUser(ctx, "s1", "sub-a"))
	require.NoError(t, s.PutPlatformUser(ctx, "s1", "sub-b"))
	sub, err := s.PlatformUserID(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "sub-b", sub)

	_, err = s.SyncState(ctx, "at1")
	assert.True(t, errs.IsNotFound(err))
	require.NoError(t, s.MarkSync(ctx, "at1", 1, gradebook.SyncPending, "", at))
	require.NoError(t, s.MarkSync(ctx, "at1", 1, gradebook.SyncFailed, "boom", at))
	require.NoError(t, s.MarkSync(ctx, "at1", 2, gradebook.SyncFailed, "boom again", at))
	require.NoError(t, s.MarkSync(ctx, "at1", 2, gradebook.SyncOK, "", at.Add(time.Minute)))
	st, err := s.SyncState(ctx, "at1")
	require.NoError(t, err)
	assert.Equal(t, gradebook.SyncState{
		AttemptID: "at1", Version: 2, Status: gradebook.SyncOK, Retries: 2, UpdatedAt: at.Add(time.Minute),
	}, st)
}

func TestMemoryStore(t *testing.T) {
	storeContract(t, gradebook.NewMemoryStore())
}

func TestSQLStore(t *testing.T) {
	conn, err := db.Open(context.Background(), db.DriverSQLite, "file:"+t.Name()+"?mode=memory&cache=shared")
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	storeContract(t, gradebook.NewSQLStore(conn))
}
