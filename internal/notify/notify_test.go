package notify

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/mind-engage/mindengage-grading/internal/db"
)

var at = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

func TestMulti(t *testing.T) {
	var got []string
	rec := func(name string, err error) Notifier {
		return Func(func(_ context.Context, e Event) error {
			got = append(got, name+":"+e.Type)
			return err
		})
	}
	e1, e2 := errors.New("redis down"), errors.New("disk full")
	m := Multi{rec("a", nil), rec("b", e1), Nop{}, rec("c", e2)}

	err := m.Notify(context.Background(), Event{Type: TypeGradeCompleted, Key: "att-1", At: at})
	assert.Equal(t, []string{"a:grade.completed", "b:grade.completed", "c:grade.completed"}, got, "one failure does not stop the rest")
	assert.ErrorIs(t, err, e1)
	assert.ErrorIs(t, err, e2)

	assert.NoError(t, Multi{}.Notify(context.Background(), Event{}))
}

func TestLog(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	n := Log{L: zap.New(core)}
	require.NoError(t, n.Notify(context.Background(), Event{Type: TypeReviewTransition, Key: "as-1", At: at, Data: map[string]string{"to": "submitted"}}))

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, TypeReviewTransition, fields["type"])
	assert.Equal(t, "as-1", fields["key"])
}

func TestRedisChannel(t *testing.T) {
	r := NewRedis(nil, "")
	assert.Equal(t, "grading.events:grade.revised", r.Channel(TypeGradeRevised))
	assert.Equal(t, "lms:review.transition", NewRedis(nil, "lms").Channel(TypeReviewTransition))
}

func TestRedisPublishes(t *testing.T) {
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	ctx := context.Background()

	sub := client.Subscribe(ctx, "grading.events:grade.completed")
	t.Cleanup(func() { _ = sub.Close() })
	_, err := sub.Receive(ctx) // subscription confirmed
	require.NoError(t, err)
	msgs := sub.Channel()

	pub := NewRedis(client, "")
	require.NoError(t, pub.Notify(ctx, Event{
		Type: TypeGradeCompleted,
		Key:  "att-1",
		At:   at,
		Data: ResultData{AttemptID: "att-1", Version: 2, TotalScore: 18, MaxScore: 30, Status: "passed"},
	}))

	select {
	case msg := <-msgs:
		assert.Equal(t, "grading.events:grade.completed", msg.Channel)
		var got struct {
			Type string     `json:"type"`
			Key  string     `json:"key"`
			At   time.Time  `json:"at"`
			Data ResultData `json:"data"`
		}
		require.NoError(t, json.Unmarshal([]byte(msg.Payload), &got))
		assert.Equal(t, TypeGradeCompleted, got.Type)
		assert.Equal(t, "att-1", got.Key)
		assert.True(t, at.Equal(got.At))
		assert.Equal(t, 2, got.Data.Version)
		assert.Equal(t, 18.0, got.Data.TotalScore)
	case <-time.After(2 * time.Second):
		t.Fatal("no message on grading.events:grade.completed")
	}

	srv.Close()
	assert.Error(t, pub.Notify(ctx, Event{Type: TypeGradeRevised, Key: "att-1", At: at}))
}

func TestEventLog(t *testing.T) {
	conn, err := db.Open(context.Background(), db.DriverSQLite, "file:"+t.Name()+"?mode=memory&cache=shared")
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	l := NewEventLog(conn, "campus-a")
	ctx := context.Background()
	for i, typ := range []string{TypeGradePending, TypeGradeRevised, TypeGradeCompleted} {
		require.NoError(t, l.Notify(ctx, Event{Type: typ, Key: "att-1", At: at.Add(time.Duration(i) * time.Minute), Data: map[string]int{"n": i}}))
	}

	all, err := l.Since(ctx, 0, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, TypeGradePending, all[0].Type)
	assert.Equal(t, "campus-a", all[0].SiteID)
	assert.Equal(t, at.Unix(), all[0].CreatedAt)
	var data map[string]int
	require.NoError(t, json.Unmarshal([]byte(all[2].DataJSON), &data))
	assert.Equal(t, 2, data["n"])

	tail, err := l.Since(ctx, all[0].Seq, 1)
	require.NoError(t, err)
	require.Len(t, tail, 1)
	assert.Equal(t, TypeGradeRevised, tail[0].Type)

	assert.Equal(t, "local", NewEventLog(conn, "").siteID)
}
