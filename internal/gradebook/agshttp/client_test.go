package agshttp_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mind-engage/mindengage-grading/internal/gradebook"
	"github.com/mind-engage/mindengage-grading/internal/gradebook/agshttp"
)

type platform struct {
	*httptest.Server
	tokens atomic.Int32
	scores []map[string]any
}

func newPlatform(t *testing.T) *platform {
	t.Helper()
	p := &platform{}
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "client_credentials", r.PostForm.Get("grant_type"))
		p.tokens.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"tok-1","token_type":"bearer","expires_in":3600}`))
	})
	mux.HandleFunc("/ctx/1/lineitems", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok-1" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		switch r.Method {
		case http.MethodGet:
			assert.Equal(t, "as1", r.URL.Query().Get("resource_id"))
			assert.Empty(t, r.URL.Query().Get("resource_link_id"), "empty filters are dropped")
			w.Header().Set("Content-Type", "application/vnd.ims.lis.v2.lineitemcontainer+json")
			_, _ = w.Write([]byte(`[{"id":"` + p.URL + `/ctx/1/lineitems/7","label":"Quiz","scoreMaximum":20,"resourceId":"as1"}]`))
		case http.MethodPost:
			assert.Equal(t, "application/vnd.ims.lis.v2.lineitem+json", r.Header.Get("Content-Type"))
			var in map[string]any
			require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
			in["id"] = p.URL + "/ctx/1/lineitems/8"
			w.WriteHeader(http.StatusCreated)
			_ = json.NewEncoder(w).Encode(in)
		}
	})
	mux.HandleFunc("/ctx/1/lineitems/7/scores", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok-1", r.Header.Get("Authorization"))
		assert.Equal(t, "application/vnd.ims.lis.v1.score+json", r.Header.Get("Content-Type"))
		assert.Equal(t, "v=2", r.URL.RawQuery)
		var s map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&s))
		p.scores = append(p.scores, s)
		w.WriteHeader(http.StatusNoContent)
	})
	p.Server = httptest.NewServer(mux)
	t.Cleanup(p.Close)
	return p
}

func client(p *platform) *agshttp.Client {
	return agshttp.New(agshttp.Config{
		TokenURL:     p.URL + "/token",
		ClientID:     "grading",
		ClientSecret: "secret",
		Timeout:      5 * time.Second,
	})
}

func TestLineItemsAndScores(t *testing.T) {
	p := newPlatform(t)
	c := client(p)
	ctx := context.Background()

	items, err := c.ListLineItems(ctx, p.URL+"/ctx/1/lineitems", map[string]string{"resource_id": "as1", "resource_link_id": ""})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, gradebook.LineItem{ID: p.URL + "/ctx/1/lineitems/7", Label: "Quiz", ScoreMaximum: 20, ResourceID: "as1"}, items[0])

	created, err := c.CreateLineItem(ctx, p.URL+"/ctx/1/lineitems", gradebook.CreateLineItemReq{
		Label: "Quiz 2", ScoreMaximum: 15, ResourceID: "as2", ResourceLinkID: "rl",
	})
	require.NoError(t, err)
	assert.Equal(t, gradebook.LineItem{
		ID: p.URL + "/ctx/1/lineitems/8", Label: "Quiz 2", ScoreMaximum: 15, ResourceID: "as2", ResourceLinkID: "rl",
	}, created)

	at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	err = c.PostScore(ctx, p.URL+"/ctx/1/lineitems/7/?v=2", gradebook.Score{
		UserID: "sub", ScoreGiven: 17, ScoreMaximum: 20,
		ActivityProgress: "Completed", GradingProgress: gradebook.ProgressFullyGraded, Timestamp: at,
	})
	require.NoError(t, err)
	require.Len(t, p.scores, 1)
	assert.Equal(t, "sub", p.scores[0]["userId"])
	assert.Equal(t, 17.0, p.scores[0]["scoreGiven"])
	assert.Equal(t, "FullyGraded", p.scores[0]["gradingProgress"])
	assert.Equal(t, "2025-03-01T12:00:00Z", p.scores[0]["timestamp"])

	assert.Equal(t, int32(1), p.tokens.Load(), "token is cached across calls")
}

func TestPlatformErrors(t *testing.T) {
	p := newPlatform(t)
	c := client(p)
	ctx := context.Background()

	err := c.PostScore(ctx, p.URL+"/ctx/1/lineitems/404", gradebook.Score{Timestamp: time.Now()})
	assert.ErrorContains(t, err, "404")

	_, err = c.ListLineItems(ctx, "://bad", nil)
	assert.Error(t, err)
}
