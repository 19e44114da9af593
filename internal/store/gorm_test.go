package store

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"webhook-ingest/backend/internal/models"
	"webhook-ingest/backend/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *GormStore {
	t.Helper()
	url := "sqlite:///" + filepath.Join(t.TempDir(), "messages.db")
	s, err := Open(context.Background(), Options{URL: url, Logger: logger.Discard()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func strPtr(s string) *string { return &s }

func mustTime(t *testing.T, v string) time.Time {
	t.Helper()
	ts, err := time.Parse(time.RFC3339, v)
	require.NoError(t, err)
	return ts
}

func insert(t *testing.T, s *GormStore, id, from, ts string, text *string) InsertResult {
	t.Helper()
	res, err := s.InsertIfAbsent(context.Background(), &models.Message{
		MessageID: id,
		From:      from,
		To:        "+14155550100",
		Ts:        mustTime(t, ts),
		Text:      text,
	})
	require.NoError(t, err)
	return res
}

func ids(msgs []models.Message) []string {
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.MessageID)
	}
	return out
}

func TestParseURL(t *testing.T) {
	tests := []struct {
		url     string
		dialect Dialect
		dsn     string
		wantErr bool
	}{
		{url: "sqlite:///data/app.db", dialect: DialectSQLite, dsn: "data/app.db?" + sqliteParams},
		{url: "sqlite:////var/lib/app.db", dialect: DialectSQLite, dsn: "/var/lib/app.db?" + sqliteParams},
		{url: "sqlite:///:memory:", dialect: DialectSQLite, dsn: ":memory:?" + sqliteParams},
		{url: "postgres://u:p@localhost:5432/app?sslmode=disable", dialect: DialectPostgres, dsn: "postgres://u:p@localhost:5432/app?sslmode=disable"},
		{url: "sqlite:///", wantErr: true},
		{url: "mysql://localhost/app", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			dialect, dsn, err := ParseURL(tt.url)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.dialect, dialect)
			assert.Equal(t, tt.dsn, dsn)
		})
	}
}

func TestInsertIfAbsentCreatesThenReportsDuplicate(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	msg := &models.Message{
		MessageID: "m1",
		From:      "+1A",
		To:        "+1B",
		Ts:        mustTime(t, "2025-01-01T00:00:00Z"),
		Text:      strPtr("hello"),
	}
	res, err := s.InsertIfAbsent(ctx, msg)
	require.NoError(t, err)
	assert.Equal(t, InsertCreated, res)
	assert.False(t, msg.CreatedAt.IsZero())

	again := *msg
	again.Text = strPtr("changed")
	res, err = s.InsertIfAbsent(ctx, &again)
	require.NoError(t, err)
	assert.Equal(t, InsertDuplicate, res)

	page, total, err := s.List(ctx, models.MessageFilter{}, 50, 0)
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	require.Len(t, page, 1)
	assert.Equal(t, "hello", *page[0].Text, "duplicate must not overwrite the stored row")
	assert.Equal(t, "+1A", page[0].From)
	assert.Equal(t, time.UTC, page[0].Ts.Location())
	assert.False(t, page[0].CreatedAt.IsZero())
}

func TestConcurrentInsertsYieldExactlyOneCreated(t *testing.T) {
	s := newTestStore(t)

	const n = 20
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
		dups    int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := s.InsertIfAbsent(context.Background(), &models.Message{
				MessageID: "same",
				From:      "+1A",
				To:        "+1B",
				Ts:        time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
				Text:      strPtr(fmt.Sprintf("attempt %d", i)),
			})
			assert.NoError(t, err)
			mu.Lock()
			defer mu.Unlock()
			switch res {
			case InsertCreated:
				created++
			case InsertDuplicate:
				dups++
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, created)
	assert.Equal(t, n-1, dups)

	stats, err := s.Aggregate(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 1, stats.TotalMessages)
}

func TestListOrdersByTsThenMessageID(t *testing.T) {
	s := newTestStore(t)
	insert(t, s, "b", "+1A", "2025-01-01T00:00:00Z", nil)
	insert(t, s, "c", "+1A", "2024-12-31T23:59:59Z", nil)
	insert(t, s, "a", "+1A", "2025-01-01T00:00:00Z", nil)
	insert(t, s, "d", "+1A", "2025-01-01T00:00:00.5Z", nil)

	page, total, err := s.List(context.Background(), models.MessageFilter{}, 50, 0)
	require.NoError(t, err)
	assert.EqualValues(t, 4, total)
	assert.Equal(t, []string{"c", "a", "b", "d"}, ids(page))

	again, _, err := s.List(context.Background(), models.MessageFilter{}, 50, 0)
	require.NoError(t, err)
	assert.Equal(t, ids(page), ids(again))
}

func TestListPagination(t *testing.T) {
	s := newTestStore(t)
	for i := 0; i < 5; i++ {
		insert(t, s, fmt.Sprintf("m%d", i), "+1A", fmt.Sprintf("2025-01-01T00:00:0%dZ", i), nil)
	}

	page, total, err := s.List(context.Background(), models.MessageFilter{}, 2, 1)
	require.NoError(t, err)
	assert.EqualValues(t, 5, total)
	assert.Equal(t, []string{"m1", "m2"}, ids(page))

	page, total, err = s.List(context.Background(), models.MessageFilter{}, 10, 50)
	require.NoError(t, err)
	assert.EqualValues(t, 5, total)
	assert.NotNil(t, page)
	assert.Empty(t, page)
}

func TestListFilters(t *testing.T) {
	s := newTestStore(t)
	insert(t, s, "m1", "+1A", "2025-01-01T00:00:00Z", strPtr("Hello World"))
	insert(t, s, "m2", "+1C", "2025-01-02T00:00:00Z", strPtr("hello again"))
	insert(t, s, "m3", "+1A", "2025-01-03T00:00:00Z", strPtr("goodbye"))
	insert(t, s, "m4", "+1A", "2025-01-04T00:00:00Z", nil)
	insert(t, s, "m5", "+1C", "2025-01-05T00:00:00Z", strPtr("100% pure_luck"))
	insert(t, s, "m6", "+1C", "2025-01-06T00:00:00Z", strPtr("1000 surely"))

	since := mustTime(t, "2025-01-02T00:00:00Z")
	tests := []struct {
		name   string
		filter models.MessageFilter
		want   []string
	}{
		{"from only", models.MessageFilter{From: "+1A"}, []string{"m1", "m3", "m4"}},
		{"since is inclusive", models.MessageFilter{Since: &since}, []string{"m2", "m3", "m4", "m5", "m6"}},
		{"q is case-insensitive", models.MessageFilter{Query: "HELLO"}, []string{"m1", "m2"}},
		{"q matches inside words", models.MessageFilter{Query: "orl"}, []string{"m1"}},
		{"filters combine with AND", models.MessageFilter{From: "+1A", Query: "hello"}, []string{"m1"}},
		{"all three", models.MessageFilter{From: "+1C", Since: &since, Query: "hello"}, []string{"m2"}},
		{"percent is literal", models.MessageFilter{Query: "0%"}, []string{"m5"}},
		{"underscore is literal", models.MessageFilter{Query: "e_l"}, []string{"m5"}},
		{"no match", models.MessageFilter{From: "+999"}, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page, total, err := s.List(context.Background(), tt.filter, 100, 0)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ids(page))
			assert.EqualValues(t, len(tt.want), total)
		})
	}
}

// SQLite folds ASCII letters only; other scripts match when the case agrees.
func TestListQueryUnicodeFolding(t *testing.T) {
	s := newTestStore(t)
	insert(t, s, "m1", "+1A", "2025-01-01T00:00:00Z", strPtr("Ça va, ÉCOLE"))

	page, _, err := s.List(context.Background(), models.MessageFilter{Query: "ÉCOLE"}, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"m1"}, ids(page))

	page, _, err = s.List(context.Background(), models.MessageFilter{Query: "ça VA"}, 10, 0)
	require.NoError(t, err)
	assert.Empty(t, page)

	page, _, err = s.List(context.Background(), models.MessageFilter{Query: "Ça VA"}, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"m1"}, ids(page))
}

func TestAggregateEmpty(t *testing.T) {
	s := newTestStore(t)

	stats, err := s.Aggregate(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 0, stats.TotalMessages)
	assert.EqualValues(t, 0, stats.SendersCount)
	assert.NotNil(t, stats.MessagesPerSender)
	assert.Empty(t, stats.MessagesPerSender)
	assert.Nil(t, stats.FirstMessageTs)
	assert.Nil(t, stats.LastMessageTs)
}

func TestAggregate(t *testing.T) {
	s := newTestStore(t)
	// 12 senders: +100 has 3 messages, +101..+111 have one each, +099 has 3
	insert(t, s, "x1", "+100", "2025-01-02T00:00:00Z", nil)
	insert(t, s, "x2", "+100", "2025-01-03T00:00:00Z", nil)
	insert(t, s, "x3", "+100", "2025-01-04T00:00:00Z", nil)
	insert(t, s, "y1", "+099", "2025-01-05T00:00:00Z", nil)
	insert(t, s, "y2", "+099", "2025-01-06T00:00:00Z", nil)
	insert(t, s, "y3", "+099", "2025-01-07T00:00:00Z", nil)
	for i := 1; i <= 11; i++ {
		insert(t, s, fmt.Sprintf("z%02d", i), fmt.Sprintf("+1%02d", i), "2025-01-01T12:00:00Z", nil)
	}
	insert(t, s, "first", "+101", "2024-06-01T00:00:00Z", nil)

	stats, err := s.Aggregate(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 18, stats.TotalMessages)
	assert.EqualValues(t, 13, stats.SendersCount)

	require.Len(t, stats.MessagesPerSender, 10)
	assert.Equal(t, models.SenderCount{From: "+099", Count: 3}, stats.MessagesPerSender[0])
	assert.Equal(t, models.SenderCount{From: "+100", Count: 3}, stats.MessagesPerSender[1])
	assert.Equal(t, models.SenderCount{From: "+101", Count: 2}, stats.MessagesPerSender[2])
	assert.Equal(t, models.SenderCount{From: "+102", Count: 1}, stats.MessagesPerSender[3])
	assert.Equal(t, "+108", stats.MessagesPerSender[9].From)

	require.NotNil(t, stats.FirstMessageTs)
	require.NotNil(t, stats.LastMessageTs)
	assert.True(t, stats.FirstMessageTs.Equal(mustTime(t, "2024-06-01T00:00:00Z")))
	assert.True(t, stats.LastMessageTs.Equal(mustTime(t, "2025-01-07T00:00:00Z")))

	_, total, err := s.List(context.Background(), models.MessageFilter{}, 1, 0)
	require.NoError(t, err)
	assert.Equal(t, stats.TotalMessages, total)
}

func TestOpenReportsDialect(t *testing.T) {
	assert.Equal(t, DialectSQLite, newTestStore(t).Dialect())
}

func TestFailedOperationLogsThroughRequestLogger(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Close())

	var buf bytes.Buffer
	reqLog := logger.New(logger.Config{Level: "info", JSON: true, Output: &buf}).WithRequestID("req-7")
	ctx := logger.NewContext(context.Background(), reqLog)

	_, err := s.Aggregate(ctx)
	require.ErrorIs(t, err, ErrUnavailable)
	assert.Contains(t, buf.String(), "Store operation failed")
	assert.Contains(t, buf.String(), `"request_id":"req-7"`)
	assert.Contains(t, buf.String(), `"dialect":"sqlite"`)
}

func TestClosedStoreIsUnavailable(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Ping(context.Background()))
	require.NoError(t, s.Close())

	assert.ErrorIs(t, s.Ping(context.Background()), ErrUnavailable)

	_, err := s.InsertIfAbsent(context.Background(), &models.Message{MessageID: "m", From: "+1", To: "+2", Ts: time.Now()})
	assert.ErrorIs(t, err, ErrUnavailable)

	_, _, err = s.List(context.Background(), models.MessageFilter{}, 10, 0)
	assert.ErrorIs(t, err, ErrUnavailable)

	_, err = s.Aggregate(context.Background())
	assert.ErrorIs(t, err, ErrUnavailable)
}
