package infra

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

const markedQuery = `--sql 0c1d2e3f-4a5b-4c6d-8e7f-901a2b3c4d5e
select 1;
`

type fakeQuerier struct {
	lastSQL string
	err     error
	rowErr  error
}

func (f *fakeQuerier) Exec(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
	f.lastSQL = sql
	return pgconn.NewCommandTag("UPDATE 2"), f.err
}

func (f *fakeQuerier) QueryRow(_ context.Context, sql string, _ ...any) pgx.Row {
	f.lastSQL = sql
	return errorRow{err: f.rowErr}
}

func (f *fakeQuerier) Query(_ context.Context, sql string, _ ...any) (pgx.Rows, error) {
	f.lastSQL = sql
	return nil, f.err
}

func newTestRunner(q Querier) (*SQLRunner, *bytes.Buffer) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf).Level(zerolog.DebugLevel)
	return NewSQLRunner(q, logger), &buf
}

func TestExtractMarker(t *testing.T) {
	marker, stmt, err := extractMarker(markedQuery)
	require.NoError(t, err)
	require.Equal(t, "0c1d2e3f-4a5b-4c6d-8e7f-901a2b3c4d5e", marker)
	require.Equal(t, "select 1;", strings.TrimSpace(stmt))

	for _, q := range []string{"select 1;", "--sql not-a-uuid\nselect 1;", ""} {
		if _, _, err := extractMarker(q); !errors.Is(err, ErrMissingMarker) {
			t.Fatalf("extractMarker(%q) err = %v, want ErrMissingMarker", q, err)
		}
	}
}

func TestRunnerStripsMarker(t *testing.T) {
	q := &fakeQuerier{}
	r, buf := newTestRunner(q)

	tag, err := r.Exec(context.Background(), markedQuery)
	require.NoError(t, err)
	require.EqualValues(t, 2, tag.RowsAffected())
	require.NotContains(t, q.lastSQL, "--sql")
	require.Contains(t, buf.String(), `"sql":"0c1d2e3f-4a5b-4c6d-8e7f-901a2b3c4d5e"`)
}

func TestRunnerRejectsUnmarkedQuery(t *testing.T) {
	q := &fakeQuerier{}
	r, _ := newTestRunner(q)

	_, err := r.Exec(context.Background(), "delete from pipelines;")
	require.ErrorIs(t, err, ErrMissingMarker)
	require.Empty(t, q.lastSQL)

	var n int
	require.ErrorIs(t, r.QueryRow(context.Background(), "select 1;").Scan(&n), ErrMissingMarker)
}

func TestRunnerLogsNoRowsQuietly(t *testing.T) {
	r, buf := newTestRunner(&fakeQuerier{rowErr: pgx.ErrNoRows})
	var n int
	err := r.QueryRow(context.Background(), markedQuery).Scan(&n)
	require.True(t, IsNoRows(err))
	if strings.Contains(buf.String(), `"level":"error"`) {
		t.Fatalf("no-rows result logged as error: %s", buf.String())
	}
}

func TestRunnerLogsSlowStatements(t *testing.T) {
	r, buf := newTestRunner(&fakeQuerier{})
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	calls := 0
	r.now = func() time.Time {
		calls++
		return clock.Add(time.Duration(calls-1) * time.Second)
	}
	_, err := r.Exec(context.Background(), markedQuery)
	require.NoError(t, err)
	require.Contains(t, buf.String(), "sql: slow statement")
}

func TestRunnerLogsFailures(t *testing.T) {
	r, buf := newTestRunner(&fakeQuerier{err: errors.New("deadlock detected")})
	_, err := r.Exec(context.Background(), markedQuery)
	require.Error(t, err)
	require.Contains(t, buf.String(), "sql: failed")
	require.Contains(t, buf.String(), "deadlock detected")
}
