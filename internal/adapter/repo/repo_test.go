package repo

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dexploarer/hyper-forge-sub006/internal/domain"
	"github.com/Dexploarer/hyper-forge-sub006/internal/sqlinline"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type simpleRow struct {
	scan func(dest ...any) error
}

func (r simpleRow) Scan(dest ...any) error {
	if r.scan == nil {
		return pgx.ErrNoRows
	}
	return r.scan(dest...)
}

type call struct {
	query string
	args  []any
}

// stubExecutor records statements and answers from canned handlers.
type stubExecutor struct {
	execs    []call
	rows     []call
	affected int64
	execErr  error
	row      func(query string, args []any) simpleRow
}

func (s *stubExecutor) Exec(_ context.Context, query string, args ...any) (pgconn.CommandTag, error) {
	s.execs = append(s.execs, call{query: query, args: args})
	if s.execErr != nil {
		return pgconn.CommandTag{}, s.execErr
	}
	return pgconn.NewCommandTag("UPDATE " + strconv.FormatInt(s.affected, 10)), nil
}

func (s *stubExecutor) QueryRow(_ context.Context, query string, args ...any) pgx.Row {
	s.rows = append(s.rows, call{query: query, args: args})
	if s.row == nil {
		return simpleRow{}
	}
	return s.row(query, args)
}

func (s *stubExecutor) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return nil, errors.New("not used")
}

func samplePipeline() *domain.Pipeline {
	return &domain.Pipeline{
		ID:       "7c9e6679-7425-40de-944b-e07fc1f90ae7",
		Config:   domain.PipelineConfig{AssetID: "bronze-sword", Name: "Bronze Sword", Type: "weapon", Description: "a bronze sword"},
		Status:   domain.PipelineStatusProcessing,
		Progress: 25,
		Stages: map[domain.StageName]*domain.StageResult{
			domain.StageImageGeneration: {Status: domain.StageStatusCompleted, Progress: 100},
		},
		CreatedAt: fixedNow,
		UpdatedAt: fixedNow,
	}
}

func TestPipelineRepositoryRoundTrip(t *testing.T) {
	db := &stubExecutor{affected: 1}
	repo := NewPipelineRepository(db)
	p := samplePipeline()

	require.NoError(t, repo.Create(context.Background(), p))
	require.Len(t, db.execs, 1)
	ins := db.execs[0]
	assert.Equal(t, sqlinline.QInsertPipeline, ins.query)
	assert.Equal(t, "processing", ins.args[1])
	stored := ins.args[3].([]byte)

	db.row = func(query string, args []any) simpleRow {
		if query != sqlinline.QSelectPipelineByID || args[0] != p.ID {
			return simpleRow{}
		}
		return simpleRow{scan: func(dest ...any) error {
			*dest[0].(*[]byte) = stored
			return nil
		}}
	}
	got, err := repo.FindByID(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, p.Config.AssetID, got.Config.AssetID)
	assert.Equal(t, 25, got.Progress)
	assert.Equal(t, domain.StageStatusCompleted, got.Stage(domain.StageImageGeneration).Status)

	_, err = repo.FindByID(context.Background(), "other")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestPipelineRepositoryMissingRows(t *testing.T) {
	db := &stubExecutor{affected: 0}
	repo := NewPipelineRepository(db)
	p := samplePipeline()

	if err := repo.Create(context.Background(), p); err == nil {
		t.Fatal("expected duplicate create to fail")
	}
	assert.ErrorIs(t, repo.Update(context.Background(), p), domain.ErrNotFound)
	assert.ErrorIs(t, repo.Delete(context.Background(), p.ID), domain.ErrNotFound)
}

func TestPipelineCleanupPassesStatuses(t *testing.T) {
	db := &stubExecutor{affected: 4}
	repo := NewPipelineRepository(db)
	cutoff := fixedNow.Add(-time.Hour)

	n, err := repo.CleanupOlderThan(context.Background(), cutoff, domain.PipelineStatusFailed, domain.PipelineStatusCancelled)
	require.NoError(t, err)
	assert.EqualValues(t, 4, n)
	assert.Equal(t, []any{cutoff, []string{"failed", "cancelled"}}, db.execs[0].args)

	n, err = repo.CleanupOlderThan(context.Background(), cutoff)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Len(t, db.execs, 1)
}

func jobRow(t *testing.T, stages, final []byte) simpleRow {
	t.Helper()
	cfg, err := json.Marshal(domain.PipelineConfig{AssetID: "bronze-sword", Name: "Bronze Sword", Type: "weapon", Description: "a bronze sword"})
	require.NoError(t, err)
	return simpleRow{scan: func(dest ...any) error {
		*dest[0].(*string) = "3f1d2c4b-0a9e-4b8d-8c7f-6e5d4c3b2a19"
		*dest[1].(*string) = "pipe-1"
		*dest[2].(*string) = "bronze-sword"
		*dest[3].(*string) = "Bronze Sword"
		*dest[4].(*string) = "user-1"
		*dest[5].(*[]byte) = cfg
		*dest[6].(*string) = "high"
		*dest[7].(*string) = "processing"
		*dest[8].(*int) = 50
		*dest[9].(*[]byte) = stages
		*dest[10].(*[]byte) = []byte(`{}`)
		*dest[11].(*string) = ""
		*dest[12].(*int) = 1
		*dest[13].(*[]byte) = final
		*dest[14].(*time.Time) = fixedNow
		started := fixedNow.Add(time.Minute)
		*dest[15].(**time.Time) = &started
		*dest[17].(*time.Time) = fixedNow.Add(2 * time.Minute)
		return nil
	}}
}

func TestJobRepositoryScansRow(t *testing.T) {
	stages := []byte(`{"image3D":{"status":"processing","progress":40}}`)
	db := &stubExecutor{row: func(string, []any) simpleRow { return jobRow(t, stages, nil) }}
	repo := NewJobRepository(db, func() time.Time { return fixedNow })

	job, err := repo.GetJobByPipelineID(context.Background(), "pipe-1")
	require.NoError(t, err)
	assert.Equal(t, domain.PriorityHigh, job.Priority)
	assert.Equal(t, domain.PipelineStatusProcessing, job.Status)
	assert.Equal(t, "bronze-sword", job.Config.AssetID)
	assert.Equal(t, 40, job.Stages[domain.StageImage3D].Progress)
	assert.Nil(t, job.FinalAsset)
	require.NotNil(t, job.StartedAt)
	assert.Nil(t, job.CompletedAt)
	assert.Equal(t, sqlinline.QSelectGenerationJobByPipelineID, db.rows[0].query)
}

func TestJobRepositoryCreateNormalizesPriority(t *testing.T) {
	db := &stubExecutor{row: func(string, []any) simpleRow { return jobRow(t, []byte(`{}`), []byte(`null`)) }}
	repo := NewJobRepository(db, func() time.Time { return fixedNow })
	cfg := domain.PipelineConfig{AssetID: "bronze-sword", Name: "Bronze Sword", User: domain.UserRef{UserID: "user-1"}}

	_, err := repo.CreateJob(context.Background(), "pipe-1", cfg, "bogus")
	require.NoError(t, err)
	args := db.rows[0].args
	assert.Equal(t, "pipe-1", args[1])
	assert.Equal(t, "user-1", args[4])
	assert.Equal(t, "normal", args[6])
	assert.Equal(t, "initializing", args[7])
	assert.Equal(t, fixedNow, args[8])
}

func TestJobRepositoryCreateRequiresOwner(t *testing.T) {
	db := &stubExecutor{}
	repo := NewJobRepository(db, func() time.Time { return fixedNow })

	_, err := repo.CreateJob(context.Background(), "pipe-1", domain.PipelineConfig{AssetID: "bronze-sword"}, domain.PriorityNormal)
	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Empty(t, db.rows)
}

func TestJobRepositoryUpdateLeavesAbsentFieldsNull(t *testing.T) {
	db := &stubExecutor{affected: 1}
	repo := NewJobRepository(db, func() time.Time { return fixedNow })

	err := repo.UpdateJob(context.Background(), "pipe-1", domain.JobUpdate{
		Status:   domain.Ptr(domain.PipelineStatusCompleted),
		Progress: domain.Ptr(100),
	})
	require.NoError(t, err)
	args := db.execs[0].args
	require.Len(t, args, 12)
	assert.Equal(t, "completed", *args[1].(*string))
	assert.Equal(t, 100, *args[2].(*int))
	assert.Nil(t, args[3].([]byte))
	assert.Nil(t, args[4].([]byte))
	assert.Nil(t, args[5].(*string))
	assert.Nil(t, args[7].([]byte))
	assert.Equal(t, fixedNow, args[11])

	db.affected = 0
	assert.ErrorIs(t, repo.UpdateJob(context.Background(), "missing", domain.JobUpdate{}), domain.ErrNotFound)
}

func TestJobRepositoryCleanupCutoffs(t *testing.T) {
	db := &stubExecutor{affected: 2}
	repo := NewJobRepository(db, func() time.Time { return fixedNow })

	n, err := repo.CleanupExpiredJobs(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
	assert.Equal(t, fixedNow, db.execs[0].args[0])

	_, err = repo.CleanupOldFailedJobs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, fixedNow.Add(-7*24*time.Hour), db.execs[1].args[0])
}

func TestGetJobRejectsMalformedID(t *testing.T) {
	db := &stubExecutor{}
	repo := NewJobRepository(db, nil)
	_, err := repo.GetJob(context.Background(), "not-a-uuid")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Empty(t, db.rows)
}

func TestMigrateRunsSchemaInOrder(t *testing.T) {
	db := &stubExecutor{}
	require.NoError(t, Migrate(context.Background(), db))
	require.Len(t, db.execs, len(sqlinline.SchemaStatements))
	assert.True(t, strings.Contains(db.execs[0].query, "create table if not exists pipelines"))

	db = &stubExecutor{execErr: errors.New("permission denied")}
	err := Migrate(context.Background(), db)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "migrate step 1")
}
