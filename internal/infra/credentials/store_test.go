package credentials

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/Dexploarer/hyper-forge-sub006/internal/infra"
)

type stubExecutor struct {
	tokens map[string]string
	err    error
}

func (s *stubExecutor) Exec(ctx context.Context, query string, args ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, errors.New("not implemented")
}

func (s *stubExecutor) QueryRow(ctx context.Context, query string, args ...any) pgx.Row {
	provider, _ := args[0].(string)
	token, ok := s.tokens[provider]
	return stubRow{token: token, found: ok, err: s.err}
}

func (s *stubExecutor) Query(ctx context.Context, query string, args ...any) (pgx.Rows, error) {
	return nil, errors.New("not implemented")
}

type stubRow struct {
	token string
	found bool
	err   error
}

func (r stubRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	if !r.found {
		return pgx.ErrNoRows
	}
	ptr, ok := dest[0].(*string)
	if !ok {
		return errors.New("invalid dest")
	}
	*ptr = r.token
	return nil
}

func TestToken(t *testing.T) {
	store := NewStore(&stubExecutor{tokens: map[string]string{ProviderMeshy: " msy-abc "}})
	key, err := store.Token(context.Background(), ProviderMeshy)
	if err != nil {
		t.Fatalf("Token error: %v", err)
	}
	if key != "msy-abc" {
		t.Fatalf("expected msy-abc, got %q", key)
	}
}

func TestTokenNoRows(t *testing.T) {
	store := NewStore(&stubExecutor{})
	key, err := store.Token(context.Background(), ProviderOpenAI)
	if err != nil {
		t.Fatalf("Token error: %v", err)
	}
	if key != "" {
		t.Fatalf("expected empty key, got %q", key)
	}
}

func TestFillMissingKeepsEnvironment(t *testing.T) {
	store := NewStore(&stubExecutor{tokens: map[string]string{ProviderMeshy: "msy-db", ProviderOpenAI: "sk-db"}})
	cfg := &infra.Config{OpenAIAPIKey: "sk-env"}
	if err := store.FillMissing(context.Background(), cfg); err != nil {
		t.Fatalf("FillMissing error: %v", err)
	}
	if cfg.MeshyAPIKey != "msy-db" {
		t.Fatalf("MeshyAPIKey = %q, want msy-db", cfg.MeshyAPIKey)
	}
	if cfg.OpenAIAPIKey != "sk-env" {
		t.Fatalf("OpenAIAPIKey = %q, want sk-env", cfg.OpenAIAPIKey)
	}
}

func TestFillMissingPropagatesErrors(t *testing.T) {
	store := NewStore(&stubExecutor{err: errors.New("connection reset")})
	if err := store.FillMissing(context.Background(), &infra.Config{}); err == nil {
		t.Fatal("expected error")
	}
}
