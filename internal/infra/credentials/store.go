// Package credentials reads vendor API keys from the integration_tokens table
// so binaries can start without them in the environment. Rows are written by
// operators directly.
package credentials

import (
	"context"
	"fmt"
	"strings"

	"github.com/Dexploarer/hyper-forge-sub006/internal/infra"
	"github.com/Dexploarer/hyper-forge-sub006/internal/sqlinline"
)

const (
	ProviderMeshy  = "meshy"
	ProviderOpenAI = "openai"
)

type Store struct {
	sql infra.SQLExecutor
}

func NewStore(sql infra.SQLExecutor) *Store {
	return &Store{sql: sql}
}

// Token returns the stored key for provider, or "" when none is stored.
func (s *Store) Token(ctx context.Context, provider string) (string, error) {
	row := s.sql.QueryRow(ctx, sqlinline.QSelectIntegrationToken, provider)
	var token string
	if err := row.Scan(&token); err != nil {
		if infra.IsNoRows(err) {
			return "", nil
		}
		return "", err
	}
	return strings.TrimSpace(token), nil
}

// FillMissing copies stored keys into cfg for every vendor key the
// environment left empty. Environment values always win.
func (s *Store) FillMissing(ctx context.Context, cfg *infra.Config) error {
	for _, k := range []struct {
		provider string
		dst      *string
	}{
		{ProviderMeshy, &cfg.MeshyAPIKey},
		{ProviderOpenAI, &cfg.OpenAIAPIKey},
	} {
		if strings.TrimSpace(*k.dst) != "" {
			continue
		}
		token, err := s.Token(ctx, k.provider)
		if err != nil {
			return fmt.Errorf("load %s key: %w", k.provider, err)
		}
		*k.dst = token
	}
	return nil
}
