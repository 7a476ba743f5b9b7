package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateRejectsUnsafeIDs(t *testing.T) {
	base := func() PipelineConfig {
		return PipelineConfig{
			AssetID:     "bronze-sword_2",
			Description: "a bronze sword",
			Type:        AssetTypeWeapon,
			MaterialPresets: []MaterialPreset{
				{ID: "Bronze_01", StylePrompt: "polished bronze"},
			},
		}
	}
	require.NoError(t, base().Validate())

	cases := map[string]struct {
		mutate func(*PipelineConfig)
		field  string
	}{
		"preset traversal": {func(c *PipelineConfig) { c.MaterialPresets[0].ID = "../x" }, "PipelineConfig.MaterialPresets[0].ID"},
		"preset nesting":   {func(c *PipelineConfig) { c.MaterialPresets[0].ID = "a/b" }, "PipelineConfig.MaterialPresets[0].ID"},
		"preset leading -": {func(c *PipelineConfig) { c.MaterialPresets[0].ID = "-x" }, "PipelineConfig.MaterialPresets[0].ID"},
		"asset id slash":   {func(c *PipelineConfig) { c.AssetID = "a/../b" }, "PipelineConfig.AssetID"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := base()
			tc.mutate(&cfg)
			var verr *ValidationError
			require.ErrorAs(t, cfg.Validate(), &verr)
			assert.Equal(t, tc.field, verr.Field)
		})
	}
}

func TestRequireOwner(t *testing.T) {
	cfg := PipelineConfig{User: UserRef{UserID: " "}}
	var verr *ValidationError
	require.ErrorAs(t, cfg.RequireOwner(), &verr)
	assert.Equal(t, "user.userId", verr.Field)

	cfg.User.UserID = "user-1"
	assert.NoError(t, cfg.RequireOwner())
}

func TestEnsureAssetIDProducesValidSlug(t *testing.T) {
	cfg := PipelineConfig{Name: "Bronze Sword!!", Description: "a bronze sword", Type: AssetTypeWeapon}
	cfg.EnsureAssetID("0b7f3c1e-9d2a-4c55-8f61-2a9e7d3b4c10")
	assert.Equal(t, "bronze-sword-0b7f3c1e", cfg.AssetID)
	assert.NoError(t, cfg.Validate())
}
