package domain

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Quality enumerates the generation quality tiers understood by the vendors.
type Quality string

const (
	QualityStandard Quality = "standard"
	QualityHigh     Quality = "high"
	QualityUltra    Quality = "ultra"
)

// GenerationType distinguishes static items from riggable avatars.
type GenerationType string

const (
	GenerationTypeItem   GenerationType = "item"
	GenerationTypeAvatar GenerationType = "avatar"
)

// Asset types with dedicated handling in the pipeline.
const (
	AssetTypeCharacter = "character"
	AssetTypeWeapon    = "weapon"
	AssetTypeArmor     = "armor"
	AssetTypeBuilding  = "building"
)

// DefaultCharacterHeight is the canonical character height in meters.
const DefaultCharacterHeight = 1.83

// PipelineConfig is the request contract for one asset-generation run.
type PipelineConfig struct {
	AssetID                 string           `json:"assetId" validate:"omitempty,max=96,slug"`
	Name                    string           `json:"name" validate:"max=120"`
	Description             string           `json:"description" validate:"required,min=3,max=2000"`
	Type                    string           `json:"type" validate:"required,max=40"`
	Subtype                 string           `json:"subtype,omitempty" validate:"max=40"`
	Style                   string           `json:"style,omitempty" validate:"max=80"`
	Quality                 Quality          `json:"quality" validate:"omitempty,oneof=standard high ultra"`
	GenerationType          GenerationType   `json:"generationType,omitempty" validate:"omitempty,oneof=item avatar"`
	EnablePromptEnhancement bool             `json:"enablePromptEnhancement"`
	EnableRetexturing       bool             `json:"enableRetexturing"`
	EnableRigging           bool             `json:"enableRigging"`
	ReferenceImage          *ReferenceImage  `json:"referenceImage,omitempty"`
	MaterialPresets         []MaterialPreset `json:"materialPresets,omitempty" validate:"max=12,dive"`
	RiggingOptions          *RiggingOptions  `json:"riggingOptions,omitempty"`
	CharacterHeight         float64          `json:"characterHeight,omitempty" validate:"gte=0,lte=20"`
	CustomPrompt            string           `json:"customPrompt,omitempty" validate:"max=1000"`
	User                    UserRef          `json:"user"`
}

// ReferenceImage is a caller-supplied concept image, either hosted or inline.
type ReferenceImage struct {
	URL     string `json:"url,omitempty" validate:"omitempty,url"`
	DataURL string `json:"dataUrl,omitempty"`
}

// Source returns the usable image reference, preferring the hosted URL.
func (r *ReferenceImage) Source() string {
	if r == nil {
		return ""
	}
	if url := strings.TrimSpace(r.URL); url != "" {
		return url
	}
	return strings.TrimSpace(r.DataURL)
}

// MaterialPreset describes one retexture variant.
type MaterialPreset struct {
	ID          string `json:"id" validate:"required,max=64,slug"`
	Name        string `json:"name,omitempty"`
	DisplayName string `json:"displayName,omitempty"`
	StylePrompt string `json:"stylePrompt" validate:"required,max=600"`
}

// Label returns the human readable preset name.
func (m MaterialPreset) Label() string {
	for _, v := range []string{m.DisplayName, m.Name, m.ID} {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

// RiggingOptions tunes the rigging stage.
type RiggingOptions struct {
	HeightMeters float64 `json:"heightMeters,omitempty"`
}

// UserRef identifies the owner of a pipeline.
type UserRef struct {
	UserID string `json:"userId,omitempty"`
	Email  string `json:"email,omitempty"`
}

// slugPattern guards ids that end up in storage object names.
var slugPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]*$`)

var configValidator = newConfigValidator()

func newConfigValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.RegisterValidation("slug", func(fl validator.FieldLevel) bool {
		return slugPattern.MatchString(fl.Field().String())
	}); err != nil {
		panic(err)
	}
	return v
}

// Validate checks the config against its struct tags.
func (c PipelineConfig) Validate() error {
	if err := configValidator.Struct(c); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			fe := fieldErrs[0]
			return &ValidationError{
				Field:   fe.Namespace(),
				Message: fmt.Sprintf("failed %q constraint", fe.Tag()),
			}
		}
		return &ValidationError{Message: err.Error()}
	}
	return nil
}

// ValidateForJob additionally requires an owning user; durable jobs cannot be
// created for anonymous callers.
func (c PipelineConfig) ValidateForJob() error {
	if err := c.Validate(); err != nil {
		return err
	}
	return c.RequireOwner()
}

// RequireOwner fails when the config carries no user id.
func (c PipelineConfig) RequireOwner() error {
	if strings.TrimSpace(c.User.UserID) == "" {
		return &ValidationError{Field: "user.userId", Message: "authenticated user is required"}
	}
	return nil
}

// Normalize trims input and applies defaults.
func (c *PipelineConfig) Normalize() {
	c.Description = strings.TrimSpace(c.Description)
	c.Type = strings.ToLower(strings.TrimSpace(c.Type))
	c.Subtype = strings.ToLower(strings.TrimSpace(c.Subtype))
	c.Style = strings.TrimSpace(c.Style)
	c.Quality = Quality(strings.ToLower(strings.TrimSpace(string(c.Quality))))
	if c.Quality == "" {
		c.Quality = QualityStandard
	}
	if c.GenerationType == "" {
		c.GenerationType = GenerationTypeItem
		if c.Type == AssetTypeCharacter {
			c.GenerationType = GenerationTypeAvatar
		}
	}
	c.Name = strings.TrimSpace(c.Name)
	if c.Name == "" && c.Description != "" {
		c.Name = cases.Title(language.English).String(truncateWords(c.Description, 6))
	}
}

// EnsureAssetID derives a stable asset id from the name when none was given.
func (c *PipelineConfig) EnsureAssetID(pipelineID string) {
	if strings.TrimSpace(c.AssetID) != "" {
		return
	}
	base := slugify(c.Name)
	if base == "" {
		base = "asset"
	}
	suffix := strings.ReplaceAll(pipelineID, "-", "")
	if len(suffix) > 8 {
		suffix = suffix[:8]
	}
	c.AssetID = base + "-" + suffix
}

// IsAvatar reports whether the asset can carry a skeleton.
func (c PipelineConfig) IsAvatar() bool {
	return c.GenerationType == GenerationTypeAvatar || c.Type == AssetTypeCharacter
}

// TargetHeight resolves the character height used for normalization and rigging.
func (c PipelineConfig) TargetHeight() float64 {
	if c.RiggingOptions != nil && c.RiggingOptions.HeightMeters > 0 {
		return c.RiggingOptions.HeightMeters
	}
	if c.CharacterHeight > 0 {
		return c.CharacterHeight
	}
	return DefaultCharacterHeight
}

var slugInvalid = regexp.MustCompile(`[^a-z0-9]+`)

func slugify(s string) string {
	slug := slugInvalid.ReplaceAllString(strings.ToLower(s), "-")
	slug = strings.Trim(slug, "-")
	if len(slug) > 48 {
		slug = strings.TrimRight(slug[:48], "-")
	}
	return slug
}

func truncateWords(s string, n int) string {
	words := strings.Fields(s)
	if len(words) > n {
		words = words[:n]
	}
	return strings.Join(words, " ")
}
