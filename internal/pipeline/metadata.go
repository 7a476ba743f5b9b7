package pipeline

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/Dexploarer/hyper-forge-sub006/internal/domain"
	"github.com/Dexploarer/hyper-forge-sub006/internal/storage"
)

const (
	contentTypeGLB  = "model/gltf-binary"
	contentTypeJSON = "application/json"
)

type modelMetadata struct {
	AssetID        string             `json:"assetId"`
	Name           string             `json:"name"`
	Description    string             `json:"description"`
	Type           string             `json:"type"`
	Subtype        string             `json:"subtype,omitempty"`
	Quality        string             `json:"quality"`
	TaskID         string             `json:"meshyTaskId"`
	SourceImageURL string             `json:"sourceImageUrl"`
	Polycount      int                `json:"targetPolycount"`
	Normalized     bool               `json:"normalized"`
	Dimensions     *domain.Dimensions `json:"dimensions,omitempty"`
	GeneratedAt    time.Time          `json:"generatedAt"`
}

type variantMetadata struct {
	VariantID   string    `json:"variantId"`
	BaseAssetID string    `json:"baseAssetId"`
	PresetID    string    `json:"presetId"`
	Name        string    `json:"name"`
	StylePrompt string    `json:"stylePrompt"`
	TaskID      string    `json:"retextureTaskId"`
	GeneratedAt time.Time `json:"generatedAt"`
}

type riggingMetadata struct {
	AssetID      string    `json:"assetId"`
	TaskID       string    `json:"riggingTaskId"`
	BaseTaskID   string    `json:"baseTaskId"`
	HeightMeters float64   `json:"heightMeters"`
	HasTPose     bool      `json:"hasTPose"`
	Animations   []string  `json:"animations,omitempty"`
	GeneratedAt  time.Time `json:"generatedAt"`
}

func jsonFile(name string, v any) (storage.File, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return storage.File{}, fmt.Errorf("encode %s: %w", name, err)
	}
	return storage.File{Name: name, Data: data, ContentType: contentTypeJSON}, nil
}
