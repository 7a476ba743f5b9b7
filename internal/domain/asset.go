package domain

// PipelineResults holds stage-specific payloads keyed by stage name.
type PipelineResults struct {
	PromptOptimization *PromptResult  `json:"promptOptimization,omitempty"`
	ImageGeneration    *ImageResult   `json:"imageGeneration,omitempty"`
	Image3D            *ModelResult   `json:"image3D,omitempty"`
	TextureGeneration  *TextureResult `json:"textureGeneration,omitempty"`
	Rigging            *RiggingResult `json:"rigging,omitempty"`
}

// PromptResult is the output of prompt enhancement.
type PromptResult struct {
	OriginalPrompt  string   `json:"originalPrompt"`
	OptimizedPrompt string   `json:"optimizedPrompt"`
	Keywords        []string `json:"keywords,omitempty"`
	Provider        string   `json:"provider,omitempty"`
	UsedFallback    bool     `json:"usedFallback,omitempty"`
}

// Image sources.
const (
	ImageSourceGenerated = "generated"
	ImageSourceReference = "reference"
)

// ImageResult describes the concept image fed into 3D conversion.
type ImageResult struct {
	ImageURL string `json:"imageUrl"`
	Prompt   string `json:"prompt,omitempty"`
	Source   string `json:"source"`
	Provider string `json:"provider,omitempty"`
}

// ModelResult describes the converted base model.
type ModelResult struct {
	TaskID         string      `json:"taskId"`
	ModelURL       string      `json:"modelUrl,omitempty"`
	RawModelURL    string      `json:"rawModelUrl,omitempty"`
	ConceptArtURL  string      `json:"conceptArtUrl,omitempty"`
	MetadataURL    string      `json:"metadataUrl,omitempty"`
	SourceImageURL string      `json:"sourceImageUrl,omitempty"`
	Polycount      int         `json:"polycount,omitempty"`
	Normalized     bool        `json:"normalized"`
	Dimensions     *Dimensions `json:"dimensions,omitempty"`
}

// VariantResult is one retexture output.
type VariantResult struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	ModelURL string `json:"modelUrl,omitempty"`
	TaskID   string `json:"taskId,omitempty"`
	Success  bool   `json:"success"`
	Error    string `json:"error,omitempty"`
}

// TextureResult aggregates every requested variant, successful or not.
type TextureResult struct {
	Variants []VariantResult `json:"variants"`
}

// Succeeded counts the variants that produced a model.
func (t *TextureResult) Succeeded() int {
	if t == nil {
		return 0
	}
	n := 0
	for _, v := range t.Variants {
		if v.Success {
			n++
		}
	}
	return n
}

// AnimationSet lists the animation clips produced by rigging.
type AnimationSet struct {
	WalkingURL string `json:"walkingUrl,omitempty"`
	RunningURL string `json:"runningUrl,omitempty"`
}

// RiggingResult describes the rigged outputs.
type RiggingResult struct {
	TaskID         string       `json:"taskId"`
	RiggedModelURL string       `json:"riggedModelUrl,omitempty"`
	TPoseModelURL  string       `json:"tposeModelUrl,omitempty"`
	MetadataURL    string       `json:"metadataUrl,omitempty"`
	Animations     AnimationSet `json:"animations"`
	TPoseError     string       `json:"tposeError,omitempty"`
}

// FinalAsset is the client-facing summary of a completed run.
type FinalAsset struct {
	AssetID        string          `json:"assetId"`
	Name           string          `json:"name"`
	ModelURL       string          `json:"modelUrl"`
	ConceptArtURL  string          `json:"conceptArtUrl,omitempty"`
	MetadataURL    string          `json:"metadataUrl,omitempty"`
	RiggedModelURL string          `json:"riggedModelUrl,omitempty"`
	TPoseModelURL  string          `json:"tposeModelUrl,omitempty"`
	HasRig         bool            `json:"hasRig"`
	Variants       []VariantResult `json:"variants,omitempty"`
}
