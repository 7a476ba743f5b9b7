package image

import (
	"fmt"
	"strings"
)

var poseDirectives = map[string]string{
	"character": "Full body character in a strict T-pose, arms straight out to the sides, palms down, hands empty, front orthographic view.",
	"armor":     "The armor piece floating on its own with no wearer or mannequin, front view, hollow interior.",
	"weapon":    "The whole weapon in side view, vertical, blade or head up, handle at the bottom, nothing else in frame.",
	"building":  "Whole building exterior at a three-quarter angle on a flat ground plane.",
}

// BuildAssetPrompt appends the pose and framing directives that make an
// image usable as input for image-to-3D conversion.
func BuildAssetPrompt(prompt, assetType, style string, avatar bool) string {
	var lines []string
	lines = append(lines, strings.TrimSpace(prompt))

	key := strings.ToLower(strings.TrimSpace(assetType))
	if avatar {
		key = "character"
	}
	if directive, ok := poseDirectives[key]; ok {
		lines = append(lines, directive)
	} else {
		lines = append(lines, "Single object centered in frame, whole silhouette visible.")
	}
	if style = strings.TrimSpace(style); style != "" {
		lines = append(lines, fmt.Sprintf("Art style: %s.", style))
	}
	lines = append(lines, "Plain light grey background, soft even lighting, no cast shadows, no text or watermark.")
	return strings.Join(lines, "\n")
}
