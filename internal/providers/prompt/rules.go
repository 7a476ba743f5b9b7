package prompt

import "strings"

var typeRules = map[string][]string{
	"character": {
		"Full body, front view, standing in a T-pose with both arms held straight out to the sides.",
		"Hands open and empty. No weapons, shields, bags or held props, so the model can be rigged.",
		"One character only, feet visible, no scenery.",
	},
	"armor": {
		"Model the armor piece on its own. It must not be worn by a person, mannequin or stand.",
		"Front view, centered, with the inside of the piece hollow where a body would go.",
	},
	"weapon": {
		"A single weapon isolated on a plain neutral background.",
		"Show the full length from grip to tip, side view, with the blade or head pointing up.",
		"No hands, no wielder, no sheath unless asked for.",
	},
	"building": {
		"Exterior view of the whole structure at a three-quarter angle.",
		"Only a simple flat ground plane around it, no neighbouring buildings.",
	},
	"tool": {
		"A single tool isolated on a plain background, whole object in frame, no hands.",
	},
	"resource": {
		"A single resource item or small cluster, isolated on a plain background.",
	},
	"environment": {
		"A compact, self-contained piece of environment that can be placed in a level.",
	},
}

var defaultRules = []string{
	"A single object centered on a plain background with even lighting.",
}

var sharedRules = []string{
	"Describe materials, colours and silhouette concretely.",
	"No text, logos, watermarks or UI in the image.",
	"Keep the result under 80 words.",
}

// Rules returns the composition rules for an asset type. Avatars always get
// the character rules.
func Rules(assetType string, avatar bool) []string {
	key := strings.ToLower(strings.TrimSpace(assetType))
	if avatar {
		key = "character"
	}
	rules, ok := typeRules[key]
	if !ok {
		rules = defaultRules
	}
	out := make([]string, 0, len(rules)+len(sharedRules))
	out = append(out, rules...)
	return append(out, sharedRules...)
}
