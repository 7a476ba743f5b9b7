package glb

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// encodeGLB writes a container by hand so the reader is tested against
// bytes it did not produce itself.
func encodeGLB(t *testing.T, jsonChunk, bin []byte) []byte {
	t.Helper()
	pad := func(b []byte, fill byte) []byte {
		for len(b)%4 != 0 {
			b = append(b, fill)
		}
		return b
	}
	jsonChunk = pad(append([]byte(nil), jsonChunk...), ' ')
	total := 12 + 8 + len(jsonChunk)
	if bin != nil {
		bin = pad(append([]byte(nil), bin...), 0)
		total += 8 + len(bin)
	}
	out := make([]byte, 0, total)
	out = binary.LittleEndian.AppendUint32(out, Magic)
	out = binary.LittleEndian.AppendUint32(out, 2)
	out = binary.LittleEndian.AppendUint32(out, uint32(total))
	out = binary.LittleEndian.AppendUint32(out, uint32(len(jsonChunk)))
	out = binary.LittleEndian.AppendUint32(out, ChunkTypeJSON)
	out = append(out, jsonChunk...)
	if bin != nil {
		out = binary.LittleEndian.AppendUint32(out, uint32(len(bin)))
		out = binary.LittleEndian.AppendUint32(out, ChunkTypeBIN)
		out = append(out, bin...)
	}
	return out
}

// meshGLB builds a single-mesh model from a vertex cloud.
func meshGLB(t *testing.T, pts []Vec3, extra map[string]any) []byte {
	t.Helper()
	bin := make([]byte, 0, len(pts)*12)
	for _, p := range pts {
		for _, v := range p {
			bin = binary.LittleEndian.AppendUint32(bin, math.Float32bits(float32(v)))
		}
	}
	doc := map[string]any{
		"asset":       map[string]any{"version": "2.0"},
		"scene":       0,
		"scenes":      []any{map[string]any{"nodes": []int{0}}},
		"nodes":       []any{map[string]any{"name": "Body", "mesh": 0}},
		"meshes":      []any{map[string]any{"primitives": []any{map[string]any{"attributes": map[string]int{"POSITION": 0}}}}},
		"accessors":   []any{map[string]any{"bufferView": 0, "componentType": componentFloat, "count": len(pts), "type": "VEC3"}},
		"bufferViews": []any{map[string]any{"buffer": 0, "byteLength": len(bin)}},
		"buffers":     []any{map[string]any{"byteLength": len(bin)}},
	}
	for k, v := range extra {
		doc[k] = v
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	require.NoError(t, enc.Encode(doc))
	return encodeGLB(t, bytes.TrimSpace(buf.Bytes()), bin)
}

func boxPoints(min, max Vec3) []Vec3 {
	return corners(Box{Min: min, Max: max})
}

func TestParseRejectsBadInput(t *testing.T) {
	_, err := Parse([]byte{1, 2, 3})
	assert.True(t, errors.Is(err, ErrInvalidFormat))

	bad := make([]byte, 20)
	binary.LittleEndian.PutUint32(bad[0:4], 0xDEADBEEF)
	_, err = Parse(bad)
	assert.True(t, errors.Is(err, ErrInvalidFormat))
}

func TestStripAnimationsRemovesKeyAndKeepsRig(t *testing.T) {
	input := meshGLB(t, boxPoints(Vec3{0, 0, 0}, Vec3{1, 1, 1}), map[string]any{
		"skins":      []any{map[string]any{"joints": []int{0}}},
		"animations": []any{map[string]any{"name": "Walk"}},
		"extras":     map[string]any{"note": "<b>&</b>"},
	})
	origBin := mustParse(t, input).BinaryChunk()

	out, err := StripAnimations(input)
	require.NoError(t, err)

	require.Equal(t, uint32(len(out)), binary.LittleEndian.Uint32(out[8:12]))
	c := mustParse(t, out)
	require.Len(t, c.Chunks, 2)
	for _, ch := range c.Chunks {
		assert.Zero(t, len(ch.Data)%4, "chunk lengths are 4-byte aligned")
	}
	assert.Equal(t, origBin, c.BinaryChunk())

	doc, err := c.Document()
	require.NoError(t, err)
	assert.NotContains(t, doc, "animations")
	assert.Contains(t, doc, "skins")
	assert.Contains(t, doc, "meshes")
	assert.Contains(t, string(doc["extras"]), "<b>&</b>")

	again, err := StripAnimations(out)
	require.NoError(t, err)
	assert.Equal(t, out, again)
}

func TestStripAnimationsMissingJSON(t *testing.T) {
	c := &Container{Version: 2, Chunks: []Chunk{{Type: [4]byte{'B', 'I', 'N', 0}, Data: []byte{1, 2, 3, 4}}}}
	_, err := StripAnimations(c.Bytes())
	assert.True(t, errors.Is(err, ErrMissingJSONChunk))
}

func TestBytesPreservesUnknownChunkType(t *testing.T) {
	c := &Container{Version: 2, Chunks: []Chunk{
		{Type: [4]byte{'J', 'S', 'O', 'N'}, Data: []byte(`{"a":1}`)},
		{Type: [4]byte{'X', 'T', 'R', 'A'}, Data: []byte{9, 9, 9}},
	}}
	out := c.Bytes()
	back := mustParse(t, out)
	require.Len(t, back.Chunks, 2)
	assert.Equal(t, [4]byte{'X', 'T', 'R', 'A'}, back.Chunks[1].Type)
	assert.Equal(t, []byte{9, 9, 9, 0}, back.Chunks[1].Data)
	assert.Equal(t, []byte(`{"a":1} `), back.Chunks[0].Data)
}

func TestMeasureAppliesNodeTransforms(t *testing.T) {
	input := meshGLB(t, boxPoints(Vec3{-1, -1, -1}, Vec3{1, 1, 1}), map[string]any{
		"nodes": []any{
			map[string]any{"name": "Root", "children": []int{1}, "scale": []float64{2, 2, 2}},
			map[string]any{"name": "Body", "mesh": 0, "translation": []float64{0, 1, 0}},
		},
	})
	b, err := Measure(input)
	require.NoError(t, err)
	assert.InDelta(t, -2, b.Min[0], 1e-6)
	assert.InDelta(t, 0, b.Min[1], 1e-6)
	assert.InDelta(t, 4, b.Max[1], 1e-6)
}

func TestNormalizeHeight(t *testing.T) {
	input := meshGLB(t, boxPoints(Vec3{2.5, 1, -0.25}, Vec3{3.5, 3, 0.25}), nil)

	out, box, err := NormalizeHeight(input, 1.83)
	require.NoError(t, err)
	assert.InDelta(t, 1.83, box.Max[1], 1e-9)

	b, err := Measure(out)
	require.NoError(t, err)
	assert.InDelta(t, 0, b.Min[1], 1e-5)
	assert.InDelta(t, 1.83, b.Max[1], 1e-5)
	center := b.Center()
	assert.InDelta(t, 0, center[0], 1e-5)
	assert.InDelta(t, 0, center[2], 1e-5)
	assert.InDelta(t, 0.915, b.Size()[0], 1e-5)
}

func TestNormalizeHeightDegenerate(t *testing.T) {
	input := meshGLB(t, []Vec3{{0, 1, 0}, {1, 1, 0}}, nil)
	_, _, err := NormalizeHeight(input, 1.83)
	assert.True(t, errors.Is(err, ErrDegenerate))
}

func TestNormalizeHeightOutOfRangeAccessor(t *testing.T) {
	pts := boxPoints(Vec3{0, 0, 0}, Vec3{1, 2, 1})
	cases := map[string]map[string]any{
		"negative view offset": {
			"bufferViews": []any{map[string]any{"buffer": 0, "byteOffset": -8, "byteLength": 96}},
		},
		"negative stride": {
			"bufferViews": []any{map[string]any{"buffer": 0, "byteStride": -12, "byteLength": 96}},
		},
		"overflowing count": {
			"accessors": []any{map[string]any{"bufferView": 0, "componentType": componentFloat, "count": math.MaxInt64 / 4, "type": "VEC3"}},
		},
	}
	for name, extra := range cases {
		t.Run(name, func(t *testing.T) {
			input := meshGLB(t, pts, extra)
			require.NotPanics(t, func() {
				_, _, err := NormalizeHeight(input, 1.8)
				assert.True(t, errors.Is(err, ErrDegenerate))
			})
		})
	}
}

func TestMeasureFallsBackToDeclaredBounds(t *testing.T) {
	input := meshGLB(t, boxPoints(Vec3{0, 0, 0}, Vec3{1, 1, 1}), map[string]any{
		"bufferViews": []any{map[string]any{"buffer": 0, "byteOffset": -8, "byteLength": 96}},
		"accessors": []any{map[string]any{
			"bufferView": 0, "componentType": componentFloat, "count": 8, "type": "VEC3",
			"min": []float64{-1, 0, -1}, "max": []float64{1, 3, 1},
		}},
	})
	b, err := Measure(input)
	require.NoError(t, err)
	assert.InDelta(t, 3, b.Max[1], 1e-9)
	assert.InDelta(t, -1, b.Min[0], 1e-9)
}

func TestAlignGripPutsBladeUp(t *testing.T) {
	// handle along x in [0, 0.2], blade along x in [0.25, 1.0]
	pts := append(boxPoints(Vec3{0, -0.02, -0.02}, Vec3{0.2, 0.02, 0.02}),
		boxPoints(Vec3{0.25, -0.1, -0.02}, Vec3{1.0, 0.1, 0.02})...)
	input := meshGLB(t, pts, nil)

	out, box, err := AlignGrip(input)
	require.NoError(t, err)

	b, err := Measure(out)
	require.NoError(t, err)
	assert.InDelta(t, -0.1, b.Min[1], 1e-5)
	assert.InDelta(t, 0.9, b.Max[1], 1e-5)
	assert.InDelta(t, 0.2, b.Size()[0], 1e-5)
	assert.InDelta(t, box.Max[1], b.Max[1], 1e-5)
}

func TestAlignGripFlipsWhenGripAtHighEnd(t *testing.T) {
	pts := append(boxPoints(Vec3{0, -0.1, -0.02}, Vec3{0.75, 0.1, 0.02}),
		boxPoints(Vec3{0.8, -0.02, -0.02}, Vec3{1.0, 0.02, 0.02})...)
	input := meshGLB(t, pts, nil)

	out, _, err := AlignGrip(input)
	require.NoError(t, err)
	b, err := Measure(out)
	require.NoError(t, err)
	assert.InDelta(t, -0.1, b.Min[1], 1e-5)
	assert.InDelta(t, 0.9, b.Max[1], 1e-5)
}

func mustParse(t *testing.T, data []byte) *Container {
	t.Helper()
	c, err := Parse(data)
	require.NoError(t, err)
	return c
}
