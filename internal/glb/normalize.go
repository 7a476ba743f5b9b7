package glb

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
)

const (
	componentFloat = 5126
	epsilon        = 1e-9

	// gripSlab is the fraction of the long axis inspected at each end when
	// deciding where a weapon is held.
	gripSlab = 0.2
)

// ErrDegenerate is returned when a model has no measurable extent.
var ErrDegenerate = errors.New("glb: model has no measurable extent")

// Vec3 is a point or direction in model space.
type Vec3 [3]float64

// Box is an axis-aligned bounding box.
type Box struct {
	Min Vec3 `json:"min"`
	Max Vec3 `json:"max"`
}

// Size returns the extent along each axis.
func (b Box) Size() Vec3 {
	return Vec3{b.Max[0] - b.Min[0], b.Max[1] - b.Min[1], b.Max[2] - b.Min[2]}
}

// Center returns the midpoint of the box.
func (b Box) Center() Vec3 {
	return Vec3{(b.Max[0] + b.Min[0]) / 2, (b.Max[1] + b.Min[1]) / 2, (b.Max[2] + b.Min[2]) / 2}
}

type gltfDocument struct {
	Scene       *int             `json:"scene"`
	Scenes      []gltfScene      `json:"scenes"`
	Nodes       []gltfNode       `json:"nodes"`
	Meshes      []gltfMesh       `json:"meshes"`
	Accessors   []gltfAccessor   `json:"accessors"`
	BufferViews []gltfBufferView `json:"bufferViews"`
}

type gltfScene struct {
	Nodes []int `json:"nodes"`
}

type gltfNode struct {
	Children    []int     `json:"children"`
	Mesh        *int      `json:"mesh"`
	Matrix      []float64 `json:"matrix"`
	Translation []float64 `json:"translation"`
	Rotation    []float64 `json:"rotation"`
	Scale       []float64 `json:"scale"`
}

type gltfMesh struct {
	Primitives []struct {
		Attributes map[string]int `json:"attributes"`
	} `json:"primitives"`
}

type gltfAccessor struct {
	BufferView    *int      `json:"bufferView"`
	ByteOffset    int       `json:"byteOffset"`
	ComponentType int       `json:"componentType"`
	Count         int       `json:"count"`
	Type          string    `json:"type"`
	Min           []float64 `json:"min"`
	Max           []float64 `json:"max"`
}

type gltfBufferView struct {
	Buffer     int `json:"buffer"`
	ByteOffset int `json:"byteOffset"`
	ByteLength int `json:"byteLength"`
	ByteStride int `json:"byteStride"`
}

// Measure returns the world-space bounds of every mesh in the default scene.
func Measure(input []byte) (Box, error) {
	c, err := Parse(input)
	if err != nil {
		return Box{}, err
	}
	pts, err := worldPoints(c)
	if err != nil {
		return Box{}, err
	}
	return boundsOf(pts)
}

// NormalizeHeight scales the model uniformly so it stands height meters tall,
// with its lowest point on y=0 and centred on x/z. Existing nodes are kept
// and wrapped under a new root.
func NormalizeHeight(input []byte, height float64) ([]byte, Box, error) {
	if height <= 0 {
		return nil, Box{}, fmt.Errorf("glb: target height must be positive, got %v", height)
	}
	c, err := Parse(input)
	if err != nil {
		return nil, Box{}, err
	}
	pts, err := worldPoints(c)
	if err != nil {
		return nil, Box{}, err
	}
	b, err := boundsOf(pts)
	if err != nil {
		return nil, Box{}, err
	}
	size := b.Size()
	if size[1] <= epsilon {
		return nil, Box{}, ErrDegenerate
	}
	s := height / size[1]
	center := b.Center()
	translation := Vec3{-center[0] * s, -b.Min[1] * s, -center[2] * s}
	if err := wrapScene(c, "NormalizedRoot", translation, identityQuat, Vec3{s, s, s}); err != nil {
		return nil, Box{}, err
	}
	out := Box{
		Min: Vec3{-size[0] * s / 2, 0, -size[2] * s / 2},
		Max: Vec3{size[0] * s / 2, height, size[2] * s / 2},
	}
	return c.Bytes(), out, nil
}

// AlignGrip orients a weapon so its longest axis points along +Y with the
// blade up, and moves the grip to the origin. The grip is taken to be the
// narrower end of the long axis.
func AlignGrip(input []byte) ([]byte, Box, error) {
	c, err := Parse(input)
	if err != nil {
		return nil, Box{}, err
	}
	pts, err := worldPoints(c)
	if err != nil {
		return nil, Box{}, err
	}
	b, err := boundsOf(pts)
	if err != nil {
		return nil, Box{}, err
	}
	size := b.Size()
	axis := 0
	for i := 1; i < 3; i++ {
		if size[i] > size[axis] {
			axis = i
		}
	}
	length := size[axis]
	if length <= epsilon {
		return nil, Box{}, ErrDegenerate
	}
	u, v := (axis+1)%3, (axis+2)%3
	slab := length * gripSlab

	var low, high []Vec3
	for _, p := range pts {
		if p[axis] <= b.Min[axis]+slab {
			low = append(low, p)
		}
		if p[axis] >= b.Max[axis]-slab {
			high = append(high, p)
		}
	}

	gripAtLow := len(high) == 0 || (len(low) > 0 && crossRadius(low, u, v) <= crossRadius(high, u, v))
	var grip Vec3
	direction := Vec3{}
	if gripAtLow {
		cu, cv := centroid(low, u, v)
		grip[axis] = b.Min[axis] + slab/2
		grip[u], grip[v] = cu, cv
		direction[axis] = 1
	} else {
		cu, cv := centroid(high, u, v)
		grip[axis] = b.Max[axis] - slab/2
		grip[u], grip[v] = cu, cv
		direction[axis] = -1
	}

	q := quatFromTo(direction, Vec3{0, 1, 0})
	rot := composeTRS(Vec3{}, q, Vec3{1, 1, 1})
	moved := transformPoint(rot, grip)
	translation := Vec3{-moved[0], -moved[1], -moved[2]}
	if err := wrapScene(c, "GripRoot", translation, q, Vec3{1, 1, 1}); err != nil {
		return nil, Box{}, err
	}

	full := composeTRS(translation, q, Vec3{1, 1, 1})
	aligned := make([]Vec3, 0, 8)
	for _, corner := range corners(b) {
		aligned = append(aligned, transformPoint(full, corner))
	}
	out, _ := boundsOf(aligned)
	return c.Bytes(), out, nil
}

func crossRadius(pts []Vec3, u, v int) float64 {
	cu, cv := centroid(pts, u, v)
	r := 0.0
	for _, p := range pts {
		r = math.Max(r, math.Hypot(p[u]-cu, p[v]-cv))
	}
	return r
}

func centroid(pts []Vec3, u, v int) (float64, float64) {
	var su, sv float64
	for _, p := range pts {
		su += p[u]
		sv += p[v]
	}
	n := float64(len(pts))
	return su / n, sv / n
}

func corners(b Box) []Vec3 {
	out := make([]Vec3, 0, 8)
	for _, x := range []float64{b.Min[0], b.Max[0]} {
		for _, y := range []float64{b.Min[1], b.Max[1]} {
			for _, z := range []float64{b.Min[2], b.Max[2]} {
				out = append(out, Vec3{x, y, z})
			}
		}
	}
	return out
}

func boundsOf(pts []Vec3) (Box, error) {
	if len(pts) == 0 {
		return Box{}, ErrDegenerate
	}
	b := Box{Min: pts[0], Max: pts[0]}
	for _, p := range pts[1:] {
		for i := 0; i < 3; i++ {
			b.Min[i] = math.Min(b.Min[i], p[i])
			b.Max[i] = math.Max(b.Max[i], p[i])
		}
	}
	return b, nil
}

// worldPoints collects every POSITION vertex of the default scene in world
// space. Accessors that cannot be read from the BIN chunk contribute their
// declared min/max corners instead.
func worldPoints(c *Container) ([]Vec3, error) {
	raw := c.Index(ChunkTypeJSON)
	if raw < 0 {
		return nil, ErrMissingJSONChunk
	}
	var doc gltfDocument
	if err := json.Unmarshal(trimJSON(c.Chunks[raw].Data), &doc); err != nil {
		return nil, fmt.Errorf("glb: decode JSON chunk: %w", err)
	}
	bin := c.BinaryChunk()

	var pts []Vec3
	var visit func(idx int, parent mat4, depth int)
	visit = func(idx int, parent mat4, depth int) {
		if idx < 0 || idx >= len(doc.Nodes) || depth > len(doc.Nodes) {
			return
		}
		n := doc.Nodes[idx]
		world := mul(parent, localMatrix(n))
		if n.Mesh != nil && *n.Mesh >= 0 && *n.Mesh < len(doc.Meshes) {
			for _, prim := range doc.Meshes[*n.Mesh].Primitives {
				a, ok := prim.Attributes["POSITION"]
				if !ok || a < 0 || a >= len(doc.Accessors) {
					continue
				}
				for _, p := range accessorPoints(&doc, bin, doc.Accessors[a]) {
					pts = append(pts, transformPoint(world, p))
				}
			}
		}
		for _, child := range n.Children {
			visit(child, world, depth+1)
		}
	}
	for _, root := range sceneRoots(&doc) {
		visit(root, identity(), 0)
	}
	return pts, nil
}

func accessorPoints(doc *gltfDocument, bin []byte, acc gltfAccessor) []Vec3 {
	if acc.Type != "VEC3" {
		return nil
	}
	if acc.ComponentType == componentFloat && acc.BufferView != nil && *acc.BufferView >= 0 && *acc.BufferView < len(doc.BufferViews) {
		bv := doc.BufferViews[*acc.BufferView]
		stride := bv.ByteStride
		if stride == 0 {
			stride = 12
		}
		if bv.Buffer == 0 && inBounds(len(bin), bv.ByteOffset, acc.ByteOffset, stride, acc.Count) {
			base := bv.ByteOffset + acc.ByteOffset
			out := make([]Vec3, acc.Count)
			for i := range out {
				off := base + i*stride
				for k := 0; k < 3; k++ {
					bits := binary.LittleEndian.Uint32(bin[off+4*k : off+4*k+4])
					out[i][k] = float64(math.Float32frombits(bits))
				}
			}
			return out
		}
	}
	if len(acc.Min) == 3 && len(acc.Max) == 3 {
		return corners(Box{Min: Vec3{acc.Min[0], acc.Min[1], acc.Min[2]}, Max: Vec3{acc.Max[0], acc.Max[1], acc.Max[2]}})
	}
	return nil
}

// inBounds reports whether count VEC3 floats starting at viewOffset+accOffset
// and spaced stride bytes apart all lie inside a buffer of size n.
func inBounds(n, viewOffset, accOffset, stride, count int) bool {
	if viewOffset < 0 || accOffset < 0 || stride < 12 || count <= 0 {
		return false
	}
	if viewOffset > n || accOffset > n-viewOffset {
		return false
	}
	room := n - viewOffset - accOffset - 12
	if room < 0 {
		return false
	}
	return count-1 <= room/stride
}

func sceneRoots(doc *gltfDocument) []int {
	idx := 0
	if doc.Scene != nil {
		idx = *doc.Scene
	}
	if idx >= 0 && idx < len(doc.Scenes) {
		return doc.Scenes[idx].Nodes
	}
	isChild := make([]bool, len(doc.Nodes))
	for _, n := range doc.Nodes {
		for _, ch := range n.Children {
			if ch >= 0 && ch < len(isChild) {
				isChild[ch] = true
			}
		}
	}
	var roots []int
	for i, child := range isChild {
		if !child {
			roots = append(roots, i)
		}
	}
	return roots
}

// wrapScene inserts a new node carrying the given transform above the
// current roots of the default scene.
func wrapScene(c *Container, name string, t Vec3, q [4]float64, s Vec3) error {
	doc, err := c.Document()
	if err != nil {
		return err
	}
	var typed gltfDocument
	if err := json.Unmarshal(trimJSON(c.Chunks[c.Index(ChunkTypeJSON)].Data), &typed); err != nil {
		return fmt.Errorf("glb: decode JSON chunk: %w", err)
	}
	roots := sceneRoots(&typed)

	var nodes []json.RawMessage
	if raw, ok := doc["nodes"]; ok {
		if err := json.Unmarshal(raw, &nodes); err != nil {
			return fmt.Errorf("glb: decode nodes: %w", err)
		}
	}
	wrapper := map[string]any{
		"name":        name,
		"translation": t[:],
		"rotation":    q[:],
		"scale":       s[:],
	}
	if len(roots) > 0 {
		wrapper["children"] = roots
	}
	encoded, err := json.Marshal(wrapper)
	if err != nil {
		return err
	}
	nodes = append(nodes, encoded)
	rootIdx := len(nodes) - 1

	var scenes []map[string]json.RawMessage
	if raw, ok := doc["scenes"]; ok {
		if err := json.Unmarshal(raw, &scenes); err != nil {
			return fmt.Errorf("glb: decode scenes: %w", err)
		}
	}
	sceneIdx := 0
	if typed.Scene != nil {
		sceneIdx = *typed.Scene
	}
	if sceneIdx < 0 || sceneIdx >= len(scenes) {
		scenes = append(scenes, map[string]json.RawMessage{})
		sceneIdx = len(scenes) - 1
		doc["scene"] = json.RawMessage(fmt.Sprint(sceneIdx))
	}
	if scenes[sceneIdx] == nil {
		scenes[sceneIdx] = map[string]json.RawMessage{}
	}
	rootList, _ := json.Marshal([]int{rootIdx})
	scenes[sceneIdx]["nodes"] = rootList

	if doc["nodes"], err = json.Marshal(nodes); err != nil {
		return err
	}
	if doc["scenes"], err = json.Marshal(scenes); err != nil {
		return err
	}
	return c.SetDocument(doc)
}

func trimJSON(b []byte) []byte {
	for len(b) > 0 && (b[len(b)-1] == ' ' || b[len(b)-1] == 0) {
		b = b[:len(b)-1]
	}
	return b
}
