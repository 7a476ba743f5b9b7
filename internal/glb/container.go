// Package glb reads and rewrites binary glTF (GLB) containers.
package glb

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
)

const (
	// Magic is "glTF" read as a little-endian uint32.
	Magic uint32 = 0x46546C67

	ChunkTypeJSON uint32 = 0x4E4F534A
	ChunkTypeBIN  uint32 = 0x004E4942

	headerSize      = 12
	chunkHeaderSize = 8
)

var (
	ErrInvalidFormat    = errors.New("glb: not a binary glTF container")
	ErrMissingJSONChunk = errors.New("glb: JSON chunk not found")
)

// Chunk is one length-prefixed section of the container. Type keeps the raw
// four type bytes so they are written back unchanged.
type Chunk struct {
	Type [4]byte
	Data []byte
}

// Kind returns the chunk type as the little-endian code used by the format.
func (c Chunk) Kind() uint32 {
	return binary.LittleEndian.Uint32(c.Type[:])
}

// Container is a parsed GLB file.
type Container struct {
	Version uint32
	Chunks  []Chunk
}

// Parse validates the header and walks every chunk.
func Parse(data []byte) (*Container, error) {
	if len(data) < headerSize {
		return nil, fmt.Errorf("%w: %d bytes is shorter than the header", ErrInvalidFormat, len(data))
	}
	if magic := binary.LittleEndian.Uint32(data[0:4]); magic != Magic {
		return nil, fmt.Errorf("%w: magic 0x%08X", ErrInvalidFormat, magic)
	}
	c := &Container{Version: binary.LittleEndian.Uint32(data[4:8])}

	end := len(data)
	if declared := int(binary.LittleEndian.Uint32(data[8:12])); declared >= headerSize && declared < end {
		end = declared
	}
	offset := headerSize
	for offset+chunkHeaderSize <= end {
		length := int(binary.LittleEndian.Uint32(data[offset : offset+4]))
		var typ [4]byte
		copy(typ[:], data[offset+4:offset+8])
		start := offset + chunkHeaderSize
		if length < 0 || start+length > end {
			return nil, fmt.Errorf("%w: chunk at offset %d overruns the file", ErrInvalidFormat, offset)
		}
		c.Chunks = append(c.Chunks, Chunk{Type: typ, Data: append([]byte(nil), data[start:start+length]...)})
		offset = start + padded(length)
	}
	if len(c.Chunks) == 0 {
		return nil, fmt.Errorf("%w: no chunks", ErrInvalidFormat)
	}
	return c, nil
}

// Bytes serializes the container. Chunks are padded to a 4-byte boundary
// (spaces for JSON, zeros otherwise) and the padded length is written back.
func (c *Container) Bytes() []byte {
	total := headerSize
	for _, ch := range c.Chunks {
		total += chunkHeaderSize + padded(len(ch.Data))
	}
	out := make([]byte, total)
	binary.LittleEndian.PutUint32(out[0:4], Magic)
	binary.LittleEndian.PutUint32(out[4:8], c.Version)
	binary.LittleEndian.PutUint32(out[8:12], uint32(total))

	offset := headerSize
	for _, ch := range c.Chunks {
		n := padded(len(ch.Data))
		binary.LittleEndian.PutUint32(out[offset:offset+4], uint32(n))
		copy(out[offset+4:offset+8], ch.Type[:])
		body := out[offset+chunkHeaderSize : offset+chunkHeaderSize+n]
		copy(body, ch.Data)
		if fill := padByte(ch); fill != 0 {
			for i := len(ch.Data); i < n; i++ {
				body[i] = fill
			}
		}
		offset += chunkHeaderSize + n
	}
	return out
}

// Index returns the position of the first chunk of the given kind, or -1.
func (c *Container) Index(kind uint32) int {
	for i, ch := range c.Chunks {
		if ch.Kind() == kind {
			return i
		}
	}
	return -1
}

// Document decodes the JSON chunk into top-level keys.
func (c *Container) Document() (map[string]json.RawMessage, error) {
	idx := c.Index(ChunkTypeJSON)
	if idx < 0 {
		return nil, ErrMissingJSONChunk
	}
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(bytes.TrimRight(c.Chunks[idx].Data, " \x00"), &doc); err != nil {
		return nil, fmt.Errorf("glb: decode JSON chunk: %w", err)
	}
	return doc, nil
}

// SetDocument re-encodes doc into the JSON chunk.
func (c *Container) SetDocument(doc map[string]json.RawMessage) error {
	idx := c.Index(ChunkTypeJSON)
	if idx < 0 {
		return ErrMissingJSONChunk
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("glb: encode JSON chunk: %w", err)
	}
	c.Chunks[idx].Data = bytes.TrimRight(buf.Bytes(), "\n")
	return nil
}

// BinaryChunk returns the first BIN chunk payload, or nil.
func (c *Container) BinaryChunk() []byte {
	if idx := c.Index(ChunkTypeBIN); idx >= 0 {
		return c.Chunks[idx].Data
	}
	return nil
}

// StripAnimations removes the "animations" entry from the JSON chunk, leaving
// meshes, skins and nodes in place. The binary chunk is not touched.
func StripAnimations(input []byte) ([]byte, error) {
	c, err := Parse(input)
	if err != nil {
		return nil, err
	}
	doc, err := c.Document()
	if err != nil {
		return nil, err
	}
	delete(doc, "animations")
	if err := c.SetDocument(doc); err != nil {
		return nil, err
	}
	return c.Bytes(), nil
}

func padded(n int) int {
	return (n + 3) &^ 3
}

func padByte(ch Chunk) byte {
	if ch.Kind() == ChunkTypeJSON {
		return ' '
	}
	return 0
}
