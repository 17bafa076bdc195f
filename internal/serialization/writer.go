package serialization

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"sort"
	"time"

	"github.com/koaning/wallholla/tensor"
)

// Save writes named tensors and optional metadata to a .wha archive.
//
// Tensors are laid out in name order so identical inputs produce
// byte-identical data sections. The file ends with a SHA-256 checksum
// over everything before it.
func Save(path string, tensors map[string]*tensor.Tensor, metadata map[string]string) error {
	if len(tensors) == 0 {
		return fmt.Errorf("save %s: no tensors to write", path)
	}

	names := make([]string, 0, len(tensors))
	for name := range tensors {
		names = append(names, name)
	}
	sort.Strings(names)

	header := Header{
		FormatVersion:    FormatVersion,
		WallhollaVersion: wallhollaVersion,
		CreatedAt:        time.Now().UTC(),
		Metadata:         metadata,
	}

	var offset int64
	for _, name := range names {
		t := tensors[name]
		size := int64(t.NumElements()) * 4
		header.Tensors = append(header.Tensors, TensorMeta{
			Name:   name,
			DType:  DTypeFloat32,
			Shape:  []int(t.Shape()),
			Offset: offset,
			Size:   size,
		})
		offset += size
	}

	headerJSON, err := json.Marshal(header)
	if err != nil {
		return fmt.Errorf("marshal archive header: %w", err)
	}

	var buf bytes.Buffer
	buf.Grow(fixedPreludeSize + len(headerJSON) + HeaderAlignment + int(offset) + ChecksumSize)
	buf.WriteString(MagicBytes)

	if err := binary.Write(&buf, binary.LittleEndian, uint32(FormatVersion)); err != nil {
		return fmt.Errorf("write version: %w", err)
	}
	flags := uint32(0)
	if len(metadata) > 0 {
		flags |= FlagHasMetadata
	}
	if err := binary.Write(&buf, binary.LittleEndian, flags); err != nil {
		return fmt.Errorf("write flags: %w", err)
	}
	if err := binary.Write(&buf, binary.LittleEndian, uint64(len(headerJSON))); err != nil {
		return fmt.Errorf("write header size: %w", err)
	}
	buf.Write(headerJSON)

	padding := (HeaderAlignment - (buf.Len() % HeaderAlignment)) % HeaderAlignment
	buf.Write(make([]byte, padding))

	for _, name := range names {
		values := tensors[name].Data()
		chunk := make([]byte, len(values)*4)
		for i, v := range values {
			binary.LittleEndian.PutUint32(chunk[i*4:], math.Float32bits(v))
		}
		buf.Write(chunk)
	}

	checksum := sha256.Sum256(buf.Bytes())
	buf.Write(checksum[:])

	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write archive %s: %w", path, err)
	}
	return nil
}
