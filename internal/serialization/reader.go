package serialization

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"

	"github.com/koaning/wallholla/tensor"
)

// fixedPreludeSize is magic + version + flags + header size.
const fixedPreludeSize = 4 + 4 + 4 + 8

// Load reads every tensor from a .wha archive.
//
// The magic bytes, format version, tensor offsets and the trailing
// SHA-256 checksum are all validated; failures return a *FormatError.
func Load(path string) (map[string]*tensor.Tensor, Header, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, Header{}, fmt.Errorf("read archive %s: %w", path, err)
	}

	header, data, err := parse(path, raw)
	if err != nil {
		return nil, Header{}, err
	}

	tensors := make(map[string]*tensor.Tensor, len(header.Tensors))
	for _, meta := range header.Tensors {
		t, err := decodeTensor(path, meta, data)
		if err != nil {
			return nil, Header{}, err
		}
		tensors[meta.Name] = t
	}
	return tensors, header, nil
}

// LoadTensor reads a single named tensor from a .wha archive.
func LoadTensor(path, name string) (*tensor.Tensor, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read archive %s: %w", path, err)
	}

	header, data, err := parse(path, raw)
	if err != nil {
		return nil, err
	}
	for _, meta := range header.Tensors {
		if meta.Name == name {
			return decodeTensor(path, meta, data)
		}
	}
	return nil, formatErrorf(path, "tensor %q not found", name)
}

// parse validates the archive and returns its header and data section.
func parse(path string, raw []byte) (Header, []byte, error) {
	if len(raw) < fixedPreludeSize+ChecksumSize {
		return Header{}, nil, formatErrorf(path, "file too short (%d bytes)", len(raw))
	}

	body := raw[:len(raw)-ChecksumSize]
	stored := raw[len(raw)-ChecksumSize:]
	computed := sha256.Sum256(body)
	if !bytes.Equal(stored, computed[:]) {
		return Header{}, nil, formatErrorf(path, "checksum mismatch: file is corrupt")
	}

	if string(body[:4]) != MagicBytes {
		return Header{}, nil, formatErrorf(path, "bad magic bytes %q", body[:4])
	}
	version := binary.LittleEndian.Uint32(body[4:8])
	if version != FormatVersion {
		return Header{}, nil, formatErrorf(path, "unsupported format version %d", version)
	}
	headerSize := binary.LittleEndian.Uint64(body[12:20])
	if headerSize > uint64(len(body)-fixedPreludeSize) {
		return Header{}, nil, formatErrorf(path, "header size %d exceeds file size", headerSize)
	}

	var header Header
	if err := json.Unmarshal(body[fixedPreludeSize:fixedPreludeSize+headerSize], &header); err != nil {
		return Header{}, nil, formatErrorf(path, "malformed header: %v", err)
	}

	dataStart := fixedPreludeSize + int(headerSize)
	dataStart += (HeaderAlignment - (dataStart % HeaderAlignment)) % HeaderAlignment
	if dataStart > len(body) {
		return Header{}, nil, formatErrorf(path, "truncated data section")
	}
	data := body[dataStart:]

	for _, meta := range header.Tensors {
		if meta.DType != DTypeFloat32 {
			return Header{}, nil, formatErrorf(path, "tensor %q has unsupported dtype %q", meta.Name, meta.DType)
		}
		if meta.Offset < 0 || meta.Offset+meta.Size > int64(len(data)) {
			return Header{}, nil, formatErrorf(path, "tensor %q offsets exceed data section", meta.Name)
		}
		elements := tensor.Shape(meta.Shape).NumElements()
		if int64(elements)*4 != meta.Size {
			return Header{}, nil, formatErrorf(path, "tensor %q size %d does not match shape %v", meta.Name, meta.Size, meta.Shape)
		}
	}
	return header, data, nil
}

// decodeTensor materializes one tensor from the data section.
func decodeTensor(path string, meta TensorMeta, data []byte) (*tensor.Tensor, error) {
	section := data[meta.Offset : meta.Offset+meta.Size]
	values := make([]float32, len(section)/4)
	for i := range values {
		values[i] = math.Float32frombits(binary.LittleEndian.Uint32(section[i*4:]))
	}
	t, err := tensor.FromSlice(values, tensor.Shape(meta.Shape))
	if err != nil {
		return nil, formatErrorf(path, "tensor %q: %v", meta.Name, err)
	}
	return t, nil
}
