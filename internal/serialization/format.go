// Package serialization implements the .wha (wallholla archive) format
// used to persist named float32 tensors: feature caches and backbone
// weights.
//
// Layout:
//
//	magic "WHLA" | uint32 version | uint32 flags | uint64 header size
//	| JSON header | zero padding to 64-byte alignment
//	| raw little-endian float32 tensor data
//	| SHA-256 checksum of everything before it
package serialization

import (
	"fmt"
	"time"
)

// Format constants.
const (
	MagicBytes      = "WHLA"
	FormatVersion   = 1
	HeaderAlignment = 64 // tensor data alignment, in bytes
	ChecksumSize    = 32 // SHA-256
)

// wallhollaVersion is stamped into every archive header.
const wallhollaVersion = "0.1.0"

// DTypeFloat32 is the only data type the format currently carries; every
// persisted array (features and labels alike) is float32.
const DTypeFloat32 = "float32"

// Flags for the .wha format.
const (
	FlagHasMetadata uint32 = 1 << 0 // custom metadata present in header
)

// Header is the JSON header of a .wha file.
type Header struct {
	FormatVersion    int               `json:"format_version"`
	WallhollaVersion string            `json:"wallholla_version"`
	CreatedAt        time.Time         `json:"created_at"`
	Tensors          []TensorMeta      `json:"tensors"`
	Metadata         map[string]string `json:"metadata,omitempty"`
}

// TensorMeta describes one tensor in the data section.
type TensorMeta struct {
	Name   string `json:"name"`
	DType  string `json:"dtype"`
	Shape  []int  `json:"shape"`
	Offset int64  `json:"offset"` // bytes from start of the data section
	Size   int64  `json:"size"`   // bytes
}

// FormatError reports a structurally invalid or corrupt archive.
type FormatError struct {
	Path   string
	Reason string
}

// Error implements the error interface.
func (e *FormatError) Error() string {
	return fmt.Sprintf("invalid archive %s: %s", e.Path, e.Reason)
}

func formatErrorf(path, format string, args ...any) *FormatError {
	return &FormatError{Path: path, Reason: fmt.Sprintf(format, args...)}
}
