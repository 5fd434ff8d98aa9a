package serialization

import "time"

// Format constants.
const (
	MagicBytes      = "BPGW"
	FormatVersion   = 1
	FixedHeaderSize = 64
	HeaderAlignment = 64
	ChecksumSize    = 32
	ChecksumOffset  = 0x20
	bytesPerValue   = 8
	bpgradVersion   = "0.1.0"
)

// Flags of the fixed header.
const (
	FlagHasCheckpoint uint32 = 1 << 0
	FlagHasMetadata   uint32 = 1 << 1
)

// Header is the JSON header of a .bpw file.
type Header struct {
	FormatVersion int               `json:"format_version"`
	BpgradVersion string            `json:"bpgrad_version"`
	CreatedAt     time.Time         `json:"created_at"`
	Tensors       []TensorMeta      `json:"tensors"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	Checkpoint    *CheckpointMeta   `json:"checkpoint,omitempty"`
}

// CheckpointMeta is the training state the weights were saved at.
type CheckpointMeta struct {
	Epoch           int            `json:"epoch"`
	Loss            float64        `json:"loss"`
	OptimizerType   string         `json:"optimizer_type"`
	OptimizerConfig map[string]any `json:"optimizer_config,omitempty"`
}

// TensorMeta describes one tensor of the data section.
type TensorMeta struct {
	Name    string `json:"name"`
	Algebra string `json:"algebra"`
	Shape   []int  `json:"shape"`
	Offset  int64  `json:"offset"` // Bytes from the start of the data section.
	Size    int64  `json:"size"`   // Bytes.
}

// numElements returns the number of values the shape holds.
func (m TensorMeta) numElements() int64 {
	n := int64(1)
	for _, d := range m.Shape {
		n *= int64(d)
	}
	return n
}

// dataOffset returns where the data section starts for a JSON header of
// headerSize bytes.
func dataOffset(headerSize int64) int64 {
	pos := int64(FixedHeaderSize) + headerSize
	return pos + (HeaderAlignment-pos%HeaderAlignment)%HeaderAlignment
}
