package serialization

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"maps"
	"math"
	"os"
	"slices"
	"time"

	"github.com/born-ml/bpgrad/internal/tensor"
	"github.com/pkg/errors"
)

// Writer writes .bpw files.
type Writer struct {
	file   *os.File
	closed bool
}

// NewWriter creates the file at path.
func NewWriter(path string) (*Writer, error) {
	//nolint:gosec // G304: path is chosen by the caller
	file, err := os.Create(path)
	if err != nil {
		return nil, errors.Wrap(err, "serialization: creating file")
	}
	return &Writer{file: file}, nil
}

// WriteStateDict writes the tensors of stateDict, ordered by name, with the
// fields of header that are not derived from the tensors themselves.
func (w *Writer) WriteStateDict(stateDict map[string]*tensor.Tensor, header Header) error {
	if w.closed {
		return ErrWriterClosed
	}
	header.FormatVersion = FormatVersion
	header.BpgradVersion = bpgradVersion
	if header.CreatedAt.IsZero() {
		header.CreatedAt = time.Now().UTC()
	}
	header.Tensors = make([]TensorMeta, 0, len(stateDict))

	var data []byte
	for _, name := range slices.Sorted(maps.Keys(stateDict)) {
		t := stateDict[name]
		if err := ValidateTensorName(name); err != nil {
			return err
		}
		header.Tensors = append(header.Tensors, TensorMeta{
			Name:    name,
			Algebra: t.Algebra().Name(),
			Shape:   t.Dims(),
			Offset:  int64(len(data)),
			Size:    int64(t.Size() * bytesPerValue),
		})
		for i := range t.Size() {
			data = binary.LittleEndian.AppendUint64(data, math.Float64bits(t.Value(i)))
		}
	}

	headerJSON, err := json.Marshal(header)
	if err != nil {
		return errors.Wrap(err, "serialization: marshaling header")
	}
	if len(headerJSON) > MaxHeaderSize {
		return ErrHeaderTooLarge
	}

	fixed := make([]byte, FixedHeaderSize)
	copy(fixed[0:4], MagicBytes)
	binary.LittleEndian.PutUint32(fixed[4:8], FormatVersion)
	var flags uint32
	if header.Checkpoint != nil {
		flags |= FlagHasCheckpoint
	}
	if len(header.Metadata) > 0 {
		flags |= FlagHasMetadata
	}
	binary.LittleEndian.PutUint32(fixed[8:12], flags)
	binary.LittleEndian.PutUint64(fixed[16:24], uint64(len(headerJSON)))
	binary.LittleEndian.PutUint64(fixed[24:32], uint64(len(data)))
	checksum := sha256.Sum256(data)
	copy(fixed[ChecksumOffset:ChecksumOffset+ChecksumSize], checksum[:])

	padding := dataOffset(int64(len(headerJSON))) - FixedHeaderSize - int64(len(headerJSON))
	for _, chunk := range [][]byte{fixed, headerJSON, make([]byte, padding), data} {
		if _, err := w.file.Write(chunk); err != nil {
			return errors.Wrap(err, "serialization: writing")
		}
	}
	return nil
}

// Close closes the file. It is safe to call more than once.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	return errors.Wrap(w.file.Close(), "serialization: closing file")
}

// Save writes stateDict to path.
func Save(path string, stateDict map[string]*tensor.Tensor, header Header) error {
	w, err := NewWriter(path)
	if err != nil {
		return err
	}
	if err := w.WriteStateDict(stateDict, header); err != nil {
		_ = w.Close()
		return errors.WithMessagef(err, "saving %s", path)
	}
	return w.Close()
}
