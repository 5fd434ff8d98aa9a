package serialization

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"io"
	"math"
	"os"

	"github.com/born-ml/bpgrad/internal/algebra"
	"github.com/born-ml/bpgrad/internal/tensor"
	"github.com/pkg/errors"
)

// ReaderOptions configures a Reader.
type ReaderOptions struct {
	// SkipChecksumValidation skips hashing the data section on ReadStateDict.
	SkipChecksumValidation bool
}

// Reader reads .bpw files.
type Reader struct {
	file       *os.File
	opts       ReaderOptions
	header     Header
	flags      uint32
	dataOffset int64
	dataSize   int64
	checksum   [ChecksumSize]byte
}

// NewReader opens path and parses and validates its header.
func NewReader(path string, opts ReaderOptions) (*Reader, error) {
	//nolint:gosec // G304: path is chosen by the caller
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "serialization: opening file")
	}
	r := &Reader{file: file, opts: opts}
	if err := r.parseHeader(); err != nil {
		_ = file.Close()
		return nil, errors.WithMessagef(err, "serialization: reading header of %s", path)
	}
	return r, nil
}

func (r *Reader) parseHeader() error {
	fixed := make([]byte, FixedHeaderSize)
	if _, err := io.ReadFull(r.file, fixed); err != nil {
		return errors.Wrap(err, "reading fixed header")
	}
	if string(fixed[0:4]) != MagicBytes {
		return ErrInvalidMagic
	}
	if v := binary.LittleEndian.Uint32(fixed[4:8]); v != FormatVersion {
		return errors.Wrapf(ErrUnsupportedVersion, "got %d, expected %d", v, FormatVersion)
	}
	r.flags = binary.LittleEndian.Uint32(fixed[8:12])
	headerSize := binary.LittleEndian.Uint64(fixed[16:24])
	if headerSize > MaxHeaderSize {
		return ErrHeaderTooLarge
	}
	r.dataSize = int64(binary.LittleEndian.Uint64(fixed[24:32]))
	copy(r.checksum[:], fixed[ChecksumOffset:ChecksumOffset+ChecksumSize])

	headerJSON := make([]byte, headerSize)
	if _, err := io.ReadFull(r.file, headerJSON); err != nil {
		return errors.Wrap(err, "reading header")
	}
	if err := json.Unmarshal(headerJSON, &r.header); err != nil {
		return errors.Wrap(err, "parsing header JSON")
	}
	r.dataOffset = dataOffset(int64(headerSize))

	info, err := r.file.Stat()
	if err != nil {
		return errors.Wrap(err, "stat")
	}
	if r.dataSize < 0 || r.dataOffset+r.dataSize > info.Size() {
		return &ValidationError{Type: "truncated", Details: "data section extends beyond the end of the file"}
	}
	return ValidateHeader(&r.header, r.dataSize)
}

// Header returns the parsed header.
func (r *Reader) Header() Header { return r.header }

// HasCheckpoint reports whether the file carries training state.
func (r *Reader) HasCheckpoint() bool { return r.flags&FlagHasCheckpoint != 0 }

// ReadStateDict reads every tensor, verifying the data section's checksum
// unless disabled.
func (r *Reader) ReadStateDict() (map[string]*tensor.Tensor, error) {
	data := make([]byte, r.dataSize)
	if _, err := r.file.ReadAt(data, r.dataOffset); err != nil {
		return nil, errors.Wrap(err, "serialization: reading data")
	}
	if !r.opts.SkipChecksumValidation && sha256.Sum256(data) != r.checksum {
		return nil, ErrChecksumMismatch
	}
	stateDict := make(map[string]*tensor.Tensor, len(r.header.Tensors))
	for _, meta := range r.header.Tensors {
		s, err := algebra.ByName(meta.Algebra)
		if err != nil {
			return nil, errors.WithMessagef(err, "serialization: tensor %s", meta.Name)
		}
		values := make([]float64, meta.numElements())
		for i := range values {
			off := meta.Offset + int64(i)*bytesPerValue
			values[i] = math.Float64frombits(binary.LittleEndian.Uint64(data[off : off+bytesPerValue]))
		}
		stateDict[meta.Name] = tensor.FromValues(s, values, meta.Shape...)
	}
	return stateDict, nil
}

// Close closes the file.
func (r *Reader) Close() error {
	return errors.Wrap(r.file.Close(), "serialization: closing file")
}

// Load reads every tensor of path and its header.
func Load(path string) (map[string]*tensor.Tensor, Header, error) {
	r, err := NewReader(path, ReaderOptions{})
	if err != nil {
		return nil, Header{}, err
	}
	defer func() { _ = r.Close() }()
	stateDict, err := r.ReadStateDict()
	if err != nil {
		return nil, Header{}, errors.WithMessagef(err, "loading %s", path)
	}
	return stateDict, r.Header(), nil
}
