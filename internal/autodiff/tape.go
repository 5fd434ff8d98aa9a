package autodiff

import (
	"github.com/born-ml/bpgrad/internal/tensor"
)

// Op is one recorded tensor operation.
//
// Backward receives the adjoint of Output and returns one adjoint per input
// (nil where the input receives nothing). Returned tensors must be freshly
// allocated: the tape accumulates into them.
type Op interface {
	Inputs() []*tensor.Tensor
	Output() *tensor.Tensor
	Backward(outputAdj *tensor.Tensor) []*tensor.Tensor
}

// MultiOutputOp is an Op producing several tensors (e.g. all the messages a
// global factor sends). Output returns the first one.
type MultiOutputOp interface {
	Op
	Outputs() []*tensor.Tensor
	// BackwardMulti receives one adjoint per output; outputs that received
	// no adjoint get a zero tensor.
	BackwardMulti(outputAdjs []*tensor.Tensor) []*tensor.Tensor
}

// GradientTape records operations during the forward pass and computes
// adjoints during the backward pass using reverse-mode differentiation.
//
// Usage:
//
//	tape := NewGradientTape()
//	tape.StartRecording()
//	// ... perform recorded operations ...
//	adjs := tape.Backward(map[*tensor.Tensor]*tensor.Tensor{out: outAdj})
type GradientTape struct {
	operations []Op // Recorded operations (in execution order)
	recording  bool // Whether tape is currently recording
}

// NewGradientTape creates a new gradient tape.
func NewGradientTape() *GradientTape {
	return &GradientTape{
		operations: make([]Op, 0, 64),
	}
}

// StartRecording enables operation recording.
func (t *GradientTape) StartRecording() {
	t.recording = true
}

// StopRecording disables operation recording.
func (t *GradientTape) StopRecording() {
	t.recording = false
}

// IsRecording returns true if the tape is currently recording operations.
// A nil tape never records.
func (t *GradientTape) IsRecording() bool {
	return t != nil && t.recording
}

// Record adds an operation to the tape.
// Only records if the tape is currently recording.
func (t *GradientTape) Record(op Op) {
	if t.IsRecording() {
		t.operations = append(t.operations, op)
	}
}

// Clear resets the tape, removing all recorded operations.
// Recording state is preserved.
func (t *GradientTape) Clear() {
	clear(t.operations)
	t.operations = t.operations[:0]
}

// NumOps returns the number of recorded operations.
func (t *GradientTape) NumOps() int {
	return len(t.operations)
}

// Backward computes adjoints by walking the tape in reverse.
//
// seeds maps output tensors to their adjoints; several outputs may be seeded
// at once. Adjoints of tensors used several times are summed. The seeds are
// cloned, never modified.
//
// Returns a map from every tensor that received an adjoint to that adjoint.
func (t *GradientTape) Backward(seeds map[*tensor.Tensor]*tensor.Tensor) map[*tensor.Tensor]*tensor.Tensor {
	adjs := make(map[*tensor.Tensor]*tensor.Tensor, len(seeds))
	for out, adj := range seeds {
		adjs[out] = adj.Clone()
	}
	if len(t.operations) == 0 {
		return adjs
	}

	// Stop recording during backward pass to prevent recording adjoint operations
	wasRecording := t.recording
	t.recording = false
	defer func() {
		t.recording = wasRecording
	}()

	for i := len(t.operations) - 1; i >= 0; i-- {
		op := t.operations[i]
		inputAdjs := t.computeInputAdjs(op, adjs)
		if inputAdjs == nil {
			continue
		}
		t.accumulateAdjs(op, inputAdjs, adjs)
	}
	return adjs
}

// computeInputAdjs computes adjoints for an operation's inputs.
// Returns nil if no adjoint flows to this operation.
func (t *GradientTape) computeInputAdjs(op Op, adjs map[*tensor.Tensor]*tensor.Tensor) []*tensor.Tensor {
	if multiOp, isMulti := op.(MultiOutputOp); isMulti {
		outputs := multiOp.Outputs()
		outputAdjs := make([]*tensor.Tensor, len(outputs))
		hasAny := false
		for j, out := range outputs {
			if adj, ok := adjs[out]; ok {
				outputAdjs[j] = adj
				hasAny = true
			}
		}
		if !hasAny {
			return nil
		}
		for j, out := range outputs {
			if outputAdjs[j] == nil {
				outputAdjs[j] = out.CopyAndFill(out.Algebra().Zero())
			}
		}
		return multiOp.BackwardMulti(outputAdjs)
	}
	outputAdj, ok := adjs[op.Output()]
	if !ok {
		return nil
	}
	return op.Backward(outputAdj)
}

// accumulateAdjs accumulates adjoints for each input tensor.
func (t *GradientTape) accumulateAdjs(op Op, inputAdjs []*tensor.Tensor, adjs map[*tensor.Tensor]*tensor.Tensor) {
	for j, input := range op.Inputs() {
		if j >= len(inputAdjs) {
			break
		}
		inputAdj := inputAdjs[j]
		if inputAdj == nil || input == nil {
			continue
		}
		if existing, ok := adjs[input]; ok {
			existing.ElemAdd(inputAdj)
		} else {
			adjs[input] = inputAdj
		}
	}
}
