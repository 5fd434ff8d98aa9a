package bp

import (
	"math"

	"github.com/born-ml/bpgrad/internal/graph"
)

// messages is the arena of messages of one run: a pair of slots per edge
// (current and pending) and a flip index selecting the current one.
type messages struct {
	pairs     [][2]*graph.VarTensor
	cur       []uint8
	residuals []float64
	converged []bool
	// numConverged counts the true entries of converged.
	numConverged int
}

func newMessages(numEdges int) *messages {
	m := &messages{
		pairs:     make([][2]*graph.VarTensor, numEdges),
		cur:       make([]uint8, numEdges),
		residuals: make([]float64, numEdges),
		converged: make([]bool, numEdges),
	}
	for i := range m.residuals {
		m.residuals[i] = math.Inf(1)
	}
	return m
}

func (m *messages) current(e int) *graph.VarTensor { return m.pairs[e][m.cur[e]] }
func (m *messages) pending(e int) *graph.VarTensor { return m.pairs[e][1-m.cur[e]] }

// init sets both slots of e to msg.
func (m *messages) init(e int, msg *graph.VarTensor) {
	m.pairs[e] = [2]*graph.VarTensor{msg, msg}
	m.cur[e] = 0
}

func (m *messages) setPending(e int, msg *graph.VarTensor) { m.pairs[e][1-m.cur[e]] = msg }

// send makes the pending message of e current, records its residual against
// the old one and returns the old one.
func (m *messages) send(e int, threshold float64) (old *graph.VarTensor) {
	old = m.current(e)
	m.cur[e] ^= 1
	r := residual(old, m.current(e))
	m.residuals[e] = r
	conv := r < threshold
	if conv != m.converged[e] {
		m.converged[e] = conv
		if conv {
			m.numConverged++
		} else {
			m.numConverged--
		}
	}
	return old
}

func (m *messages) allConverged() bool { return m.numConverged == len(m.converged) }

// maxResidual returns the largest residual of the last sends.
func (m *messages) maxResidual() float64 {
	r := 0.0
	for _, x := range m.residuals {
		if math.IsNaN(x) || x > r {
			r = x
		}
		if math.IsNaN(r) {
			break
		}
	}
	return r
}

// residual is the infinity norm of the difference of the messages in
// log-probability space. Equal entries (including two zeros) differ by 0;
// anything NaN yields +Inf so the message never counts as converged.
func residual(old, cur *graph.VarTensor) float64 {
	s := old.Algebra()
	r := 0.0
	for i := 0; i < old.Size(); i++ {
		a, b := s.ToLogProb(old.Value(i)), s.ToLogProb(cur.Value(i))
		if a == b {
			continue
		}
		d := math.Abs(a - b)
		if math.IsNaN(d) {
			return math.Inf(1)
		}
		r = max(r, d)
	}
	return r
}
