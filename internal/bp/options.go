package bp

import (
	"os"

	"github.com/born-ml/bpgrad/internal/algebra"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// ScheduleKind selects the order of messages within a sweep.
type ScheduleKind string

const (
	// TreeLike sends messages leaves-to-root then root-to-leaves: exact in
	// one sweep on acyclic graphs, an error on loopy ones.
	TreeLike ScheduleKind = "TREE_LIKE"
	// RandomSchedule sends every message once per sweep in a fresh random order.
	RandomSchedule ScheduleKind = "RANDOM"
)

// UpdateOrder selects how a sweep sends its messages.
type UpdateOrder string

const (
	// Sequential sends each message as soon as it is computed.
	Sequential UpdateOrder = "SEQUENTIAL"
	// Parallel computes every message from the previous sweep's messages,
	// then sends them all.
	Parallel UpdateOrder = "PARALLEL"
)

// Options configures a belief propagation run.
type Options struct {
	Schedule    ScheduleKind `yaml:"schedule" validate:"oneof=TREE_LIKE RANDOM"`
	UpdateOrder UpdateOrder  `yaml:"updateOrder" validate:"oneof=SEQUENTIAL PARALLEL"`
	// MaxIterations bounds the number of sweeps.
	MaxIterations int `yaml:"maxIterations" validate:"gte=1"`
	// TimeoutSeconds bounds the run's wall time, checked between sweeps; 0
	// disables it.
	TimeoutSeconds float64 `yaml:"timeoutSeconds" validate:"gte=0"`
	// NormalizeMessages rescales every message to sum to one.
	NormalizeMessages bool `yaml:"normalizeMessages"`
	// ConvergenceThreshold is the residual below which a message counts as
	// converged. The run stops once every message has converged.
	ConvergenceThreshold float64 `yaml:"convergenceThreshold" validate:"gte=0"`
	// CacheFactorBeliefs keeps each factor's belief and updates it
	// incrementally instead of recomputing products of messages.
	CacheFactorBeliefs bool `yaml:"cacheFactorBeliefs"`
	// Algebra is the name of the algebra messages are computed in.
	Algebra string `yaml:"algebra" validate:"oneof=REAL LOG LOG_SIGN SPLIT SHIFTED_REAL"`
	// NumWorkers is the number of goroutines of a parallel sweep (0: one
	// per CPU). Ignored while recording for differentiation.
	NumWorkers int `yaml:"numWorkers" validate:"gte=0"`
	// Seed of the random schedule.
	Seed uint64 `yaml:"seed"`
}

// DefaultOptions returns the default options.
func DefaultOptions() Options {
	return Options{
		Schedule:             TreeLike,
		UpdateOrder:          Parallel,
		MaxIterations:        100,
		NormalizeMessages:    true,
		ConvergenceThreshold: 1e-8,
		Algebra:              algebra.LogSign.Name(),
		NumWorkers:           1,
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the options.
func (o Options) Validate() error {
	if err := validate.Struct(o); err != nil {
		return errors.Wrap(err, "bp: invalid options")
	}
	return nil
}

// AlgebraImpl returns the algebra named by o.Algebra.
func (o Options) AlgebraImpl() (algebra.Algebra, error) {
	return algebra.ByName(o.Algebra)
}

// ParseOptions reads options from YAML on top of the defaults and validates
// them.
func ParseOptions(data []byte) (Options, error) {
	opts := DefaultOptions()
	if err := yaml.Unmarshal(data, &opts); err != nil {
		return opts, errors.Wrap(err, "bp: parsing options")
	}
	if err := opts.Validate(); err != nil {
		return opts, err
	}
	return opts, nil
}

// LoadOptions reads options from a YAML file. See ParseOptions.
func LoadOptions(path string) (Options, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return DefaultOptions(), errors.Wrapf(err, "bp: reading options from %s", path)
	}
	opts, err := ParseOptions(data)
	if err != nil {
		return opts, errors.WithMessagef(err, "file %s", path)
	}
	return opts, nil
}
