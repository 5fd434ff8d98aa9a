package optim

// SGD implements Stochastic Gradient Descent with optional momentum.
//
// Update rule without momentum:
//
//	param = param - lr * gradient
//
// Update rule with momentum:
//
//	velocity = momentum * velocity + gradient
//	param = param - lr * velocity
type SGD struct {
	params     []*Parameter
	lr         float64
	momentum   float64
	velocities map[*Parameter][]float64
}

// SGDConfig holds configuration for SGD optimizer.
type SGDConfig struct {
	LR       float64 // Learning rate (default: 0.01)
	Momentum float64 // Momentum factor (default: 0.0, range: [0, 1))
}

// NewSGD creates a new SGD optimizer over params.
func NewSGD(params []*Parameter, config SGDConfig) *SGD {
	if config.LR == 0 {
		config.LR = 0.01
	}
	return &SGD{
		params:     params,
		lr:         config.LR,
		momentum:   config.Momentum,
		velocities: make(map[*Parameter][]float64),
	}
}

// Step performs a single optimization step.
func (s *SGD) Step() {
	for _, p := range s.params {
		grad := p.grad()
		values := p.Output()
		if s.momentum == 0 {
			for i, g := range grad {
				values.SetValue(i, values.Value(i)-s.lr*g)
			}
			continue
		}
		velocity, ok := s.velocities[p]
		if !ok {
			velocity = make([]float64, len(grad))
			s.velocities[p] = velocity
		}
		for i, g := range grad {
			velocity[i] = s.momentum*velocity[i] + g
			values.SetValue(i, values.Value(i)-s.lr*velocity[i])
		}
	}
}

// ZeroGrad clears gradients for all parameters.
func (s *SGD) ZeroGrad() { zeroGrads(s.params) }

// GetLR returns the current learning rate.
func (s *SGD) GetLR() float64 { return s.lr }

// SetLR updates the learning rate.
func (s *SGD) SetLR(lr float64) { s.lr = lr }
