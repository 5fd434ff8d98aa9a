package decode

import (
	"cmp"
	"math"
	"math/rand/v2"
	"slices"
)

// SamplingConfig configures how a state is drawn from a belief.
type SamplingConfig struct {
	// Temperature rescales log probabilities. 0 = argmax, 1 = the belief
	// itself, >1 = flatter.
	Temperature float64

	// TopK limits sampling to the K most probable states. 0 = disabled.
	TopK int

	// TopP (nucleus sampling) limits sampling to the most probable states
	// whose cumulative probability first exceeds P. 1.0 = disabled.
	TopP float64

	// MinP drops states with probability < max probability · MinP.
	// 0 = disabled.
	MinP float64

	// Seed of the sampler's random source.
	Seed uint64
}

// DefaultSamplingConfig samples from beliefs as they are.
func DefaultSamplingConfig() SamplingConfig {
	return SamplingConfig{Temperature: 1, TopP: 1}
}

// Sampler draws states from log probabilities.
type Sampler struct {
	config SamplingConfig
	rng    *rand.Rand
}

// NewSampler creates a sampler seeded with config.Seed.
func NewSampler(config SamplingConfig) *Sampler {
	return &Sampler{config: config, rng: rand.New(rand.NewPCG(config.Seed, 0x5851f42d4c957f2d))}
}

// Sample returns a state drawn from logProbs, which need not be normalized.
//
// The sampling process:
//  1. Apply temperature scaling (argmax if temperature = 0)
//  2. Apply Top-K filtering
//  3. Apply Top-P (nucleus) filtering
//  4. Apply Min-P filtering
//  5. Sample from the remaining distribution
func (s *Sampler) Sample(logProbs []float64) int {
	if s.config.Temperature == 0 {
		return argmax(logProbs)
	}
	logits := slices.Clone(logProbs)
	if s.config.Temperature != 1 {
		for i := range logits {
			logits[i] /= s.config.Temperature
		}
	}
	if s.config.TopK > 0 && s.config.TopK < len(logits) {
		s.topKFilter(logits)
	}
	if s.config.TopP > 0 && s.config.TopP < 1 {
		s.topPFilter(logits)
	}
	if s.config.MinP > 0 {
		s.minPFilter(logits)
	}
	return s.multinomial(softmax(logits))
}

// argmax returns the index of the largest value, the first on ties.
func argmax(values []float64) int {
	best := 0
	for i, v := range values[1:] {
		if v > values[best] {
			best = i + 1
		}
	}
	return best
}

// topKFilter keeps the K largest logits and sets the rest to -inf.
func (s *Sampler) topKFilter(logits []float64) {
	sorted := slices.Clone(logits)
	slices.SortFunc(sorted, func(a, b float64) int { return cmp.Compare(b, a) })
	threshold := sorted[s.config.TopK-1]
	for i := range logits {
		if logits[i] < threshold {
			logits[i] = math.Inf(-1)
		}
	}
}

// topPFilter implements nucleus sampling.
func (s *Sampler) topPFilter(logits []float64) {
	probs := softmax(logits)
	order := make([]int, len(probs))
	for i := range order {
		order[i] = i
	}
	slices.SortStableFunc(order, func(a, b int) int { return cmp.Compare(probs[b], probs[a]) })

	cutoff := len(order) - 1
	cumSum := 0.0
	for i, idx := range order {
		cumSum += probs[idx]
		if cumSum > s.config.TopP {
			cutoff = i
			break
		}
	}
	for _, idx := range order[cutoff+1:] {
		logits[idx] = math.Inf(-1)
	}
}

// minPFilter keeps states with prob >= max_prob · MinP.
func (s *Sampler) minPFilter(logits []float64) {
	probs := softmax(logits)
	threshold := slices.Max(probs) * s.config.MinP
	for i := range logits {
		if probs[i] < threshold {
			logits[i] = math.Inf(-1)
		}
	}
}

// multinomial samples from a categorical distribution.
func (s *Sampler) multinomial(probs []float64) int {
	r := s.rng.Float64()
	cumSum := 0.0
	for i, p := range probs {
		cumSum += p
		if r < cumSum {
			return i
		}
	}
	// Rounding: return the last state with mass.
	for i := len(probs) - 1; i > 0; i-- {
		if probs[i] > 0 {
			return i
		}
	}
	return 0
}

// softmax converts logits to probabilities.
func softmax(logits []float64) []float64 {
	maxVal := slices.Max(logits)
	probs := make([]float64, len(logits))
	if math.IsInf(maxVal, -1) {
		return probs
	}
	sum := 0.0
	for i, v := range logits {
		if !math.IsInf(v, -1) {
			probs[i] = math.Exp(v - maxVal)
			sum += probs[i]
		}
	}
	for i := range probs {
		probs[i] /= sum
	}
	return probs
}
