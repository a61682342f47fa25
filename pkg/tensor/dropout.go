package tensor

import (
	"math/rand"
	"sync"
	"time"
)

var (
	dropoutMu   sync.Mutex
	dropoutRand = rand.New(rand.NewSource(time.Now().UnixNano()))
)

// SetDropoutSeed reseeds the package-level dropout source. Commands call it
// with the configured seed so training runs are reproducible.
func SetDropoutSeed(seed int64) {
	dropoutMu.Lock()
	dropoutRand = rand.New(rand.NewSource(seed))
	dropoutMu.Unlock()
}

// Dropout randomly zeros out elements with probability p during training and
// scales the survivors by 1/(1-p) (inverted dropout).
//
// Parameters:
//   - p: dropout probability in [0, 1)
//   - training: if true, apply dropout; if false, return a copy of the input
//
// Returns:
//   - A new tensor of the same shape
//
// Panics if p is outside [0, 1) while training.
func (t *Tensor) Dropout(p float32, training bool) *Tensor {
	if !training || p == 0 {
		return t.Clone()
	}
	if p < 0 || p >= 1 {
		panic("dropout probability must be in [0, 1)")
	}

	result := NewTensor(t.Shape)
	scale := 1 / (1 - p)

	dropoutMu.Lock()
	defer dropoutMu.Unlock()
	for i, x := range t.Data {
		if dropoutRand.Float32() >= p {
			result.Data[i] = x * scale
		}
	}
	return result
}
