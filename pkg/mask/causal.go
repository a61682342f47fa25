package mask

import "seqattn/pkg/tensor"

// Causal is the lower-triangular L×L visibility matrix: query i sees keys j ≤ i.
// One instance is shared by every batch row.
type Causal struct {
	L int
	M *tensor.Tensor // (L, L), 1 where j <= i
}

// NewCausal builds the causal mask for sequences of length seqLen.
func NewCausal(seqLen int) *Causal {
	m := tensor.NewTensor([]int{seqLen, seqLen})
	for i := 0; i < seqLen; i++ {
		for j := 0; j <= i; j++ {
			m.Set([]int{i, j}, 1)
		}
	}
	return &Causal{L: seqLen, M: m}
}

// Allows ignores the batch row. Positions outside the L×L window are hidden.
func (c *Causal) Allows(_, i, j int) bool {
	if i < 0 || j < 0 || i >= c.L || j >= c.L {
		return false
	}
	return c.M.Get([]int{i, j}) != 0
}

// KeyLen implements Sized.
func (c *Causal) KeyLen() int { return c.L }

// Ones counts the visible entries, L*(L+1)/2.
func (c *Causal) Ones() int {
	n := 0
	for _, v := range c.M.Data {
		if v != 0 {
			n++
		}
	}
	return n
}
