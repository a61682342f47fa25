// Package mask builds the attention-visibility policies used by the encoder
// and decoder blocks.
//
// A Mask answers one question: may query position i of batch row b attend to
// key position j? Masks are derived per forward pass and keep no state
// between calls. They compose by logical AND:
//
//	encoder self-attention:  Encoder(P)      effective[b,i,j] = P[b,j]
//	decoder self-attention:  Decoder(C, P)   effective[b,i,j] = min(C[i,j], P[b,j])
//	cross-attention:         Encoder(P_src)
//
// Masks are evaluated lazily, so a single causal matrix serves every batch
// row without being copied.
package mask

import (
	"errors"
	"fmt"

	"seqattn/pkg/tensor"
)

// NegInf is the additive bias given to masked score entries by Bias.
const NegInf = -1e9

var (
	// ErrShape is returned when a mask is asked for dimensions it cannot cover.
	ErrShape = errors.New("mask shape mismatch")
)

// Mask reports whether query i of batch row b may attend to key j.
type Mask interface {
	Allows(b, i, j int) bool
}

// Sized is implemented by masks that know their own key length.
type Sized interface {
	Mask
	KeyLen() int
}

// all is the logical AND of several masks.
type all []Mask

func (a all) Allows(b, i, j int) bool {
	for _, m := range a {
		if !m.Allows(b, i, j) {
			return false
		}
	}
	return true
}

// And composes masks by logical AND. Nil entries are skipped; with no
// remaining masks the result is nil, which attention treats as "attend everywhere".
func And(masks ...Mask) Mask {
	out := make(all, 0, len(masks))
	for _, m := range masks {
		if m != nil {
			out = append(out, m)
		}
	}
	switch len(out) {
	case 0:
		return nil
	case 1:
		return out[0]
	}
	return out
}

// Encoder returns the non-causal self-attention policy: only padding restricts
// visibility, in either direction.
func Encoder(p *Padding) Mask {
	if p == nil {
		return nil
	}
	return p
}

// Decoder returns the causal self-attention policy combined with the key
// padding of the decoder input.
func Decoder(c *Causal, p *Padding) Mask {
	if p == nil {
		return c
	}
	return And(c, p)
}

// Row fills allowed with the visibility of every key for query (b, i).
func Row(m Mask, b, i int, allowed []bool) {
	for j := range allowed {
		allowed[j] = m == nil || m.Allows(b, i, j)
	}
}

// Materialize evaluates m into a dense (batch, lq, lk) 0/1 tensor.
func Materialize(m Mask, batch, lq, lk int) (*tensor.Tensor, error) {
	if err := checkKeys(m, lk); err != nil {
		return nil, err
	}
	out := tensor.NewTensor([]int{batch, lq, lk})
	for b := 0; b < batch; b++ {
		for i := 0; i < lq; i++ {
			row := out.Row(b, i)
			for j := range row {
				if m == nil || m.Allows(b, i, j) {
					row[j] = 1
				}
			}
		}
	}
	return out, nil
}

// Bias evaluates m into the additive (batch, lq, lk) form used before a
// softmax: 0 where attention is allowed and NegInf where it is not.
func Bias(m Mask, batch, lq, lk int) (*tensor.Tensor, error) {
	dense, err := Materialize(m, batch, lq, lk)
	if err != nil {
		return nil, err
	}
	for i, v := range dense.Data {
		if v == 0 {
			dense.Data[i] = NegInf
		} else {
			dense.Data[i] = 0
		}
	}
	return dense, nil
}

// RowRef identifies a query row of a batch.
type RowRef struct {
	Batch, Query int
}

// DegenerateRows lists the query rows that cannot see any key. Attention
// yields a zero vector for those rows.
func DegenerateRows(m Mask, batch, lq, lk int) []RowRef {
	var rows []RowRef
	for b := 0; b < batch; b++ {
		for i := 0; i < lq; i++ {
			visible := false
			for j := 0; j < lk && !visible; j++ {
				visible = m == nil || m.Allows(b, i, j)
			}
			if !visible {
				rows = append(rows, RowRef{Batch: b, Query: i})
			}
		}
	}
	return rows
}

func checkKeys(m Mask, lk int) error {
	switch v := m.(type) {
	case Sized:
		if v.KeyLen() < lk {
			return fmt.Errorf("%w: mask covers %d keys, need %d", ErrShape, v.KeyLen(), lk)
		}
	case all:
		for _, inner := range v {
			if err := checkKeys(inner, lk); err != nil {
				return err
			}
		}
	}
	return nil
}

// Check validates that m covers lk keys.
func Check(m Mask, lk int) error {
	return checkKeys(m, lk)
}
