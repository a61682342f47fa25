package mask

import (
	"github.com/RoaringBitmap/roaring"
)

// Padding is the key-side padding mask of a batch. Row b holds the positions
// of real (non-padding) tokens of that batch row.
type Padding struct {
	L    int
	rows []*roaring.Bitmap
}

// NewPadding derives the padding mask from token ids: a position is real
// unless its id equals padID. Rows shorter than the longest row are treated
// as padded at the end.
func NewPadding(ids [][]int, padID int) *Padding {
	p := &Padding{rows: make([]*roaring.Bitmap, len(ids))}
	for b, seq := range ids {
		p.L = max(p.L, len(seq))
		bm := roaring.New()
		for j, id := range seq {
			if id != padID {
				bm.Add(uint32(j))
			}
		}
		p.rows[b] = bm
	}
	return p
}

// NewPaddingFromLengths marks the first lengths[b] positions of each row as real.
func NewPaddingFromLengths(seqLen int, lengths []int) *Padding {
	p := &Padding{L: seqLen, rows: make([]*roaring.Bitmap, len(lengths))}
	for b, n := range lengths {
		bm := roaring.New()
		if n > 0 {
			bm.AddRange(0, uint64(min(n, seqLen)))
		}
		p.rows[b] = bm
	}
	return p
}

// Allows ignores the query position: padding only restricts keys.
func (p *Padding) Allows(b, _, j int) bool {
	if b < 0 || b >= len(p.rows) || j < 0 {
		return false
	}
	return p.rows[b].Contains(uint32(j))
}

// KeyLen implements Sized.
func (p *Padding) KeyLen() int { return p.L }

// Batch returns the number of rows.
func (p *Padding) Batch() int { return len(p.rows) }

// IsPad reports whether position j of row b is padding.
func (p *Padding) IsPad(b, j int) bool {
	return !p.Allows(b, 0, j)
}

// Real returns the number of real tokens in row b.
func (p *Padding) Real(b int) int {
	return int(p.rows[b].GetCardinality())
}

// Vector returns row b as a 0/1 slice of length L.
func (p *Padding) Vector(b int) []float32 {
	v := make([]float32, p.L)
	it := p.rows[b].Iterator()
	for it.HasNext() {
		j := int(it.Next())
		if j < p.L {
			v[j] = 1
		}
	}
	return v
}
