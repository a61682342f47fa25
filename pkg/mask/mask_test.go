package mask

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCausal_LowerTriangular(t *testing.T) {
	for seqLen := 0; seqLen <= 16; seqLen++ {
		c := NewCausal(seqLen)
		require.Equal(t, []int{seqLen, seqLen}, c.M.Shape)
		assert.Equal(t, seqLen*(seqLen+1)/2, c.Ones(), "L=%d", seqLen)

		for i := 0; i < seqLen; i++ {
			for j := 0; j < seqLen; j++ {
				want := j <= i
				assert.Equal(t, want, c.Allows(0, i, j))
				assert.Equal(t, want, c.M.Get([]int{i, j}) == 1)
			}
		}
	}
}

func TestCausal_SharedAcrossBatch(t *testing.T) {
	c := NewCausal(5)
	for b := 0; b < 8; b++ {
		for i := 0; i < 5; i++ {
			for j := 0; j < 5; j++ {
				assert.Equal(t, c.Allows(0, i, j), c.Allows(b, i, j))
			}
		}
	}
}

func TestCausal_OutsideWindow(t *testing.T) {
	c := NewCausal(3)
	assert.False(t, c.Allows(0, 3, 0))
	assert.False(t, c.Allows(0, 2, 3))
	assert.False(t, c.Allows(0, -1, -1))
	assert.False(t, c.Allows(0, 1, -1))
	assert.True(t, c.Allows(0, 2, 0))
}

func TestPadding(t *testing.T) {
	ids := [][]int{
		{5, 7, 0, 0},
		{0, 0, 0, 0},
		{3, 4, 9, 2},
	}
	p := NewPadding(ids, 0)

	assert.Equal(t, 4, p.KeyLen())
	assert.Equal(t, 3, p.Batch())
	assert.Equal(t, 2, p.Real(0))
	assert.Equal(t, 0, p.Real(1))
	assert.Equal(t, 4, p.Real(2))
	assert.Equal(t, []float32{1, 1, 0, 0}, p.Vector(0))
	assert.True(t, p.IsPad(0, 2))
	assert.False(t, p.IsPad(2, 3))

	// Padding ignores the query position.
	for i := 0; i < 4; i++ {
		assert.True(t, p.Allows(0, i, 1))
		assert.False(t, p.Allows(0, i, 3))
	}
	assert.False(t, p.Allows(7, 0, 0), "out-of-range batch row")
}

func TestPaddingFromLengths(t *testing.T) {
	p := NewPaddingFromLengths(4, []int{3, 0, 9})
	assert.Equal(t, []float32{1, 1, 1, 0}, p.Vector(0))
	assert.Equal(t, 0, p.Real(1))
	assert.Equal(t, 4, p.Real(2))
}

func TestDecoder_EffectiveMask(t *testing.T) {
	ids := [][]int{
		{1, 2, 3, 0},
		{4, 0, 0, 0},
	}
	const seqLen = 4
	c := NewCausal(seqLen)
	p := NewPadding(ids, 0)
	eff := Decoder(c, p)

	dense, err := Materialize(eff, len(ids), seqLen, seqLen)
	require.NoError(t, err)

	for b := range ids {
		for i := 0; i < seqLen; i++ {
			for j := 0; j < seqLen; j++ {
				want := float32(1)
				if j > i || ids[b][j] == 0 {
					want = 0
				}
				assert.Equal(t, want, dense.Get([]int{b, i, j}), "b=%d i=%d j=%d", b, i, j)
			}
		}
	}
}

func TestDecoder_PaddedLastColumn(t *testing.T) {
	// L=4 with P=[1,1,1,0].
	p := NewPaddingFromLengths(4, []int{3})
	dense, err := Materialize(Decoder(NewCausal(4), p), 1, 4, 4)
	require.NoError(t, err)

	for i := 0; i < 4; i++ {
		assert.Zero(t, dense.Get([]int{0, i, 3}), "last column row %d", i)
	}
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			want := float32(0)
			if j <= i {
				want = 1
			}
			assert.Equal(t, want, dense.Get([]int{0, i, j}))
		}
	}
}

func TestEncoder_Bidirectional(t *testing.T) {
	p := NewPaddingFromLengths(4, []int{3})
	m := Encoder(p)
	assert.True(t, m.Allows(0, 0, 2), "encoder queries see later keys")
	assert.True(t, m.Allows(0, 2, 0))
	assert.False(t, m.Allows(0, 0, 3))
	assert.Nil(t, Encoder(nil))
}

func TestAnd(t *testing.T) {
	assert.Nil(t, And())
	assert.Nil(t, And(nil, nil))

	c := NewCausal(3)
	assert.Same(t, c, And(nil, c))

	both := And(c, NewPaddingFromLengths(3, []int{2}))
	assert.True(t, both.Allows(0, 2, 1))
	assert.False(t, both.Allows(0, 2, 2))
	assert.False(t, both.Allows(0, 0, 1))
}

func TestBias(t *testing.T) {
	bias, err := Bias(NewCausal(2), 1, 2, 2)
	require.NoError(t, err)
	assert.Equal(t, []float32{0, NegInf, 0, 0}, bias.Data)
}

func TestMaterialize_KeyLengthCheck(t *testing.T) {
	_, err := Materialize(NewCausal(3), 1, 4, 4)
	assert.True(t, errors.Is(err, ErrShape))

	_, err = Materialize(Decoder(NewCausal(4), NewPaddingFromLengths(2, []int{2})), 1, 4, 4)
	assert.ErrorIs(t, err, ErrShape)

	dense, err := Materialize(nil, 1, 2, 3)
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 1, 1, 1, 1, 1}, dense.Data)
}

func TestDegenerateRows(t *testing.T) {
	p := NewPadding([][]int{{1, 2, 0}, {0, 0, 0}}, 0)

	assert.Empty(t, DegenerateRows(Decoder(NewCausal(3), p), 1, 3, 3),
		"a real first token keeps every causal row non-empty")

	rows := DegenerateRows(Encoder(p), 2, 3, 3)
	assert.Equal(t, []RowRef{{1, 0}, {1, 1}, {1, 2}}, rows)

	// Leading padding leaves causal row 0 with nothing to see.
	lead := NewPadding([][]int{{0, 5, 6}}, 0)
	assert.Equal(t, []RowRef{{0, 0}}, DegenerateRows(Decoder(NewCausal(3), lead), 1, 3, 3))
}

func TestRow(t *testing.T) {
	allowed := make([]bool, 4)
	Row(Decoder(NewCausal(4), NewPaddingFromLengths(4, []int{3})), 0, 3, allowed)
	assert.Equal(t, []bool{true, true, true, false}, allowed)

	Row(nil, 0, 0, allowed)
	assert.Equal(t, []bool{true, true, true, true}, allowed)
}

func BenchmarkMaterializeDecoder(b *testing.B) {
	lengths := make([]int, 32)
	for i := range lengths {
		lengths[i] = 10 + i
	}
	c := NewCausal(64)
	p := NewPaddingFromLengths(64, lengths)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := Materialize(Decoder(c, p), len(lengths), 64, 64); err != nil {
			b.Fatal(err)
		}
	}
}
