package tensor

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTensor(t *testing.T) {
	tests := []struct {
		name     string
		shape    []int
		expected int
	}{
		{"1D", []int{5}, 5},
		{"2D", []int{3, 4}, 12},
		{"3D", []int{2, 3, 4}, 24},
		{"empty", []int{0, 4}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tensor := NewTensor(tt.shape)
			assert.Equal(t, tt.shape, tensor.Shape)
			assert.Len(t, tensor.Data, tt.expected)
			for _, v := range tensor.Data {
				assert.Zero(t, v)
			}
		})
	}
}

func TestFromSlice(t *testing.T) {
	tests := []struct {
		name      string
		data      []float32
		shape     []int
		errString string
	}{
		{name: "valid 2D", data: []float32{1, 2, 3, 4, 5, 6}, shape: []int{2, 3}},
		{name: "valid 3D", data: []float32{1, 2, 3, 4, 5, 6, 7, 8}, shape: []int{2, 2, 2}},
		{name: "size mismatch", data: []float32{1, 2, 3}, shape: []int{2, 3}, errString: "data size 3 does not match shape"},
		{name: "negative dimension", data: []float32{1, 2, 3, 4}, shape: []int{2, -2}, errString: "invalid dimension"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tensor, err := FromSlice(tt.data, tt.shape)
			if tt.errString != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errString)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.shape, tensor.Shape)
			assert.Equal(t, tt.data, tensor.Data)

			tt.data[0] = 99
			assert.NotEqual(t, float32(99), tensor.Data[0], "FromSlice must copy")
		})
	}
}

func TestViewSharesData(t *testing.T) {
	x, err := FromSlice([]float32{1, 2, 3, 4, 5, 6}, []int{2, 3})
	require.NoError(t, err)

	v, err := x.View([]int{3, 2})
	require.NoError(t, err)
	assert.Equal(t, []int{2, 1}, v.Strides)

	v.Set([]int{2, 1}, 42)
	assert.Equal(t, float32(42), x.Get([]int{1, 2}))

	_, err = x.View([]int{4, 2})
	assert.Error(t, err)
}

func TestTranspose(t *testing.T) {
	x, err := FromSlice([]float32{1, 2, 3, 4, 5, 6}, []int{2, 3})
	require.NoError(t, err)

	xt, err := x.Transpose(0, 1)
	require.NoError(t, err)
	assert.Equal(t, []int{3, 2}, xt.Shape)
	assert.Equal(t, []float32{1, 4, 2, 5, 3, 6}, xt.Data)

	// (1, 2, 2, 2) swapping dims 1 and 2, as done when splitting heads.
	y, err := FromSlice([]float32{0, 1, 2, 3, 4, 5, 6, 7}, []int{1, 2, 2, 2})
	require.NoError(t, err)
	yt, err := y.Transpose(1, 2)
	require.NoError(t, err)
	for i := 0; i < 2; i++ {
		for j := 0; j < 2; j++ {
			for k := 0; k < 2; k++ {
				assert.Equal(t, y.Get([]int{0, i, j, k}), yt.Get([]int{0, j, i, k}))
			}
		}
	}

	_, err = x.Transpose(0, 2)
	assert.Error(t, err)
}

func TestMatmul(t *testing.T) {
	t.Run("2D", func(t *testing.T) {
		a, _ := FromSlice([]float32{1, 2, 3, 4, 5, 6}, []int{2, 3})
		b, _ := FromSlice([]float32{7, 8, 9, 10, 11, 12}, []int{3, 2})
		c, err := Matmul(a, b)
		require.NoError(t, err)
		assert.Equal(t, []int{2, 2}, c.Shape)
		assert.Equal(t, []float32{58, 64, 139, 154}, c.Data)
	})

	t.Run("batched", func(t *testing.T) {
		a, _ := FromSlice([]float32{1, 0, 0, 1, 2, 0, 0, 2}, []int{2, 2, 2})
		b, _ := FromSlice([]float32{1, 2, 3, 4, 1, 2, 3, 4}, []int{2, 2, 2})
		c, err := Matmul(a, b)
		require.NoError(t, err)
		assert.Equal(t, []float32{1, 2, 3, 4, 2, 4, 6, 8}, c.Data)
	})

	t.Run("broadcast right operand", func(t *testing.T) {
		a, _ := FromSlice([]float32{1, 2, 3, 4}, []int{2, 1, 2})
		w, _ := FromSlice([]float32{1, 1, 0, 1}, []int{2, 2})
		c, err := Matmul(a, w)
		require.NoError(t, err)
		assert.Equal(t, []int{2, 1, 2}, c.Shape)
		assert.Equal(t, []float32{1, 3, 3, 7}, c.Data)
	})

	t.Run("inner mismatch", func(t *testing.T) {
		_, err := Matmul(NewTensor([]int{2, 3}), NewTensor([]int{2, 3}))
		assert.Error(t, err)
	})

	t.Run("rank too low", func(t *testing.T) {
		_, err := Matmul(NewTensor([]int{3}), NewTensor([]int{3, 1}))
		assert.Error(t, err)
	})
}

func TestMatmulTransB(t *testing.T) {
	a, _ := FromSlice([]float32{1, 2, 3, 4, 5, 6}, []int{1, 2, 3})
	b, _ := FromSlice([]float32{1, 0, 0, 0, 1, 0}, []int{1, 2, 3})

	c, err := MatmulTransB(a, b)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 2}, c.Shape)
	assert.Equal(t, []float32{1, 2, 4, 5}, c.Data)

	bt, err := b.Transpose(1, 2)
	require.NoError(t, err)
	ref, err := Matmul(a, bt)
	require.NoError(t, err)
	assert.True(t, ref.Equals(c, 1e-6))
}

func TestAdd(t *testing.T) {
	a, _ := FromSlice([]float32{1, 2, 3, 4}, []int{2, 2})
	b, _ := FromSlice([]float32{10, 20, 30, 40}, []int{2, 2})
	sum, err := Add(a, b)
	require.NoError(t, err)
	assert.Equal(t, []float32{11, 22, 33, 44}, sum.Data)
	assert.Equal(t, []float32{1, 2, 3, 4}, a.Data, "Add must not modify its operands")

	row, _ := FromSlice([]float32{100, 200}, []int{2})
	bc, err := Add(a, row)
	require.NoError(t, err)
	assert.Equal(t, []float32{101, 202, 103, 204}, bc.Data)

	_, err = Add(a, NewTensor([]int{3}))
	assert.Error(t, err)
}

func TestSoftmax(t *testing.T) {
	x, _ := FromSlice([]float32{1, 2, 3, 1, 1, 1}, []int{2, 3})

	s, err := Softmax(x, 1)
	require.NoError(t, err)
	for r := 0; r < 2; r++ {
		var sum float32
		for _, v := range s.Row(r) {
			sum += v
		}
		assert.InDelta(t, 1.0, sum, 1e-6)
	}
	assert.InDelta(t, 1.0/3.0, s.Get([]int{1, 0}), 1e-6)
	assert.Greater(t, s.Get([]int{0, 2}), s.Get([]int{0, 1}))

	cols, err := Softmax(x, 0)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, cols.Get([]int{0, 0}), 1e-6)
	assert.InDelta(t, 1.0, cols.Get([]int{0, 1})+cols.Get([]int{1, 1}), 1e-6)

	_, err = Softmax(x, 2)
	assert.Error(t, err)
}

func TestSoftmaxNumericalStability(t *testing.T) {
	x, _ := FromSlice([]float32{1000, 1001, 1002}, []int{3})
	s := SoftmaxLast(x)
	for _, v := range s.Data {
		assert.False(t, math.IsNaN(float64(v)))
		assert.False(t, math.IsInf(float64(v), 0))
	}
}

func TestMaskedSoftmax(t *testing.T) {
	tests := []struct {
		name    string
		scores  []float32
		allowed []bool
		want    []float32
	}{
		{
			name:    "masked positions get zero weight",
			scores:  []float32{5, 0, 0, 5},
			allowed: []bool{false, true, true, false},
			want:    []float32{0, 0.5, 0.5, 0},
		},
		{
			name:    "single visible key",
			scores:  []float32{-3, 7},
			allowed: []bool{true, false},
			want:    []float32{1, 0},
		},
		{
			name:    "no visible key yields zero row",
			scores:  []float32{1, 2, 3},
			allowed: []bool{false, false, false},
			want:    []float32{0, 0, 0},
		},
		{
			name:   "nil mask is plain softmax",
			scores: []float32{0, 0},
			want:   []float32{0.5, 0.5},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dst := make([]float32, len(tt.scores))
			MaskedSoftmax(tt.scores, tt.allowed, dst)
			assert.InDeltaSlice(t, tt.want, dst, 1e-6)
		})
	}
}

func TestScale(t *testing.T) {
	x, _ := FromSlice([]float32{1, -2, 3}, []int{3})
	y := x.Scale(0.5)
	assert.Equal(t, []float32{0.5, -1, 1.5}, y.Data)
	assert.Equal(t, []float32{1, -2, 3}, x.Data)
}

func TestRowAliasesData(t *testing.T) {
	x := NewTensor([]int{2, 3, 4})
	row := x.Row(1, 2)
	require.Len(t, row, 4)
	row[3] = 7
	assert.Equal(t, float32(7), x.Get([]int{1, 2, 3}))
	assert.Panics(t, func() { x.Row(2, 0) })
}

func TestArgmax(t *testing.T) {
	assert.Equal(t, 2, Argmax([]float32{0.1, 0.3, 0.5, 0.2}))
	assert.Equal(t, 0, Argmax([]float32{1, 1, 1}))
}

func TestString(t *testing.T) {
	x, _ := FromSlice([]float32{1, 2, 3, 4}, []int{2, 2})
	assert.Equal(t, "Tensor[2, 2]: [[1, 2], [3, 4]]", x.String())
}

func BenchmarkMatmul(b *testing.B) {
	x := NewTensor([]int{8, 64, 128})
	w := NewTensor([]int{128, 128})
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := Matmul(x, w); err != nil {
			b.Fatal(err)
		}
	}
}

func TestIndexIsView(t *testing.T) {
	x, _ := FromSlice([]float32{1, 2, 3, 4, 5, 6}, []int{3, 2})
	second := x.Index(1)
	assert.Equal(t, []int{2}, second.Shape)
	assert.Equal(t, []float32{3, 4}, second.Data)

	second.Data[0] = 30
	assert.Equal(t, float32(30), x.Get([]int{1, 0}))
	assert.Panics(t, func() { x.Index(3) })
}
