// Package tensor provides the dense tensor type and the numeric kernels used by
// the attention and embedding code.
//
// Data is float32 in a flat row-major slice. Matrix products and vector
// updates are delegated to gonum's blas32 implementation.
package tensor

import (
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas32"
)

// Tensor represents a multi-dimensional array of float32 values.
// It stores data in a flat slice with shape information for indexing.
type Tensor struct {
	Data    []float32 // Flattened data storage
	Shape   []int     // Dimensions (e.g., [batch, seq, dim])
	Strides []int     // Precomputed strides for indexing
}

// NewTensor creates a new tensor with the given shape, initialized to zeros.
func NewTensor(shape []int) *Tensor {
	size := 1
	for _, dim := range shape {
		size *= dim
	}
	return &Tensor{
		Data:    make([]float32, size),
		Shape:   copyShape(shape),
		Strides: stridesFor(shape),
	}
}

// FromSlice creates a tensor from existing data with the given shape.
// The data is copied. Returns an error if data size doesn't match the shape.
func FromSlice(data []float32, shape []int) (*Tensor, error) {
	expectedSize := 1
	for _, dim := range shape {
		if dim < 0 {
			return nil, fmt.Errorf("invalid dimension %d in shape %v", dim, shape)
		}
		expectedSize *= dim
	}
	if len(data) != expectedSize {
		return nil, fmt.Errorf("data size %d does not match shape %v (expected %d elements)",
			len(data), shape, expectedSize)
	}

	dataCopy := make([]float32, len(data))
	copy(dataCopy, data)

	return &Tensor{
		Data:    dataCopy,
		Shape:   copyShape(shape),
		Strides: stridesFor(shape),
	}, nil
}

// View returns a new tensor with a different shape sharing the same underlying data.
func (t *Tensor) View(newShape []int) (*Tensor, error) {
	newSize := 1
	for _, dim := range newShape {
		if dim < 0 {
			return nil, fmt.Errorf("invalid dimension %d in shape %v", dim, newShape)
		}
		newSize *= dim
	}
	if newSize != len(t.Data) {
		return nil, fmt.Errorf("cannot view tensor of size %d as shape %v (total size %d)",
			len(t.Data), newShape, newSize)
	}
	return &Tensor{
		Data:    t.Data,
		Shape:   copyShape(newShape),
		Strides: stridesFor(newShape),
	}, nil
}

// Reshape is View that panics on a size mismatch.
func (t *Tensor) Reshape(newShape []int) *Tensor {
	result, err := t.View(newShape)
	if err != nil {
		panic(err)
	}
	return result
}

// Transpose exchanges two dimensions of the tensor, returning a contiguous copy.
func (t *Tensor) Transpose(dim1, dim2 int) (*Tensor, error) {
	if dim1 < 0 || dim1 >= len(t.Shape) || dim2 < 0 || dim2 >= len(t.Shape) {
		return nil, fmt.Errorf("invalid transpose dimensions %d and %d for tensor with %d dimensions",
			dim1, dim2, len(t.Shape))
	}
	if dim1 == dim2 {
		return t.Clone(), nil
	}

	newShape := copyShape(t.Shape)
	newShape[dim1], newShape[dim2] = newShape[dim2], newShape[dim1]
	result := NewTensor(newShape)

	srcIndices := make([]int, len(t.Shape))
	for flat := range t.Data {
		rem := flat
		for i := range t.Shape {
			srcIndices[i] = rem / t.Strides[i]
			rem %= t.Strides[i]
		}
		dstIdx := 0
		for i := range newShape {
			src := i
			switch i {
			case dim1:
				src = dim2
			case dim2:
				src = dim1
			}
			dstIdx += srcIndices[src] * result.Strides[i]
		}
		result.Data[dstIdx] = t.Data[flat]
	}

	return result, nil
}

// Size returns the total number of elements in the tensor.
func (t *Tensor) Size() int {
	return len(t.Data)
}

// NumDims returns the number of dimensions (rank) of the tensor.
func (t *Tensor) NumDims() int {
	return len(t.Shape)
}

// FlatIndex converts multi-dimensional indices to a flat index.
func (t *Tensor) FlatIndex(indices []int) int {
	if len(indices) != len(t.Shape) {
		panic(fmt.Sprintf("indices length %d does not match shape dimensions %d",
			len(indices), len(t.Shape)))
	}

	idx := 0
	for i := 0; i < len(t.Shape); i++ {
		if indices[i] < 0 || indices[i] >= t.Shape[i] {
			panic(fmt.Sprintf("index %d out of bounds for dimension %d with size %d",
				indices[i], i, t.Shape[i]))
		}
		idx += indices[i] * t.Strides[i]
	}
	return idx
}

// Get retrieves a value at the specified indices.
func (t *Tensor) Get(indices []int) float32 {
	return t.Data[t.FlatIndex(indices)]
}

// Set sets a value at the specified indices.
func (t *Tensor) Set(indices []int, value float32) {
	t.Data[t.FlatIndex(indices)] = value
}

// Row returns the contiguous slice holding the last dimension at the given
// leading indices. The slice aliases the tensor data.
func (t *Tensor) Row(leading ...int) []float32 {
	if len(leading) != len(t.Shape)-1 {
		panic(fmt.Sprintf("row needs %d leading indices, got %d", len(t.Shape)-1, len(leading)))
	}
	off := 0
	for i, idx := range leading {
		if idx < 0 || idx >= t.Shape[i] {
			panic(fmt.Sprintf("index %d out of bounds for dimension %d with size %d", idx, i, t.Shape[i]))
		}
		off += idx * t.Strides[i]
	}
	last := t.Shape[len(t.Shape)-1]
	return t.Data[off : off+last]
}

// Index returns a view of the sub-tensor at position i of the leading
// dimension. The view shares data with t.
func (t *Tensor) Index(i int) *Tensor {
	if len(t.Shape) == 0 {
		panic("cannot index a scalar tensor")
	}
	if i < 0 || i >= t.Shape[0] {
		panic(fmt.Sprintf("index %d out of bounds for dimension 0 with size %d", i, t.Shape[0]))
	}
	inner := t.Shape[1:]
	size := 1
	for _, d := range inner {
		size *= d
	}
	return &Tensor{
		Data:    t.Data[i*size : (i+1)*size],
		Shape:   copyShape(inner),
		Strides: stridesFor(inner),
	}
}

// Clone creates a deep copy of the tensor.
func (t *Tensor) Clone() *Tensor {
	dataCopy := make([]float32, len(t.Data))
	copy(dataCopy, t.Data)
	return &Tensor{
		Data:    dataCopy,
		Shape:   copyShape(t.Shape),
		Strides: stridesFor(t.Shape),
	}
}

// Equals checks if two tensors have the same shape and approximately equal values.
func (t *Tensor) Equals(other *Tensor, tolerance float32) bool {
	if !t.ShapeEquals(other) {
		return false
	}
	for i := range t.Data {
		if math.Abs(float64(t.Data[i]-other.Data[i])) > float64(tolerance) {
			return false
		}
	}
	return true
}

// ShapeEquals checks if two tensors have the same shape.
func (t *Tensor) ShapeEquals(other *Tensor) bool {
	if len(t.Shape) != len(other.Shape) {
		return false
	}
	for i := range t.Shape {
		if t.Shape[i] != other.Shape[i] {
			return false
		}
	}
	return true
}

// Matmul performs matrix multiplication on the last two dimensions.
// For tensors of shape (..., m, n) and (..., n, p), returns (..., m, p).
// A 2D right operand is broadcast over the leading dimensions of the left one.
func Matmul(a, b *Tensor) (*Tensor, error) {
	if len(a.Shape) < 2 || len(b.Shape) < 2 {
		return nil, fmt.Errorf("matmul requires at least 2D tensors, got %dD and %dD",
			len(a.Shape), len(b.Shape))
	}

	m := a.Shape[len(a.Shape)-2]
	n := a.Shape[len(a.Shape)-1]
	if b.Shape[len(b.Shape)-2] != n {
		return nil, fmt.Errorf("incompatible shapes for matmul: %v and %v (inner dimensions %d and %d don't match)",
			a.Shape, b.Shape, n, b.Shape[len(b.Shape)-2])
	}
	p := b.Shape[len(b.Shape)-1]

	batchDims := a.Shape[:len(a.Shape)-2]
	batchSize := 1
	for _, dim := range batchDims {
		batchSize *= dim
	}

	broadcastB := len(b.Shape) == 2
	if !broadcastB {
		bBatch := b.Shape[:len(b.Shape)-2]
		if len(bBatch) != len(batchDims) {
			return nil, fmt.Errorf("incompatible batch dimensions for matmul: %v and %v", a.Shape, b.Shape)
		}
		for i := range bBatch {
			if bBatch[i] != batchDims[i] {
				return nil, fmt.Errorf("incompatible batch dimensions for matmul: %v and %v", a.Shape, b.Shape)
			}
		}
	}

	resultShape := append(copyShape(batchDims), m, p)
	result := NewTensor(resultShape)
	if m == 0 || n == 0 || p == 0 {
		return result, nil
	}

	for batch := 0; batch < batchSize; batch++ {
		bOffset := 0
		if !broadcastB {
			bOffset = batch * n * p
		}
		gemm(blas.NoTrans,
			a.Data[batch*m*n:(batch+1)*m*n], m, n,
			b.Data[bOffset:bOffset+n*p], n, p,
			result.Data[batch*m*p:(batch+1)*m*p])
	}

	return result, nil
}

// MatmulTransB computes a @ b^T on the last two dimensions without
// materializing the transpose: (..., m, n) x (..., p, n) -> (..., m, p).
func MatmulTransB(a, b *Tensor) (*Tensor, error) {
	if len(a.Shape) < 2 || len(b.Shape) != len(a.Shape) {
		return nil, fmt.Errorf("matmul_t requires matching ranks of at least 2, got %v and %v", a.Shape, b.Shape)
	}
	r := len(a.Shape)
	for i := 0; i < r-2; i++ {
		if a.Shape[i] != b.Shape[i] {
			return nil, fmt.Errorf("incompatible batch dimensions for matmul_t: %v and %v", a.Shape, b.Shape)
		}
	}
	m, n := a.Shape[r-2], a.Shape[r-1]
	p := b.Shape[r-2]
	if b.Shape[r-1] != n {
		return nil, fmt.Errorf("incompatible shapes for matmul_t: %v and %v", a.Shape, b.Shape)
	}

	batchSize := 1
	for _, dim := range a.Shape[:r-2] {
		batchSize *= dim
	}
	result := NewTensor(append(copyShape(a.Shape[:r-2]), m, p))
	if m == 0 || n == 0 || p == 0 {
		return result, nil
	}
	for batch := 0; batch < batchSize; batch++ {
		gemm(blas.Trans,
			a.Data[batch*m*n:(batch+1)*m*n], m, n,
			b.Data[batch*p*n:(batch+1)*p*n], p, n,
			result.Data[batch*m*p:(batch+1)*m*p])
	}
	return result, nil
}

// gemm writes A(m×k) @ op(B) into c. With tB == blas.Trans, B is stored as (p×k).
func gemm(tB blas.Transpose, a []float32, m, k int, b []float32, bRows, bCols int, c []float32) {
	p := bCols
	if tB == blas.Trans {
		p = bRows
	}
	blas32.Gemm(blas.NoTrans, tB, 1,
		blas32.General{Rows: m, Cols: k, Stride: k, Data: a},
		blas32.General{Rows: bRows, Cols: bCols, Stride: bCols, Data: b},
		0,
		blas32.General{Rows: m, Cols: p, Stride: p, Data: c})
}

// Scale multiplies all elements by a scalar, returning a new tensor.
func Scale(t *Tensor, scalar float32) *Tensor {
	result := t.Clone()
	if len(result.Data) > 0 {
		blas32.Scal(scalar, blas32.Vector{N: len(result.Data), Data: result.Data, Inc: 1})
	}
	return result
}

// Scale multiplies all elements by a scalar (method form).
func (t *Tensor) Scale(s float32) *Tensor {
	return Scale(t, s)
}

// Add performs element-wise addition with broadcasting.
func Add(a, b *Tensor) (*Tensor, error) {
	if a.ShapeEquals(b) {
		result := a.Clone()
		if len(result.Data) > 0 {
			blas32.Axpy(1,
				blas32.Vector{N: len(b.Data), Data: b.Data, Inc: 1},
				blas32.Vector{N: len(result.Data), Data: result.Data, Inc: 1})
		}
		return result, nil
	}
	return elementWiseOp(a, b, func(x, y float32) float32 { return x + y })
}

func elementWiseOp(a, b *Tensor, op func(float32, float32) float32) (*Tensor, error) {
	outShape, err := broadcastShapes(a.Shape, b.Shape)
	if err != nil {
		return nil, fmt.Errorf("cannot broadcast shapes %v and %v: %w", a.Shape, b.Shape, err)
	}

	result := NewTensor(outShape)
	indices := make([]int, len(outShape))
	for flat := range result.Data {
		rem := flat
		for i := range outShape {
			indices[i] = rem / result.Strides[i]
			rem %= result.Strides[i]
		}
		result.Data[flat] = op(a.Data[broadcastIndex(indices, outShape, a)],
			b.Data[broadcastIndex(indices, outShape, b)])
	}
	return result, nil
}

func broadcastShapes(a, b []int) ([]int, error) {
	maxLen := max(len(a), len(b))
	result := make([]int, maxLen)

	for i := 0; i < maxLen; i++ {
		dimA := 1
		if i < len(a) {
			dimA = a[len(a)-1-i]
		}
		dimB := 1
		if i < len(b) {
			dimB = b[len(b)-1-i]
		}
		if dimA != dimB && dimA != 1 && dimB != 1 {
			return nil, fmt.Errorf("incompatible dimensions %d and %d", dimA, dimB)
		}
		result[maxLen-1-i] = max(dimA, dimB)
	}
	return result, nil
}

// broadcastIndex maps an output position to the flat index of a broadcast operand.
func broadcastIndex(outIndices, outShape []int, in *Tensor) int {
	diff := len(outShape) - len(in.Shape)
	idx := 0
	for i := range in.Shape {
		if in.Shape[i] != 1 {
			idx += outIndices[i+diff] * in.Strides[i]
		}
	}
	return idx
}

// Softmax applies softmax along the specified dimension.
func Softmax(t *Tensor, dim int) (*Tensor, error) {
	if dim < 0 || dim >= len(t.Shape) {
		return nil, fmt.Errorf("invalid dimension %d for tensor with %d dimensions", dim, len(t.Shape))
	}

	moved := t
	last := len(t.Shape) - 1
	if dim != last {
		var err error
		moved, err = t.Transpose(dim, last)
		if err != nil {
			return nil, err
		}
	}

	result := NewTensor(moved.Shape)
	width := moved.Shape[last]
	if width > 0 {
		for off := 0; off < len(moved.Data); off += width {
			MaskedSoftmax(moved.Data[off:off+width], nil, result.Data[off:off+width])
		}
	}

	if dim != last {
		return result.Transpose(dim, last)
	}
	return result, nil
}

// SoftmaxLast applies softmax along the last dimension.
func SoftmaxLast(t *Tensor) *Tensor {
	result, err := Softmax(t, len(t.Shape)-1)
	if err != nil {
		panic(err)
	}
	return result
}

// MaskedSoftmax writes the softmax of scores into dst, restricted to the
// positions where allowed is true. A nil allowed slice permits every position.
// Masked positions get weight 0. If no position is allowed the whole row is 0.
func MaskedSoftmax(scores []float32, allowed []bool, dst []float32) {
	if allowed != nil && len(allowed) != len(scores) {
		panic(fmt.Sprintf("mask length %d does not match row length %d", len(allowed), len(scores)))
	}

	maxVal := float32(math.Inf(-1))
	for i, s := range scores {
		if (allowed == nil || allowed[i]) && s > maxVal {
			maxVal = s
		}
	}
	if math.IsInf(float64(maxVal), -1) {
		for i := range dst {
			dst[i] = 0
		}
		return
	}

	var sum float32
	for i, s := range scores {
		if allowed != nil && !allowed[i] {
			dst[i] = 0
			continue
		}
		e := float32(math.Exp(float64(s - maxVal)))
		dst[i] = e
		sum += e
	}
	for i := range dst {
		dst[i] /= sum
	}
}

// Argmax returns the index of the largest value. Ties resolve to the lowest index.
func Argmax(row []float32) int {
	best := 0
	for i := 1; i < len(row); i++ {
		if row[i] > row[best] {
			best = i
		}
	}
	return best
}

// String returns a string representation of the tensor.
func (t *Tensor) String() string {
	var sb strings.Builder
	sb.WriteString("Tensor[")
	for i, dim := range t.Shape {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(fmt.Sprintf("%d", dim))
	}
	sb.WriteString("]: ")
	if len(t.Data) == 0 {
		sb.WriteString("[]")
		return sb.String()
	}
	sb.WriteString(formatData(t.Shape, t.Data, 0))
	return sb.String()
}

// formatData recursively formats tensor data, eliding long dimensions.
func formatData(shape []int, data []float32, offset int) string {
	if len(shape) == 0 {
		return fmt.Sprintf("%g", data[offset])
	}

	var sb strings.Builder
	sb.WriteString("[")
	if len(shape) == 1 {
		for i := 0; i < shape[0] && i < 6; i++ {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(fmt.Sprintf("%g", data[offset+i]))
		}
		if shape[0] > 6 {
			sb.WriteString(", ...")
		}
		sb.WriteString("]")
		return sb.String()
	}

	subSize := 1
	for _, d := range shape[1:] {
		subSize *= d
	}
	for i := 0; i < shape[0] && i < 3; i++ {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(formatData(shape[1:], data, offset+i*subSize))
	}
	if shape[0] > 3 {
		sb.WriteString(", ...")
	}
	sb.WriteString("]")
	return sb.String()
}

func stridesFor(shape []int) []int {
	strides := make([]int, len(shape))
	stride := 1
	for i := len(shape) - 1; i >= 0; i-- {
		strides[i] = stride
		stride *= shape[i]
	}
	return strides
}

func copyShape(shape []int) []int {
	result := make([]int, len(shape))
	copy(result, shape)
	return result
}
