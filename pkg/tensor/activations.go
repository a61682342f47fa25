package tensor

import "math"

// ReLU applies the Rectified Linear Unit activation function:
//
//	ReLU(x) = max(0, x)
//
// It is the activation of the dense projection inside the encoder and
// decoder blocks and of the tagger head.
//
// Input: tensor of any shape
// Output: tensor of the same shape with ReLU applied element-wise
func (t *Tensor) ReLU() *Tensor {
	result := NewTensor(t.Shape)
	for i, x := range t.Data {
		if x > 0 {
			result.Data[i] = x
		}
	}
	return result
}

// GELU applies the Gaussian Error Linear Unit activation function.
//
// The tanh approximation is used:
//
//	GELU(x) = 0.5 * x * (1 + tanh(sqrt(2/π) * (x + 0.044715 * x^3)))
//
// Reference: https://arxiv.org/abs/1606.08415
//
// Input: tensor of any shape
// Output: tensor of the same shape with GELU applied element-wise
func (t *Tensor) GELU() *Tensor {
	result := NewTensor(t.Shape)

	const (
		sqrt2OverPi = 0.7978845608 // sqrt(2/π)
		coeff       = 0.044715
	)

	for i, x := range t.Data {
		inner := x + coeff*x*x*x
		tanhVal := float32(math.Tanh(float64(sqrt2OverPi * inner)))
		result.Data[i] = 0.5 * x * (1 + tanhVal)
	}

	return result
}

// Activation names accepted by Activate.
const (
	ActivationReLU = "relu"
	ActivationGELU = "gelu"
)

// Activate applies the named activation.
//
// Parameters:
//   - t: input tensor
//   - name: ActivationReLU or ActivationGELU
//
// Returns:
//   - A new tensor with the activation applied, or t itself for an unknown name
func Activate(t *Tensor, name string) *Tensor {
	switch name {
	case ActivationReLU:
		return t.ReLU()
	case ActivationGELU:
		return t.GELU()
	default:
		return t
	}
}
