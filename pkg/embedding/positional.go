// Package embedding implements the token-and-position embedding combiner.
//
// For a batch of token-id sequences of shape (batch, L) it produces
// (batch, L, D) vectors equal to tok[id] + pos[position], where position runs
// 0..L-1 independently of the batch row. The position table has a fixed
// capacity; longer sequences are rejected with ErrSequenceTooLong rather than
// truncated.
package embedding

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"seqattn/pkg/mask"
	"seqattn/pkg/tensor"
)

var (
	// ErrSequenceTooLong is returned when a sequence exceeds the position table capacity.
	ErrSequenceTooLong = errors.New("sequence length exceeds position table capacity")
	// ErrDimMismatch is returned when the token and position tables disagree on D.
	ErrDimMismatch = errors.New("token and position embedding dimensions differ")
	// ErrTokenOutOfRange is returned for token ids outside [0, vocab).
	ErrTokenOutOfRange = errors.New("token id out of range")
	// ErrRaggedBatch is returned when batch rows have different lengths.
	ErrRaggedBatch = errors.New("batch rows have different lengths")
)

// TokenAndPosition holds the two lookup tables.
type TokenAndPosition struct {
	Token    *tensor.Tensor // (vocab_size, emb_dim)
	Position *tensor.Tensor // (max_len, emb_dim)
	PadID    int
}

// New allocates both tables and fills them from N(0, 0.02²).
func New(vocabSize, maxLen, dim, padID int, rng *rand.Rand) (*TokenAndPosition, error) {
	if vocabSize <= 0 || maxLen <= 0 || dim <= 0 {
		return nil, fmt.Errorf("invalid embedding sizes vocab=%d max_len=%d dim=%d", vocabSize, maxLen, dim)
	}
	tok := tensor.NewTensor([]int{vocabSize, dim})
	pos := tensor.NewTensor([]int{maxLen, dim})
	normalInit(tok, 0.02, rng)
	normalInit(pos, 0.02, rng)
	return FromTables(tok, pos, padID)
}

// FromTables wraps existing tables after checking their shapes agree.
func FromTables(tok, pos *tensor.Tensor, padID int) (*TokenAndPosition, error) {
	if tok.NumDims() != 2 || pos.NumDims() != 2 {
		return nil, fmt.Errorf("embedding tables must be 2D, got %v and %v", tok.Shape, pos.Shape)
	}
	if tok.Shape[1] != pos.Shape[1] {
		return nil, fmt.Errorf("%w: token %d, position %d", ErrDimMismatch, tok.Shape[1], pos.Shape[1])
	}
	return &TokenAndPosition{Token: tok, Position: pos, PadID: padID}, nil
}

// Dim returns the embedding dimension D.
func (e *TokenAndPosition) Dim() int { return e.Token.Shape[1] }

// MaxLen returns the position table capacity.
func (e *TokenAndPosition) MaxLen() int { return e.Position.Shape[0] }

// VocabSize returns the number of token rows.
func (e *TokenAndPosition) VocabSize() int { return e.Token.Shape[0] }

// Forward embeds a batch of token ids.
//
// Input: ids (batch, L)
// Output: (batch, L, D) and the padding mask derived from ids == PadID.
func (e *TokenAndPosition) Forward(ids [][]int) (*tensor.Tensor, *mask.Padding, error) {
	batch := len(ids)
	seqLen := 0
	if batch > 0 {
		seqLen = len(ids[0])
	}
	for b, row := range ids {
		if len(row) != seqLen {
			return nil, nil, fmt.Errorf("%w: row %d has %d tokens, row 0 has %d", ErrRaggedBatch, b, len(row), seqLen)
		}
	}
	if seqLen > e.MaxLen() {
		return nil, nil, fmt.Errorf("%w: %d > %d", ErrSequenceTooLong, seqLen, e.MaxLen())
	}

	dim := e.Dim()
	vocab := e.VocabSize()
	out := tensor.NewTensor([]int{batch, seqLen, dim})

	for b, row := range ids {
		for s, id := range row {
			if id < 0 || id >= vocab {
				return nil, nil, fmt.Errorf("%w: id %d at (%d, %d), vocab size is %d",
					ErrTokenOutOfRange, id, b, s, vocab)
			}
			dst := out.Row(b, s)
			tok := e.Token.Row(id)
			pos := e.Position.Row(s)
			for d := range dst {
				dst[d] = tok[d] + pos[d]
			}
		}
	}

	return out, mask.NewPadding(ids, e.PadID), nil
}

// NewSinusoidal allocates a learned token table from N(0, 0.02²) and pairs it
// with the fixed SinusoidalTable for positions.
func NewSinusoidal(vocabSize, maxLen, dim, padID int, rng *rand.Rand) (*TokenAndPosition, error) {
	if vocabSize <= 0 {
		return nil, fmt.Errorf("invalid embedding sizes vocab=%d max_len=%d dim=%d", vocabSize, maxLen, dim)
	}
	pos, err := SinusoidalTable(maxLen, dim)
	if err != nil {
		return nil, err
	}
	tok := tensor.NewTensor([]int{vocabSize, dim})
	normalInit(tok, 0.02, rng)
	return FromTables(tok, pos, padID)
}

// SinusoidalTable returns the fixed (maxLen, dim) encoding
//
//	PE(pos, 2i)   = sin(pos / 10000^(2i/dim))
//	PE(pos, 2i+1) = cos(pos / 10000^(2i/dim))
func SinusoidalTable(maxLen, dim int) (*tensor.Tensor, error) {
	if maxLen <= 0 || dim <= 0 {
		return nil, fmt.Errorf("invalid sinusoidal table size max_len=%d dim=%d", maxLen, dim)
	}
	data := make([]float32, maxLen*dim)
	for pos := 0; pos < maxLen; pos++ {
		row := data[pos*dim : (pos+1)*dim]
		for i := 0; i < dim; i += 2 {
			angle := float64(pos) / math.Pow(10000, float64(i)/float64(dim))
			row[i] = float32(math.Sin(angle))
			if i+1 < dim {
				row[i+1] = float32(math.Cos(angle))
			}
		}
	}
	return tensor.FromSlice(data, []int{maxLen, dim})
}

func normalInit(t *tensor.Tensor, std float32, rng *rand.Rand) {
	for i := range t.Data {
		if rng != nil {
			t.Data[i] = float32(rng.NormFloat64()) * std
		} else {
			t.Data[i] = float32(rand.NormFloat64()) * std
		}
	}
}
