package model

import (
	"context"
	"errors"
	"fmt"
	"math"

	"seqattn/pkg/tensor"
)

var (
	// ErrDecodeTooLong is returned when the start token plus MaxDecodeLength
	// generated tokens would not fit the target position table.
	ErrDecodeTooLong = errors.New("decode length exceeds sequence length")
	// ErrInvalidDecodeOptions is returned for non-positive lengths, out-of-vocabulary
	// ids, or start/end ids that collide with each other or with the pad id.
	ErrInvalidDecodeOptions = errors.New("invalid decode options")
)

// DecodeOptions controls GreedyDecode.
type DecodeOptions struct {
	StartID         int
	EndID           int
	MaxDecodeLength int
}

// DecodeResult holds the decoded target sequences.
type DecodeResult struct {
	// Tokens per batch row, starting with StartID and ending with EndID when
	// the row finished. Rows are not padded.
	Tokens [][]int
	// Finished reports whether each row emitted EndID.
	Finished []bool
	// Steps is the number of decoder passes that ran.
	Steps int
}

// GreedyDecode translates src with greedy decoding.
//
// The source is encoded once. Each step re-runs the decoder over the full
// target prefix, takes the logits at the last position and appends their
// argmax. PadID and StartID are never generated, so a live prefix holds no
// padding keys. A row stops at EndID; rows that stopped are padded with PadID so
// the batch stays rectangular. The loop ends when every row has stopped or
// after MaxDecodeLength steps, whichever comes first. ctx is checked before
// each step.
func GreedyDecode(ctx context.Context, m *Seq2Seq, src [][]int, opts DecodeOptions) (*DecodeResult, error) {
	if err := opts.validate(m.Config); err != nil {
		return nil, err
	}

	// Ensure we're in inference mode
	wasTraining := m.Training
	m.SetTraining(false)
	defer m.SetTraining(wasTraining)

	enc, srcPad, err := m.Encode(src)
	if err != nil {
		return nil, fmt.Errorf("failed to encode source: %w", err)
	}

	batch := len(src)
	res := &DecodeResult{
		Tokens:   make([][]int, batch),
		Finished: make([]bool, batch),
	}
	prefix := make([][]int, batch)
	for b := range prefix {
		prefix[b] = []int{opts.StartID}
		res.Tokens[b] = []int{opts.StartID}
	}

	scratch := make([]float32, m.Config.TargetVocabSize)
	banned := float32(math.Inf(-1))

	remaining := batch
	for step := 0; step < opts.MaxDecodeLength && remaining > 0; step++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("decoding stopped at step %d: %w", step, err)
		}

		logits, err := m.Decode(prefix, enc, srcPad)
		if err != nil {
			return nil, fmt.Errorf("decoder pass failed at step %d: %w", step, err)
		}
		res.Steps++

		last := len(prefix[0]) - 1
		for b := range prefix {
			if res.Finished[b] {
				prefix[b] = append(prefix[b], m.Config.PadID)
				continue
			}
			copy(scratch, logits.Row(b, last))
			scratch[m.Config.PadID] = banned
			scratch[opts.StartID] = banned
			next := tensor.Argmax(scratch)
			prefix[b] = append(prefix[b], next)
			res.Tokens[b] = append(res.Tokens[b], next)
			if next == opts.EndID {
				res.Finished[b] = true
				remaining--
			}
		}
	}
	return res, nil
}

func (o DecodeOptions) validate(c Config) error {
	if o.MaxDecodeLength <= 0 {
		return fmt.Errorf("%w: max decode length must be positive, got %d", ErrInvalidDecodeOptions, o.MaxDecodeLength)
	}
	if o.MaxDecodeLength+1 > c.SequenceLength {
		return fmt.Errorf("%w: %d generated tokens plus start token > %d",
			ErrDecodeTooLong, o.MaxDecodeLength, c.SequenceLength)
	}
	for _, id := range []int{o.StartID, o.EndID} {
		if id < 0 || id >= c.TargetVocabSize {
			return fmt.Errorf("%w: token id %d outside target vocabulary of %d",
				ErrInvalidDecodeOptions, id, c.TargetVocabSize)
		}
	}
	switch {
	case o.StartID == c.PadID || o.EndID == c.PadID:
		return fmt.Errorf("%w: start %d and end %d must differ from pad id %d",
			ErrInvalidDecodeOptions, o.StartID, o.EndID, c.PadID)
	case o.StartID == o.EndID:
		return fmt.Errorf("%w: start and end ids are both %d", ErrInvalidDecodeOptions, o.StartID)
	}
	return nil
}
