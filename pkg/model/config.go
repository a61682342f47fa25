// Package model assembles the embedding, masking and attention pieces into
// the two sequence models: a translation transformer (Seq2Seq) and a
// token-classification tagger (Tagger), plus greedy autoregressive decoding.
//
// Key features:
//   - token + position embeddings (learned or sinusoidal) with a hard length cap
//   - post-norm encoder blocks with padding-only attention
//   - post-norm decoder blocks with causal ∧ padding self-attention and
//     padding-masked cross-attention
//   - ReLU feed-forward projections
package model

import (
	"errors"
	"fmt"
	"math/rand"

	"seqattn/pkg/embedding"
	"seqattn/pkg/tensor"
)

// Position encodings accepted by Config.PositionEncoding.
const (
	PositionLearned    = "learned"
	PositionSinusoidal = "sinusoidal"
)

// ErrInvalidConfig is returned by Config.Validate.
var ErrInvalidConfig = errors.New("invalid model config")

// Config holds the model hyperparameters. Field tags follow the YAML layout
// read by the config package.
type Config struct {
	// VocabSize is the source (or tagger input) vocabulary size.
	VocabSize int `mapstructure:"vocabSize"`

	// TargetVocabSize is the decoder vocabulary size, or the number of tags for a Tagger.
	TargetVocabSize int `mapstructure:"targetVocabSize"`

	// SequenceLength is the capacity of the position tables.
	SequenceLength int `mapstructure:"sequenceLength"`

	EmbeddingDim int `mapstructure:"embeddingDim"`
	NumHeads     int `mapstructure:"numHeads"`
	NumLayers    int `mapstructure:"numLayers"`

	// HiddenDim is the width of the feed-forward projection.
	HiddenDim int `mapstructure:"hiddenDim"`

	Dropout    float32 `mapstructure:"dropout"`
	Activation string  `mapstructure:"activation"`

	// PositionEncoding selects a learned position table or the fixed
	// sinusoidal one. Empty means learned.
	PositionEncoding string `mapstructure:"positionEncoding"`

	// PadID is the token id reserved for padding.
	PadID int `mapstructure:"padId"`

	// Workers bounds the goroutines used per attention call; 0 means GOMAXPROCS.
	Workers int `mapstructure:"workers"`
}

// DefaultConfig returns the configuration of the English-to-Spanish
// translation transformer: 15000-word vocabularies, 20-token sequences,
// 256-dim embeddings, 8 heads and a 2048-wide projection.
func DefaultConfig() Config {
	return Config{
		VocabSize:        15000,
		TargetVocabSize:  15000,
		SequenceLength:   20,
		EmbeddingDim:     256,
		NumHeads:         8,
		NumLayers:        1,
		HiddenDim:        2048,
		Dropout:          0.5,
		Activation:       tensor.ActivationReLU,
		PositionEncoding: PositionLearned,
		PadID:            0,
	}
}

// Validate checks if the configuration is valid and consistent.
func (c Config) Validate() error {
	switch {
	case c.VocabSize <= 0:
		return fmt.Errorf("%w: vocab_size must be positive, got %d", ErrInvalidConfig, c.VocabSize)
	case c.TargetVocabSize <= 0:
		return fmt.Errorf("%w: target_vocab_size must be positive, got %d", ErrInvalidConfig, c.TargetVocabSize)
	case c.SequenceLength <= 0:
		return fmt.Errorf("%w: sequence_length must be positive, got %d", ErrInvalidConfig, c.SequenceLength)
	case c.EmbeddingDim <= 0 || c.NumHeads <= 0:
		return fmt.Errorf("%w: embedding_dim and num_heads must be positive, got %d and %d",
			ErrInvalidConfig, c.EmbeddingDim, c.NumHeads)
	case c.EmbeddingDim%c.NumHeads != 0:
		return fmt.Errorf("%w: embedding_dim (%d) must be divisible by num_heads (%d)",
			ErrInvalidConfig, c.EmbeddingDim, c.NumHeads)
	case c.NumLayers <= 0:
		return fmt.Errorf("%w: num_layers must be positive, got %d", ErrInvalidConfig, c.NumLayers)
	case c.HiddenDim <= 0:
		return fmt.Errorf("%w: hidden_dim must be positive, got %d", ErrInvalidConfig, c.HiddenDim)
	case c.Dropout < 0 || c.Dropout >= 1:
		return fmt.Errorf("%w: dropout must be in [0, 1), got %v", ErrInvalidConfig, c.Dropout)
	case c.PadID < 0 || c.PadID >= c.VocabSize || c.PadID >= c.TargetVocabSize:
		return fmt.Errorf("%w: pad_id %d outside both vocabularies", ErrInvalidConfig, c.PadID)
	}
	switch c.Activation {
	case "", tensor.ActivationReLU, tensor.ActivationGELU:
	default:
		return fmt.Errorf("%w: unknown activation %q", ErrInvalidConfig, c.Activation)
	}
	switch c.PositionEncoding {
	case "", PositionLearned, PositionSinusoidal:
	default:
		return fmt.Errorf("%w: unknown position encoding %q", ErrInvalidConfig, c.PositionEncoding)
	}
	return nil
}

// newEmbedding builds a token-and-position combiner for a vocabulary of the
// given size using the configured position encoding.
func (c Config) newEmbedding(vocabSize int, rng *rand.Rand) (*embedding.TokenAndPosition, error) {
	if c.PositionEncoding == PositionSinusoidal {
		return embedding.NewSinusoidal(vocabSize, c.SequenceLength, c.EmbeddingDim, c.PadID, rng)
	}
	return embedding.New(vocabSize, c.SequenceLength, c.EmbeddingDim, c.PadID, rng)
}

// HeadDimension returns the dimension per attention head.
func (c Config) HeadDimension() int {
	return c.EmbeddingDim / c.NumHeads
}
