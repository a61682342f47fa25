// Package loss computes sequence losses that ignore padding targets.
package loss

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/floats"

	"seqattn/pkg/tensor"
)

var (
	// ErrShape is returned when logits and targets disagree on (batch, seq).
	ErrShape = errors.New("logits and targets shape mismatch")
	// ErrTargetOutOfRange is returned for a non-padding target outside [0, classes).
	ErrTargetOutOfRange = errors.New("target id out of range")
)

// MaskedCrossEntropy computes sparse categorical cross-entropy averaged over
// non-padding targets:
//
//	loss_i = logsumexp(logits[i]) - logits[i, t_i]
//
// logits: (batch, seq, classes), targets: (batch, seq).
// It returns the mean and the number of positions that contributed. A batch
// with no real targets yields (0, 0, nil).
func MaskedCrossEntropy(logits *tensor.Tensor, targets [][]int, padID int) (float32, int, error) {
	classes, err := checkShapes(logits, targets)
	if err != nil {
		return 0, 0, err
	}

	var total float64
	count := 0
	scratch := make([]float64, classes)
	for b, row := range targets {
		for s, target := range row {
			if target == padID {
				continue
			}
			if target < 0 || target >= classes {
				return 0, 0, fmt.Errorf("%w: %d at (%d, %d), %d classes", ErrTargetOutOfRange, target, b, s, classes)
			}
			total += negLogLikelihood(logits.Row(b, s), target, scratch)
			count++
		}
	}
	if count == 0 {
		return 0, 0, nil
	}
	return float32(total / float64(count)), count, nil
}

// MaskedAccuracy returns the fraction of non-padding targets whose argmax
// prediction is correct, and the number of positions counted.
func MaskedAccuracy(logits *tensor.Tensor, targets [][]int, padID int) (float32, int, error) {
	if _, err := checkShapes(logits, targets); err != nil {
		return 0, 0, err
	}

	correct, count := 0, 0
	for b, row := range targets {
		for s, target := range row {
			if target == padID {
				continue
			}
			if tensor.Argmax(logits.Row(b, s)) == target {
				correct++
			}
			count++
		}
	}
	if count == 0 {
		return 0, 0, nil
	}
	return float32(correct) / float32(count), count, nil
}

func checkShapes(logits *tensor.Tensor, targets [][]int) (int, error) {
	if logits.NumDims() != 3 {
		return 0, fmt.Errorf("%w: expected 3D logits (batch, seq, classes), got %v", ErrShape, logits.Shape)
	}
	if logits.Shape[0] != len(targets) {
		return 0, fmt.Errorf("%w: logits batch %d, targets batch %d", ErrShape, logits.Shape[0], len(targets))
	}
	for b, row := range targets {
		if len(row) != logits.Shape[1] {
			return 0, fmt.Errorf("%w: targets row %d has %d entries, logits have %d positions",
				ErrShape, b, len(row), logits.Shape[1])
		}
	}
	return logits.Shape[2], nil
}

// negLogLikelihood returns -log softmax(row)[target], using scratch to hold
// the float64 copy of row.
func negLogLikelihood(row []float32, target int, scratch []float64) float64 {
	for i, v := range row {
		scratch[i] = float64(v)
	}
	return floats.LogSumExp(scratch) - scratch[target]
}
