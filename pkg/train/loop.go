// Package train runs an explicit epoch loop around a model-specific step.
//
// Gradients and parameter updates belong to the Stepper; the loop owns the
// epoch counter, cancellation, logging and observer notification.
package train

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ErrStop is returned by an Observer to end the run after the current epoch.
var ErrStop = errors.New("stop training")

// Metrics summarizes one epoch.
type Metrics struct {
	Loss     float32
	Accuracy float32
	// Tokens is the number of non-padding targets the epoch was scored on.
	Tokens int

	ValLoss     float32
	ValAccuracy float32
}

// Stepper runs one full epoch over the data.
type Stepper interface {
	Epoch(ctx context.Context, epoch int) (Metrics, error)
}

// StepperFunc adapts a function to Stepper.
type StepperFunc func(ctx context.Context, epoch int) (Metrics, error)

// Epoch calls f.
func (f StepperFunc) Epoch(ctx context.Context, epoch int) (Metrics, error) {
	return f(ctx, epoch)
}

// Event is handed to observers after every epoch.
type Event struct {
	RunID    uuid.UUID
	Epoch    int
	Metrics  Metrics
	Duration time.Duration
}

// Observer is notified after every epoch. Returning ErrStop ends the run
// without error; any other error aborts it.
type Observer interface {
	OnEpochEnd(ctx context.Context, ev Event) error
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, ev Event) error

// OnEpochEnd calls f.
func (f ObserverFunc) OnEpochEnd(ctx context.Context, ev Event) error {
	return f(ctx, ev)
}

// Loop drives Stepper for a fixed number of epochs.
type Loop struct {
	Epochs    int
	Stepper   Stepper
	Observers []Observer
	Logger    zerolog.Logger
}

// Result describes a finished run.
type Result struct {
	RunID   uuid.UUID
	Epochs  int // epochs completed
	Stopped bool
	History []Metrics
}

// NewLoop creates a loop with a no-op logger.
func NewLoop(epochs int, stepper Stepper, observers ...Observer) *Loop {
	return &Loop{
		Epochs:    epochs,
		Stepper:   stepper,
		Observers: observers,
		Logger:    zerolog.Nop(),
	}
}

// Run executes the epochs in order. ctx is checked before each epoch and is
// passed to the stepper and observers.
func (l *Loop) Run(ctx context.Context) (*Result, error) {
	if l.Stepper == nil {
		return nil, errors.New("train loop has no stepper")
	}
	if l.Epochs <= 0 {
		return nil, fmt.Errorf("epochs must be positive, got %d", l.Epochs)
	}

	res := &Result{RunID: uuid.New()}
	logger := l.Logger.With().Str("run_id", res.RunID.String()).Logger()
	logger.Info().Int("epochs", l.Epochs).Msg("training started")

	for epoch := 1; epoch <= l.Epochs; epoch++ {
		if err := ctx.Err(); err != nil {
			return res, fmt.Errorf("training stopped before epoch %d: %w", epoch, err)
		}

		start := time.Now()
		metrics, err := l.Stepper.Epoch(ctx, epoch)
		if err != nil {
			return res, fmt.Errorf("epoch %d failed: %w", epoch, err)
		}
		res.Epochs = epoch
		res.History = append(res.History, metrics)

		ev := Event{RunID: res.RunID, Epoch: epoch, Metrics: metrics, Duration: time.Since(start)}
		logger.Info().
			Int("epoch", epoch).
			Float32("loss", metrics.Loss).
			Float32("accuracy", metrics.Accuracy).
			Float32("val_loss", metrics.ValLoss).
			Float32("val_accuracy", metrics.ValAccuracy).
			Int("tokens", metrics.Tokens).
			Dur("duration", ev.Duration).
			Msg("epoch finished")

		stop := false
		for _, obs := range l.Observers {
			err := obs.OnEpochEnd(ctx, ev)
			switch {
			case errors.Is(err, ErrStop):
				stop = true
			case err != nil:
				return res, fmt.Errorf("observer failed after epoch %d: %w", epoch, err)
			}
		}
		if stop {
			res.Stopped = true
			logger.Info().Int("epoch", epoch).Msg("training stopped by observer")
			break
		}
	}

	logger.Info().Int("epochs_completed", res.Epochs).Msg("training finished")
	return res, nil
}
