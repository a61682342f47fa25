// Command tag runs the encoder-only tagger over a sample labelled corpus and
// prints per-word tags for one sentence.
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"strings"

	"github.com/rs/zerolog"

	"seqattn/internal/logging"
	"seqattn/pkg/config"
	"seqattn/pkg/loss"
	"seqattn/pkg/model"
	"seqattn/pkg/tensor"
	"seqattn/pkg/tokenizer"
	"seqattn/pkg/train"
)

func main() {
	configPath := flag.String("config", "", "Path to a YAML config file (default: search . and ~/.config/seqattn)")
	sentence := flag.String("sentence", "Tom lives in Paris", "Sentence to tag")
	epochs := flag.Int("epochs", 0, "Evaluation epochs to run before tagging (default: train.epochs from config)")

	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, *configPath, *sentence, *epochs); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath, sentence string, epochs int) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg.Log)
	if err != nil {
		return err
	}
	tensor.SetDropoutSeed(cfg.Train.Seed)

	corpus, err := defaultSentences()
	if err != nil {
		return err
	}

	vec := tokenizer.NewVectorizer(cfg.Model.VocabSize)
	texts := make([]string, len(corpus))
	for i, s := range corpus {
		texts[i] = strings.Join(s.Words, " ")
	}
	vec.Adapt(texts)

	modelCfg := cfg.Model
	modelCfg.VocabSize = vec.VocabSize()
	modelCfg.TargetVocabSize = len(tagNames)
	modelCfg.PadID = tokenizer.PadID

	logger.Info().
		Int("sentences", len(corpus)).
		Int("vocab", modelCfg.VocabSize).
		Int("tags", modelCfg.TargetVocabSize).
		Msg("tagger configuration")

	tagger, err := model.NewTagger(modelCfg, rand.New(rand.NewSource(cfg.Train.Seed)))
	if err != nil {
		return fmt.Errorf("failed to create tagger: %w", err)
	}
	tagger.Logger = logger.With().Str("component", "tagger").Logger()

	stepper, err := newEvalStepper(tagger, vec, corpus)
	if err != nil {
		return err
	}
	if epochs <= 0 {
		epochs = cfg.Train.Epochs
	}
	loop := train.NewLoop(epochs, stepper)
	loop.Logger = logger.With().Str("component", "train").Logger()
	if _, err := loop.Run(ctx); err != nil {
		return err
	}

	ids := vec.EncodeBatch([]string{sentence}, modelCfg.SequenceLength)
	tags, conf, err := tagger.PredictWithConfidence(ids)
	if err != nil {
		return fmt.Errorf("failed to tag: %w", err)
	}

	fmt.Println(strings.Repeat("=", 50))
	fmt.Printf("Sentence: %s\n", sentence)
	for i, word := range tokenizer.Split(sentence) {
		if i == modelCfg.SequenceLength {
			break
		}
		fmt.Printf("  %-12s %-6s %.3f\n", word, tagNames[tags[0][i]], conf[0][i])
	}
	fmt.Println(strings.Repeat("=", 50))
	return nil
}

// newEvalStepper scores the tagger on the whole corpus each epoch. The model
// is not updated, so every epoch reports the same numbers.
func newEvalStepper(t *model.Tagger, vec *tokenizer.Vectorizer, corpus []taggedSentence) (train.Stepper, error) {
	seqLen := t.Config.SequenceLength
	ids := make([][]int, len(corpus))
	targets := make([][]int, len(corpus))
	for i, s := range corpus {
		ids[i] = vec.Encode(strings.Join(s.Words, " "), seqLen)
		tags, err := tagIDs(s.Tags, seqLen)
		if err != nil {
			return nil, fmt.Errorf("sentence %d: %w", i, err)
		}
		targets[i] = tags
	}

	return train.StepperFunc(func(ctx context.Context, _ int) (train.Metrics, error) {
		logits, _, err := t.Forward(ids)
		if err != nil {
			return train.Metrics{}, err
		}
		l, n, err := loss.MaskedCrossEntropy(logits, targets, t.Config.PadID)
		if err != nil {
			return train.Metrics{}, err
		}
		acc, _, err := loss.MaskedAccuracy(logits, targets, t.Config.PadID)
		if err != nil {
			return train.Metrics{}, err
		}
		return train.Metrics{Loss: l, Accuracy: acc, Tokens: n}, nil
	}), nil
}

func newLogger(cfg config.LogConfig) (zerolog.Logger, error) {
	if cfg.Console {
		return logging.NewConsole(cfg.Level, os.Stderr)
	}
	return logging.New(cfg.Level, os.Stderr)
}
