package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"path/filepath"
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
	// Define command line flags
	configPath := flag.String("config", "", "Path to a YAML config file (default: search . and ~/.config/seqattn)")
	pairsPath := flag.String("pairs", "", "Tab-separated source/target sentence file (default: built-in sample)")
	sentence := flag.String("sentence", "I am hungry.", "Source sentence to translate")
	epochs := flag.Int("epochs", 0, "Evaluation epochs to run before decoding (default: train.epochs from config)")
	vocabDir := flag.String("save-vocab", "", "Directory to write source.vocab and target.vocab")

	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, *configPath, *pairsPath, *sentence, *epochs, *vocabDir); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath, pairsPath, sentence string, epochs int, vocabDir string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg.Log)
	if err != nil {
		return err
	}
	tensor.SetDropoutSeed(cfg.Train.Seed)

	pairs, err := loadPairs(pairsPath, cfg.Decode)
	if err != nil {
		return err
	}
	logger.Info().Int("pairs", len(pairs)).Msg("loaded sentence pairs")

	// Vectorizers learned from the corpus fix both vocabulary sizes.
	srcVec := tokenizer.NewVectorizer(cfg.Model.VocabSize)
	tgtVec := tokenizer.NewVectorizer(cfg.Model.TargetVocabSize)
	sources := make([]string, len(pairs))
	targets := make([]string, len(pairs))
	for i, p := range pairs {
		sources[i], targets[i] = p.Source, p.Target
	}
	srcVec.Adapt(sources)
	tgtVec.Adapt(targets)

	modelCfg := cfg.Model
	modelCfg.VocabSize = srcVec.VocabSize()
	modelCfg.TargetVocabSize = tgtVec.VocabSize()
	modelCfg.PadID = tokenizer.PadID

	logger.Info().
		Int("source_vocab", modelCfg.VocabSize).
		Int("target_vocab", modelCfg.TargetVocabSize).
		Int("sequence_length", modelCfg.SequenceLength).
		Int("embedding_dim", modelCfg.EmbeddingDim).
		Int("num_heads", modelCfg.NumHeads).
		Int("num_layers", modelCfg.NumLayers).
		Msg("model configuration")

	if vocabDir != "" {
		if err := saveVocabularies(vocabDir, srcVec, tgtVec); err != nil {
			return err
		}
		logger.Info().Str("dir", vocabDir).Msg("saved vocabularies")
	}

	translator, err := model.NewSeq2Seq(modelCfg, rand.New(rand.NewSource(cfg.Train.Seed)))
	if err != nil {
		return fmt.Errorf("failed to create model: %w", err)
	}
	translator.Logger = logger.With().Str("component", "seq2seq").Logger()
	translator.SetTraining(false)

	if epochs <= 0 {
		epochs = cfg.Train.Epochs
	}
	loop := train.NewLoop(epochs, newEvalStepper(translator, srcVec, tgtVec, pairs))
	loop.Logger = logger.With().Str("component", "train").Logger()
	if _, err := loop.Run(ctx); err != nil {
		return err
	}

	src := srcVec.EncodeBatch([]string{sentence}, modelCfg.SequenceLength)
	res, err := model.GreedyDecode(ctx, translator, src, model.DecodeOptions{
		StartID:         tgtVec.ID(cfg.Decode.StartToken),
		EndID:           tgtVec.ID(cfg.Decode.EndToken),
		MaxDecodeLength: cfg.Decode.MaxDecodeLength,
	})
	if err != nil {
		return fmt.Errorf("failed to decode: %w", err)
	}

	fmt.Println(strings.Repeat("=", 50))
	fmt.Printf("Source:      %s\n", sentence)
	fmt.Printf("Source ids:  %v\n", src[0])
	fmt.Printf("Decoded ids: %v\n", res.Tokens[0])
	fmt.Printf("Translation: %s\n", tgtVec.Decode(res.Tokens[0]))
	fmt.Printf("Finished:    %v after %d steps\n", res.Finished[0], res.Steps)
	fmt.Println(strings.Repeat("=", 50))
	return nil
}

// newEvalStepper scores the model on the whole corpus each epoch. The model
// is not updated, so every epoch reports the same numbers.
func newEvalStepper(m *model.Seq2Seq, srcVec, tgtVec *tokenizer.Vectorizer, pairs []pair) train.Stepper {
	seqLen := m.Config.SequenceLength
	src := make([][]int, len(pairs))
	tgtIn := make([][]int, len(pairs))
	tgtOut := make([][]int, len(pairs))
	for i, p := range pairs {
		src[i] = srcVec.Encode(p.Source, seqLen)
		// Decoder input and target are the target sentence shifted by one.
		ids := tgtVec.Encode(p.Target, seqLen+1)
		tgtIn[i], tgtOut[i] = ids[:seqLen], ids[1:]
	}

	return train.StepperFunc(func(ctx context.Context, _ int) (train.Metrics, error) {
		logits, err := m.Forward(src, tgtIn)
		if err != nil {
			return train.Metrics{}, err
		}
		l, n, err := loss.MaskedCrossEntropy(logits, tgtOut, m.Config.PadID)
		if err != nil {
			return train.Metrics{}, err
		}
		acc, _, err := loss.MaskedAccuracy(logits, tgtOut, m.Config.PadID)
		if err != nil {
			return train.Metrics{}, err
		}
		return train.Metrics{Loss: l, Accuracy: acc, Tokens: n}, nil
	})
}

func newLogger(cfg config.LogConfig) (zerolog.Logger, error) {
	if cfg.Console {
		return logging.NewConsole(cfg.Level, os.Stderr)
	}
	return logging.New(cfg.Level, os.Stderr)
}

func loadPairs(path string, dec config.DecodeConfig) ([]pair, error) {
	if path == "" {
		return defaultPairs(dec.StartToken, dec.EndToken), nil
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open pair file: %w", err)
	}
	defer file.Close()
	return readPairs(file, dec.StartToken, dec.EndToken)
}

func saveVocabularies(dir string, src, tgt *tokenizer.Vectorizer) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create vocabulary directory: %w", err)
	}
	if err := src.Save(filepath.Join(dir, "source.vocab")); err != nil {
		return fmt.Errorf("failed to save source vocabulary: %w", err)
	}
	if err := tgt.Save(filepath.Join(dir, "target.vocab")); err != nil {
		return fmt.Errorf("failed to save target vocabulary: %w", err)
	}
	return nil
}
