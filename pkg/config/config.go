// Package config loads the command configuration with viper.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"seqattn/internal/logging"
	"seqattn/pkg/model"
)

const (
	// AppName names the config directory under $HOME/.config.
	AppName = "seqattn"
	// EnvPrefix prefixes every environment override, e.g. SEQATTN_MODEL_NUMHEADS.
	EnvPrefix = "SEQATTN"
)

// ErrInvalid is returned when a loaded configuration fails validation.
var ErrInvalid = errors.New("invalid configuration")

// Config stores all configuration of the application.
// The values are read by viper from a config file or environment variables.
type Config struct {
	Model  model.Config `mapstructure:"model"`
	Decode DecodeConfig `mapstructure:"decode"`
	Train  TrainConfig  `mapstructure:"train"`
	Log    LogConfig    `mapstructure:"log"`
}

// DecodeConfig stores greedy decoding settings.
type DecodeConfig struct {
	StartToken      string `mapstructure:"startToken"`
	EndToken        string `mapstructure:"endToken"`
	MaxDecodeLength int    `mapstructure:"maxDecodeLength"`
}

// TrainConfig stores epoch loop settings.
type TrainConfig struct {
	Epochs int   `mapstructure:"epochs"`
	Seed   int64 `mapstructure:"seed"`
}

// LogConfig stores logger settings.
type LogConfig struct {
	Level   string `mapstructure:"level"`
	Console bool   `mapstructure:"console"`
}

// DefaultConfigDir returns $HOME/.config/seqattn, or "" if there is no home.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", AppName)
}

// Load reads configuration from configPath, or searches for config.yaml in
// the working directory and DefaultConfigDir when configPath is empty. A
// missing searched file is not an error; defaults apply. Environment
// variables override both.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(".")
		if dir := DefaultConfigDir(); dir != "" {
			v.AddConfigPath(dir)
		}
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}
	// Depends on the resolved sequence length, so it is set after the file is read.
	v.SetDefault("decode.maxDecodeLength", v.GetInt("model.sequenceLength")-1)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	m := model.DefaultConfig()
	v.SetDefault("model.vocabSize", m.VocabSize)
	v.SetDefault("model.targetVocabSize", m.TargetVocabSize)
	v.SetDefault("model.sequenceLength", m.SequenceLength)
	v.SetDefault("model.embeddingDim", m.EmbeddingDim)
	v.SetDefault("model.numHeads", m.NumHeads)
	v.SetDefault("model.numLayers", m.NumLayers)
	v.SetDefault("model.hiddenDim", m.HiddenDim)
	v.SetDefault("model.dropout", m.Dropout)
	v.SetDefault("model.activation", m.Activation)
	v.SetDefault("model.positionEncoding", m.PositionEncoding)
	v.SetDefault("model.padId", m.PadID)
	v.SetDefault("model.workers", m.Workers)

	v.SetDefault("decode.startToken", "[start]")
	v.SetDefault("decode.endToken", "[end]")

	v.SetDefault("train.epochs", 30)
	v.SetDefault("train.seed", 42)

	v.SetDefault("log.level", logging.DefaultLevel)
	v.SetDefault("log.console", true)
}

// Validate checks the model settings and the settings that depend on them.
func (c *Config) Validate() error {
	if err := c.Model.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if c.Decode.MaxDecodeLength <= 0 || c.Decode.MaxDecodeLength+1 > c.Model.SequenceLength {
		return fmt.Errorf("%w: decode.maxDecodeLength must be in [1, %d], got %d",
			ErrInvalid, c.Model.SequenceLength-1, c.Decode.MaxDecodeLength)
	}
	if c.Decode.StartToken == "" || c.Decode.EndToken == "" {
		return fmt.Errorf("%w: decode start and end tokens must be set", ErrInvalid)
	}
	if c.Train.Epochs <= 0 {
		return fmt.Errorf("%w: train.epochs must be positive, got %d", ErrInvalid, c.Train.Epochs)
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	return nil
}
