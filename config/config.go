// Package config loads the pitchtrain configuration from a YAML file,
// PITCHLEN_* environment variables and command line flags.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/Noofbiz/pitchlen/datasets"
	"github.com/Noofbiz/pitchlen/predictor"
	"github.com/Noofbiz/pitchlen/seed"
)

// EnvPrefix prefixes every environment override, e.g. PITCHLEN_DATASET_N_BINS.
const EnvPrefix = "PITCHLEN"

type Paths struct {
	Records    string `mapstructure:"records" yaml:"records"`
	SpeakerIDs string `mapstructure:"speaker_ids" yaml:"speaker_ids"`
	Stats      string `mapstructure:"stats" yaml:"stats"`
	Outputs    string `mapstructure:"outputs" yaml:"outputs"`
}

type Dataset struct {
	NBins          int      `mapstructure:"n_bins" yaml:"n_bins"`
	FMin           *float32 `mapstructure:"f_min" yaml:"f_min"`
	Scale          *float32 `mapstructure:"scale" yaml:"scale"`
	NTokens        int      `mapstructure:"n_tokens" yaml:"n_tokens"`
	PaddingValue   float32  `mapstructure:"padding_value" yaml:"padding_value"`
	NormalisePitch bool     `mapstructure:"normalise_pitch" yaml:"normalise_pitch"`
}

type Model struct {
	TokenVocabSize   int     `mapstructure:"token_vocab_size" yaml:"token_vocab_size"`
	SpeakerVocabSize int     `mapstructure:"speaker_vocab_size" yaml:"speaker_vocab_size"`
	EmbSize          int     `mapstructure:"emb_size" yaml:"emb_size"`
	Channels         int     `mapstructure:"channels" yaml:"channels"`
	DropoutRate      float64 `mapstructure:"dropout_rate" yaml:"dropout_rate"`
}

type Training struct {
	Epochs       int     `mapstructure:"epochs" yaml:"epochs"`
	BatchSize    int     `mapstructure:"batch_size" yaml:"batch_size"`
	LearningRate float64 `mapstructure:"learning_rate" yaml:"learning_rate"`
	Shuffle      bool    `mapstructure:"shuffle" yaml:"shuffle"`
}

type Root struct {
	Seed     int64    `mapstructure:"seed" yaml:"seed"`
	LogLevel string   `mapstructure:"log_level" yaml:"log_level"`
	Paths    Paths    `mapstructure:"paths" yaml:"paths"`
	Dataset  Dataset  `mapstructure:"dataset" yaml:"dataset"`
	Model    Model    `mapstructure:"model" yaml:"model"`
	Training Training `mapstructure:"training" yaml:"training"`
}

// SetDefaults registers the default value of every key on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("seed", seed.Disabled)
	v.SetDefault("log_level", "info")

	v.SetDefault("paths.outputs", "output")

	v.SetDefault("dataset.n_bins", datasets.DefaultNBins)
	v.SetDefault("dataset.n_tokens", datasets.DefaultNTokens)
	v.SetDefault("dataset.padding_value", datasets.DefaultPaddingValue)
	v.SetDefault("dataset.normalise_pitch", true)

	def := predictor.DefaultConfig()
	v.SetDefault("model.token_vocab_size", def.TokenVocabSize)
	v.SetDefault("model.speaker_vocab_size", def.SpeakerVocabSize)
	v.SetDefault("model.emb_size", def.EmbSize)
	v.SetDefault("model.channels", def.Channels)
	v.SetDefault("model.dropout_rate", def.DropoutRate)

	v.SetDefault("training.epochs", 10)
	v.SetDefault("training.batch_size", 32)
	v.SetDefault("training.learning_rate", 1e-3)
	v.SetDefault("training.shuffle", true)
}

// Load reads the configuration file at path (if any) into v, applies
// environment overrides and decodes the result.
func Load(v *viper.Viper, path string) (*Root, error) {
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	var cfg Root
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

// DatasetOptions returns the dataset preparation options.
func (c *Root) DatasetOptions() datasets.Options {
	return datasets.Options{
		NBins:          c.Dataset.NBins,
		FMin:           c.Dataset.FMin,
		Scale:          c.Dataset.Scale,
		NTokens:        c.Dataset.NTokens,
		PaddingValue:   c.Dataset.PaddingValue,
		NormalisePitch: c.Dataset.NormalisePitch,
	}
}

// PredictorConfig returns the network configuration.
func (c *Root) PredictorConfig() predictor.Config {
	cfg := predictor.DefaultConfig()
	cfg.TokenVocabSize = c.Model.TokenVocabSize
	cfg.SpeakerVocabSize = c.Model.SpeakerVocabSize
	cfg.EmbSize = c.Model.EmbSize
	cfg.Channels = c.Model.Channels
	cfg.DropoutRate = c.Model.DropoutRate
	return cfg
}

// TrainConfig returns the training loop configuration.
func (c *Root) TrainConfig() predictor.TrainConfig {
	return predictor.TrainConfig{
		Epochs:       c.Training.Epochs,
		BatchSize:    c.Training.BatchSize,
		LearningRate: c.Training.LearningRate,
		Shuffle:      c.Training.Shuffle,
	}
}
