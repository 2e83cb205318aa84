// Package config handles configuration loading using viper.
package config

import (
	"github.com/pktpipe/pktdump/internal/log"
	"github.com/pktpipe/pktdump/internal/pipeline"
)

// Config is the top-level configuration.
type Config struct {
	Log      *log.Config    `mapstructure:"log"`
	Input    InputConfig    `mapstructure:"input"`
	Pipeline PipelineConfig `mapstructure:"pipeline"`
	Stages   []StageConfig  `mapstructure:"stages"`
}

// InputConfig names the capture source to replay.
type InputConfig struct {
	Path string `mapstructure:"path"`
}

// PipelineConfig tunes the engine.
type PipelineConfig struct {
	MaxStages        int  `mapstructure:"max_stages"`
	StopOnStageError bool `mapstructure:"stop_on_stage_error"`
}

// StageConfig names one stage and carries its options verbatim; the
// stage factory decodes them.
type StageConfig struct {
	Name    string                 `mapstructure:"name"`
	Options map[string]interface{} `mapstructure:"options"`
}

func applyDefaults(cfg *Config) {
	if cfg.Log == nil {
		cfg.Log = log.DefaultConfig()
	}
	if cfg.Pipeline.MaxStages == 0 {
		cfg.Pipeline.MaxStages = pipeline.DefaultMaxStages
	}
}
