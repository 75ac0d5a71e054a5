package prex

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// FileConfig is the on-disk session configuration. All fields are
// optional; zero values keep the built-in defaults.
type FileConfig struct {
	Target    string `yaml:"target"`
	Mode      string `yaml:"mode"` // pjl, pcl or ps
	TimeoutMS int    `yaml:"timeout_ms"`
	Volume    string `yaml:"volume"`
	ChunkSize int    `yaml:"chunk_size"`
	Feedback  string `yaml:"feedback"` // auto, normal, crippled, none
	Status     bool   `yaml:"status"`
	Exceptions bool   `yaml:"exceptions"`
	Fuzz       bool   `yaml:"fuzz"`
	LogFile   string `yaml:"log_file"`

	Jump struct {
		Addr     string `yaml:"addr"`
		User     string `yaml:"user"`
		Password string `yaml:"password"`
		KeyFile  string `yaml:"key_file"`
	} `yaml:"jump"`

	Fuzzer *FuzzCatalog `yaml:"fuzzer"`
}

// LoadConfig reads a YAML session configuration.
func LoadConfig(path string) (*FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var fc FileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &fc, nil
}

// Options translates the file configuration to session options.
func (fc *FileConfig) Options() ([]Option, error) {
	var opts []Option
	if fc.TimeoutMS > 0 {
		opts = append(opts, WithTimeout(time.Duration(fc.TimeoutMS)*time.Millisecond))
	}
	if fc.Volume != "" {
		opts = append(opts, WithVolume(fc.Volume))
	}
	if fc.ChunkSize > 0 {
		opts = append(opts, WithChunkSize(fc.ChunkSize))
	}
	if fc.Feedback != "" {
		fb, err := ParseFeedback(fc.Feedback)
		if err != nil {
			return nil, err
		}
		opts = append(opts, WithFeedback(fb))
	}
	if fc.Status {
		opts = append(opts, WithStatus())
	}
	if fc.Exceptions {
		opts = append(opts, WithExceptions())
	}
	if fc.Fuzz {
		opts = append(opts, WithFuzz())
	}
	if fc.LogFile != "" {
		opts = append(opts, WithLogFile(fc.LogFile))
	}
	return opts, nil
}

// ParseFeedback maps a config string to a feedback mode.
func ParseFeedback(s string) (Feedback, error) {
	switch s {
	case "auto", "":
		return FeedbackAuto, nil
	case "normal":
		return FeedbackNormal, nil
	case "crippled":
		return FeedbackCrippled, nil
	case "none":
		return FeedbackNone, nil
	}
	return FeedbackAuto, fmt.Errorf("unknown feedback mode %q", s)
}
