package log

import (
	"fmt"
	"log/slog"
	"strings"
)

// Config describes a logger declaratively.
type Config struct {
	// Level is one of debug|info|warn|error.
	Level string `json:"level" yaml:"level"`
	// Format is text or json.
	Format string `json:"format" yaml:"format"`
	// Outputs lists destinations: "stderr", "stdout", "null" or a file path.
	// Empty means stderr.
	Outputs []string `json:"outputs,omitempty" yaml:"outputs,omitempty"`
	// Redact lists field keys replaced by "[REDACTED]".
	Redact []string `json:"redact,omitempty" yaml:"redact,omitempty"`
	// SampleInitial and SampleThereafter enable per-message sampling when
	// SampleThereafter > 0.
	SampleInitial    int `json:"sampleInitial,omitempty" yaml:"sampleInitial,omitempty"`
	SampleThereafter int `json:"sampleThereafter,omitempty" yaml:"sampleThereafter,omitempty"`
	// ShowCaller adds caller locations.
	ShowCaller bool `json:"showCaller,omitempty" yaml:"showCaller,omitempty"`
}

// ApplyConfig builds a Logger from cfg.
func ApplyConfig(cfg *Config) (Logger, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	var formatter Formatter
	switch strings.ToLower(cfg.Format) {
	case "", "text":
		formatter = &TextFormatter{ShowCaller: cfg.ShowCaller}
	case "json":
		formatter = &JSONFormatter{ShowCaller: cfg.ShowCaller}
	default:
		return nil, fmt.Errorf("log: unknown format %q", cfg.Format)
	}

	opts := []LoggerOption{WithLevel(level), WithFormatter(formatter)}
	for _, dest := range cfg.Outputs {
		switch dest {
		case "", "stderr":
			opts = append(opts, WithOutput(NewConsoleOutput()))
		case "stdout":
			opts = append(opts, WithOutput(NewWriterOutput(stdout())))
		case "null":
			opts = append(opts, WithOutput(NullOutput{}))
		default:
			fo, err := NewFileOutput(dest)
			if err != nil {
				return nil, fmt.Errorf("log: open output %s: %w", dest, err)
			}
			opts = append(opts, WithOutput(fo))
		}
	}

	logger := NewLogger(opts...).(*BaseLogger)
	h := newBridgeHandler(logger).withRedactions(cfg.Redact).withSampler(cfg.SampleInitial, cfg.SampleThereafter)
	logger.slogLogger = slog.New(h)
	return logger, nil
}
