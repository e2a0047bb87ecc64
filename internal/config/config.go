// Package config loads agent settings from an optional YAML file and the
// environment. Environment variables win over the file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/jakesimonds/Creator/internal/action"
	"github.com/jakesimonds/Creator/internal/command"
	"github.com/jakesimonds/Creator/internal/generator"
)

// FileEnv names the environment variable holding the config file path.
const FileEnv = "CREATOR_CONFIG_FILE"

// Generator backends.
const (
	BackendHTTP = "http"
	BackendMCP  = "mcp"
)

// Config is the full agent configuration.
type Config struct {
	Listen    string          `yaml:"listen" env:"CREATOR_LISTEN"`
	Command   CommandConfig   `yaml:"command"`
	Action    ActionConfig    `yaml:"action"`
	Generator GeneratorConfig `yaml:"generator"`
	MCP       MCPConfig       `yaml:"mcp"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// CommandConfig tunes trigger and confirmation matching.
type CommandConfig struct {
	TriggerPhrases     []string      `yaml:"trigger_phrases" env:"CREATOR_TRIGGER_PHRASES" envSeparator:","`
	Affirmative        []string      `yaml:"affirmative" env:"CREATOR_AFFIRMATIVE" envSeparator:","`
	Negative           []string      `yaml:"negative" env:"CREATOR_NEGATIVE" envSeparator:","`
	CollectWindow      time.Duration `yaml:"collect_window" env:"CREATOR_COLLECT_WINDOW"`
	TranscriptDuration time.Duration `yaml:"transcript_duration" env:"CREATOR_TRANSCRIPT_DURATION"`
	PromptDuration     time.Duration `yaml:"prompt_duration" env:"CREATOR_PROMPT_DURATION"`
	RepromptDuration   time.Duration `yaml:"reprompt_duration" env:"CREATOR_REPROMPT_DURATION"`
	NoticeDuration     time.Duration `yaml:"notice_duration" env:"CREATOR_NOTICE_DURATION"`
}

// ActionConfig tunes the feedback shown while a model is generated.
type ActionConfig struct {
	StartDuration  time.Duration `yaml:"start_duration" env:"CREATOR_START_DURATION"`
	ProgressTotal  time.Duration `yaml:"progress_total" env:"CREATOR_PROGRESS_TOTAL"`
	ProgressFrames int           `yaml:"progress_frames" env:"CREATOR_PROGRESS_FRAMES"`
	// FramesDir holds image frames shown instead of text progress.
	FramesDir      string        `yaml:"frames_dir" env:"CREATOR_FRAMES_DIR"`
	ResultDuration time.Duration `yaml:"result_duration" env:"CREATOR_RESULT_DURATION"`
}

type GeneratorConfig struct {
	Backend      string        `yaml:"backend" env:"CREATOR_GENERATOR_BACKEND"`
	URL          string        `yaml:"url" env:"CREATOR_GENERATOR_URL"`
	APIKey       string        `yaml:"api_key" env:"CREATOR_GENERATOR_API_KEY"`
	Mode         string        `yaml:"mode" env:"CREATOR_GENERATOR_MODE"`
	ArtStyle     string        `yaml:"art_style" env:"CREATOR_GENERATOR_ART_STYLE"`
	ShouldRemesh bool          `yaml:"should_remesh" env:"CREATOR_GENERATOR_SHOULD_REMESH"`
	Timeout      time.Duration `yaml:"timeout" env:"CREATOR_GENERATOR_TIMEOUT"`
}

type MCPConfig struct {
	// URL is the generation MCP server used when Generator.Backend is mcp.
	URL string `yaml:"url" env:"CREATOR_MCP_URL"`
	// Command, when set, is spawned instead of dialing URL and spoken to
	// over stdio, e.g. `creator mcp --stdio`.
	Command string            `yaml:"command" env:"CREATOR_MCP_COMMAND"`
	Args    []string          `yaml:"args" env:"CREATOR_MCP_ARGS" envSeparator:" "`
	Env     map[string]string `yaml:"env"`
	// Listen is the address of `creator mcp`.
	Listen string `yaml:"listen" env:"CREATOR_MCP_LISTEN"`
}

type TelemetryConfig struct {
	Enabled     bool   `yaml:"enabled" env:"CREATOR_OTEL_ENABLED"`
	Endpoint    string `yaml:"endpoint" env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	ServiceName string `yaml:"service_name" env:"OTEL_SERVICE_NAME"`
}

// Default returns the stock configuration.
func Default() *Config {
	cmd := command.DefaultConfig()
	act := action.DefaultConfig()
	return &Config{
		Listen: ":8080",
		Command: CommandConfig{
			TriggerPhrases:     cmd.TriggerPhrases,
			Affirmative:        cmd.Affirmative,
			Negative:           cmd.Negative,
			CollectWindow:      cmd.CollectWindow,
			TranscriptDuration: cmd.TranscriptDuration,
			PromptDuration:     cmd.PromptDuration,
			RepromptDuration:   cmd.RepromptDuration,
			NoticeDuration:     cmd.NoticeDuration,
		},
		Action: ActionConfig{
			StartDuration:  act.StartDuration,
			ProgressTotal:  act.ProgressTotal,
			ProgressFrames: act.ProgressFrames,
			ResultDuration: act.ResultDuration,
		},
		Generator: GeneratorConfig{
			Backend:  BackendHTTP,
			Mode:     generator.DefaultMode,
			ArtStyle: generator.DefaultArtStyle,
			Timeout:  30 * time.Second,
		},
		MCP:       MCPConfig{Listen: ":9001"},
		Telemetry: TelemetryConfig{ServiceName: "creator"},
	}
}

// Load returns defaults overlaid with the YAML file at path, then the
// environment. An empty path falls back to CREATOR_CONFIG_FILE; a missing
// file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		path = os.Getenv(FileEnv)
	}
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("failed to read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
		}
	}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	if len(nonBlank(c.Command.TriggerPhrases)) == 0 {
		errs = append(errs, errors.New("command.trigger_phrases: at least one phrase required"))
	}
	if len(nonBlank(c.Command.Affirmative)) == 0 {
		errs = append(errs, errors.New("command.affirmative: at least one token required"))
	}
	if len(nonBlank(c.Command.Negative)) == 0 {
		errs = append(errs, errors.New("command.negative: at least one token required"))
	}
	if c.Command.CollectWindow < 0 {
		errs = append(errs, errors.New("command.collect_window: must not be negative"))
	}
	for name, d := range map[string]time.Duration{
		"command.transcript_duration": c.Command.TranscriptDuration,
		"command.prompt_duration":     c.Command.PromptDuration,
		"command.reprompt_duration":   c.Command.RepromptDuration,
		"command.notice_duration":     c.Command.NoticeDuration,
		"action.start_duration":       c.Action.StartDuration,
		"action.result_duration":      c.Action.ResultDuration,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s: must be positive", name))
		}
	}
	if c.Action.ProgressTotal < 0 || c.Action.ProgressFrames < 0 {
		errs = append(errs, errors.New("action: progress settings must not be negative"))
	}
	switch c.Generator.Backend {
	case BackendHTTP:
		if c.Generator.URL == "" {
			errs = append(errs, errors.New("generator.url: required for the http backend"))
		}
	case BackendMCP:
		if c.MCP.URL == "" && c.MCP.Command == "" {
			errs = append(errs, errors.New("mcp.url or mcp.command: required for the mcp backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("generator.backend: unknown backend %q", c.Generator.Backend))
	}
	return errors.Join(errs...)
}

// Machine returns the state machine configuration.
func (c CommandConfig) Machine() command.Config {
	return command.Config{
		TriggerPhrases:     nonBlank(c.TriggerPhrases),
		Affirmative:        nonBlank(c.Affirmative),
		Negative:           nonBlank(c.Negative),
		CollectWindow:      c.CollectWindow,
		TranscriptDuration: c.TranscriptDuration,
		PromptDuration:     c.PromptDuration,
		RepromptDuration:   c.RepromptDuration,
		NoticeDuration:     c.NoticeDuration,
	}
}

// Orchestrator returns the orchestrator configuration. Image frames, when
// given, replace the text progress frames.
func (c ActionConfig) Orchestrator(frames []action.Frame) action.Config {
	return action.Config{
		StartDuration:  c.StartDuration,
		ProgressTotal:  c.ProgressTotal,
		ProgressFrames: c.ProgressFrames,
		Frames:         frames,
		ResultDuration: c.ResultDuration,
	}
}

// HTTP returns the HTTP generator client configuration.
func (c GeneratorConfig) HTTP() generator.HTTPConfig {
	return generator.HTTPConfig{
		URL:          c.URL,
		APIKey:       c.APIKey,
		Mode:         c.Mode,
		ArtStyle:     c.ArtStyle,
		ShouldRemesh: c.ShouldRemesh,
		Timeout:      c.Timeout,
	}
}

func nonBlank(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
