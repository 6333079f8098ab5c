package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete service configuration. Values come from
// defaults, then an optional YAML file, then environment overrides, in that
// order. Missing collaborator API keys are not a configuration error: the
// affected collaborator degrades to per-request error messages.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Deepgram DeepgramConfig `yaml:"deepgram"`
	LLM      LLMConfig      `yaml:"llm"`
	Turn     TurnConfig     `yaml:"turn"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig contains the HTTP/websocket server configuration.
type ServerConfig struct {
	Host           string   `yaml:"host"`
	Port           int      `yaml:"port"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// DeepgramConfig contains the speech-to-text collaborator configuration.
type DeepgramConfig struct {
	APIKey         string `yaml:"api_key"`
	Model          string `yaml:"model"`
	Language       string `yaml:"language"`
	Encoding       string `yaml:"encoding"`
	SampleRate     int    `yaml:"sample_rate"`
	UtteranceEndMS int    `yaml:"utterance_end_ms"`
}

// LLMConfig contains the response-generation collaborator configuration.
type LLMConfig struct {
	APIKey      string  `yaml:"api_key"`
	Model       string  `yaml:"model"`
	Temperature float32 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
	ResumePath  string  `yaml:"resume_path"`
}

// TurnConfig contains the sentence-boundary settings.
type TurnConfig struct {
	PauseMS int `yaml:"pause_ms"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the configuration the service runs with when no file and
// no environment overrides are present.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8000,
			AllowedOrigins: []string{
				"chrome-extension://",
				"http://localhost:3000",
				"http://localhost:8000",
			},
		},
		Deepgram: DeepgramConfig{
			Model:          "nova-2",
			Language:       "en-US",
			Encoding:       "opus",
			SampleRate:     16000,
			UtteranceEndMS: 1000,
		},
		LLM: LLMConfig{
			Model:       "llama3-70b-8192",
			Temperature: 0.7,
			MaxTokens:   150,
		},
		Turn: TurnConfig{
			PauseMS: 3000,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load builds the effective configuration. path may be empty; a missing
// file is only an error when a path was given explicitly.
func Load(path string) (*Config, error) {
	config := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	config.applyEnv()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// applyEnv layers environment variables over the loaded configuration.
// The names match what the browser extension's deployment docs use.
func (c *Config) applyEnv() {
	if v, ok := os.LookupEnv("HOST"); ok {
		c.Server.Host = v
	}
	if v, ok := os.LookupEnv("PORT"); ok {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.Port = port
		}
	}
	if v, ok := os.LookupEnv("DEEPGRAM_API_KEY"); ok {
		c.Deepgram.APIKey = v
	}
	if v, ok := os.LookupEnv("GROQ_API_KEY"); ok {
		c.LLM.APIKey = v
	}
	if v, ok := os.LookupEnv("LLM_MODEL"); ok {
		c.LLM.Model = v
	}
	if v, ok := os.LookupEnv("LLM_TEMPERATURE"); ok {
		if temperature, err := strconv.ParseFloat(v, 32); err == nil {
			c.LLM.Temperature = float32(temperature)
		}
	}
	if v, ok := os.LookupEnv("LLM_MAX_TOKENS"); ok {
		if maxTokens, err := strconv.Atoi(v); err == nil {
			c.LLM.MaxTokens = maxTokens
		}
	}
	if v, ok := os.LookupEnv("RESUME_PATH"); ok {
		c.LLM.ResumePath = v
	}
	if v, ok := os.LookupEnv("SENTENCE_END_PAUSE_MS"); ok {
		if pause, err := strconv.Atoi(v); err == nil {
			c.Turn.PauseMS = pause
		}
	}
}

// Validate performs validation of the configuration.
func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server config: %w", err)
	}
	if err := c.Deepgram.Validate(); err != nil {
		return fmt.Errorf("deepgram config: %w", err)
	}
	if err := c.LLM.Validate(); err != nil {
		return fmt.Errorf("llm config: %w", err)
	}
	if err := c.Turn.Validate(); err != nil {
		return fmt.Errorf("turn config: %w", err)
	}
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}
	return nil
}

func (s *ServerConfig) Validate() error {
	if s.Port < 1 || s.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", s.Port)
	}
	if s.Host == "" {
		return fmt.Errorf("host cannot be empty")
	}
	return nil
}

func (d *DeepgramConfig) Validate() error {
	switch d.SampleRate {
	case 8000, 16000, 24000, 32000, 48000:
	default:
		return fmt.Errorf("unsupported sample_rate %d", d.SampleRate)
	}
	if d.Model == "" {
		return fmt.Errorf("model cannot be empty")
	}
	if d.UtteranceEndMS < 0 {
		return fmt.Errorf("utterance_end_ms cannot be negative, got %d", d.UtteranceEndMS)
	}
	return nil
}

func (l *LLMConfig) Validate() error {
	if l.Model == "" {
		return fmt.Errorf("model cannot be empty")
	}
	if l.Temperature < 0 || l.Temperature > 2 {
		return fmt.Errorf("temperature must be between 0 and 2, got %g", l.Temperature)
	}
	if l.MaxTokens < 1 {
		return fmt.Errorf("max_tokens must be at least 1, got %d", l.MaxTokens)
	}
	return nil
}

func (t *TurnConfig) Validate() error {
	if t.PauseMS < 1 {
		return fmt.Errorf("pause_ms must be at least 1, got %d", t.PauseMS)
	}
	return nil
}

func (l *LoggingConfig) Validate() error {
	switch l.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level %q", l.Level)
	}
	switch l.Format {
	case "text", "json":
	default:
		return fmt.Errorf("unknown log format %q", l.Format)
	}
	return nil
}

// PauseThreshold returns the sentence-end pause as a duration.
func (t TurnConfig) PauseThreshold() time.Duration {
	return time.Duration(t.PauseMS) * time.Millisecond
}

// ResumeText returns the candidate resume used to ground LLM responses. A
// configured resume file wins; otherwise the built-in placeholder is used.
func (l LLMConfig) ResumeText() (string, error) {
	if l.ResumePath == "" {
		return defaultResume, nil
	}

	data, err := os.ReadFile(l.ResumePath)
	if err != nil {
		return "", fmt.Errorf("failed to read resume file %s: %w", l.ResumePath, err)
	}
	return string(data), nil
}

const defaultResume = `John Doe - Senior Software Engineer
- 5 years of experience in full-stack development
- Expert in Python, JavaScript, React, and FastAPI
- Strong background in machine learning and AI
- Previous roles at Tech Company A and Startup B
- Built scalable microservices handling millions of requests
- Led team of 4 engineers on critical projects`
