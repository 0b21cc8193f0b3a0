package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

const envPrefix = "SOPRANO_"

type Provider string

const (
	ProviderLocal  Provider = "local"
	ProviderOpenAI Provider = "openai"
)

type Config struct {
	// Provider selects the language model behind the dialogue. local runs
	// the keyword completer only.
	Provider Provider       `koanf:"provider"`
	Language string         `koanf:"language"`
	OpenAI   OpenAIConfig   `koanf:"openai"`
	Dialogue DialogueConfig `koanf:"dialogue"`
	Trace    TraceConfig    `koanf:"trace"`
}

type OpenAIConfig struct {
	APIKey             string `koanf:"api_key"`
	BaseURL            string `koanf:"base_url"`
	ChatModel          string `koanf:"chat_model"`
	TranscriptionModel string `koanf:"transcription_model"`
	SpeechModel        string `koanf:"speech_model"`
	Voice              string `koanf:"voice"`
}

type DialogueConfig struct {
	SettleDelay   time.Duration `koanf:"settle_delay"`
	HistoryWindow int           `koanf:"history_window"`
	// ConfirmBeforeSubmit overrides the per-form setting when set.
	ConfirmBeforeSubmit *bool `koanf:"confirm_before_submit"`
}

type TraceConfig struct {
	// Path of the SQLite trace database. Empty disables tracing.
	Path string `koanf:"path"`
}

func DefaultConfig() *Config {
	return &Config{
		Provider: ProviderLocal,
		Language: "en",
		OpenAI: OpenAIConfig{
			ChatModel:          "gpt-4o-mini",
			TranscriptionModel: "whisper-1",
			SpeechModel:        "tts-1",
			Voice:              "alloy",
		},
		Dialogue: DialogueConfig{
			SettleDelay:   300 * time.Millisecond,
			HistoryWindow: 6,
		},
	}
}

// Load reads the YAML file at path, when it exists, over the defaults and
// then applies SOPRANO_* environment overrides. A double underscore nests:
// SOPRANO_OPENAI__CHAT_MODEL sets openai.chat_model.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	cfg := DefaultConfig()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("reading config %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("accessing config %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		key := strings.ToLower(strings.TrimPrefix(s, envPrefix))
		return strings.ReplaceAll(key, "__", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("loading env overrides: %w", err)
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}
	if cfg.OpenAI.APIKey == "" {
		cfg.OpenAI.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.Provider {
	case ProviderLocal:
	case ProviderOpenAI:
		if c.OpenAI.APIKey == "" {
			return fmt.Errorf("provider openai needs openai.api_key or OPENAI_API_KEY")
		}
		if c.OpenAI.ChatModel == "" {
			return fmt.Errorf("openai.chat_model is required")
		}
	case "":
		return fmt.Errorf("provider is required")
	default:
		return fmt.Errorf("invalid provider %q: must be one of local, openai", c.Provider)
	}
	if c.Language == "" {
		return fmt.Errorf("language is required")
	}
	if _, err := language.Parse(c.Language); err != nil {
		return fmt.Errorf("invalid language %q: %w", c.Language, err)
	}
	if c.Dialogue.SettleDelay < 0 {
		return fmt.Errorf("dialogue.settle_delay must be non-negative")
	}
	if c.Dialogue.HistoryWindow < 0 {
		return fmt.Errorf("dialogue.history_window must be non-negative")
	}
	return nil
}

// LanguageName is the English name of Language ("hi" -> "Hindi") for the
// model prompt. Language itself stays an ISO code for transcription.
func (c *Config) LanguageName() string {
	tag, err := language.Parse(c.Language)
	if err != nil {
		return c.Language
	}
	if name := display.English.Languages().Name(tag); name != "" {
		return name
	}
	return c.Language
}
