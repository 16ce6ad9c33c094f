package generative

import "time"

const (
	defaultBaseURL     = "https://api.openai.com/v1"
	defaultModel       = "gpt-4o-mini"
	defaultTemperature = 0.8
	defaultMaxTokens   = 600
	defaultTimeout     = 60 * time.Second
	defaultMaxRetries  = 2
)

// Config describes the OpenAI-compatible backend.
type Config struct {
	APIKey      string        `json:"api_key,omitempty"     yaml:"api_key,omitempty"     env:"STORYLOOP_API_KEY"`
	BaseURL     string        `json:"base_url,omitempty"    yaml:"base_url,omitempty"    env:"STORYLOOP_BASE_URL"`
	Model       string        `json:"model,omitempty"       yaml:"model,omitempty"       env:"STORYLOOP_MODEL"`
	Temperature float64       `json:"temperature,omitempty" yaml:"temperature,omitempty" env:"STORYLOOP_TEMPERATURE"`
	MaxTokens   int           `json:"max_tokens,omitempty"  yaml:"max_tokens,omitempty"  env:"STORYLOOP_MAX_TOKENS"`
	Timeout     time.Duration `json:"timeout,omitempty"     yaml:"timeout,omitempty"     env:"STORYLOOP_TIMEOUT"`
	MaxRetries  int           `json:"max_retries,omitempty" yaml:"max_retries,omitempty" env:"STORYLOOP_MAX_RETRIES"`
}

// DefaultConfig targets gpt-4o-mini on the public OpenAI endpoint.
func DefaultConfig() Config {
	return Config{
		BaseURL:     defaultBaseURL,
		Model:       defaultModel,
		Temperature: defaultTemperature,
		MaxTokens:   defaultMaxTokens,
		Timeout:     defaultTimeout,
		MaxRetries:  defaultMaxRetries,
	}
}

// Merge applies non-zero values from source into c.
func (c *Config) Merge(source *Config) {
	if source.APIKey != "" {
		c.APIKey = source.APIKey
	}
	if source.BaseURL != "" {
		c.BaseURL = source.BaseURL
	}
	if source.Model != "" {
		c.Model = source.Model
	}
	if source.Temperature > 0 {
		c.Temperature = source.Temperature
	}
	if source.MaxTokens > 0 {
		c.MaxTokens = source.MaxTokens
	}
	if source.Timeout > 0 {
		c.Timeout = source.Timeout
	}
	if source.MaxRetries > 0 {
		c.MaxRetries = source.MaxRetries
	}
}
