package llm

import (
	"fmt"
	"strings"
	"time"

	contractx "github.com/hierarch-ai/hrag/agent/contract"
	openrouterx "github.com/hierarch-ai/hrag/pkg/openrouter"
)

// Role names a model consumer inside the engine. Each role can override the
// default model and temperature independently.
type Role string

const (
	RoleSupervisor Role = "supervisor"
	RoleSQL        Role = "sql"
	RoleVector     Role = "vector"
)

type Config struct {
	BaseURL            string        `envconfig:"BASE_URL" split_words:"true" default:"https://openrouter.ai/api/v1"`
	APIKey             string        `envconfig:"API_KEY" split_words:"true" required:"true"`
	Model              string        `envconfig:"MODEL" split_words:"true" required:"true"`
	MaxCompletionToken int           `envconfig:"MAX_COMPLETION_TOKEN" split_words:"true" default:"2000"`
	Temperature        float32       `envconfig:"TEMPERATURE" split_words:"true" default:"0.5"`
	Timeout            time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"30s"`

	SupervisorModel       string  `envconfig:"SUPERVISOR_MODEL" split_words:"true"`
	SQLModel              string  `envconfig:"SQL_MODEL" split_words:"true"`
	VectorModel           string  `envconfig:"VECTOR_MODEL" split_words:"true"`
	SupervisorTemperature float32 `envconfig:"SUPERVISOR_TEMPERATURE" split_words:"true" default:"-1"`
	SQLTemperature        float32 `envconfig:"SQL_TEMPERATURE" split_words:"true" default:"-1"`
	VectorTemperature     float32 `envconfig:"VECTOR_TEMPERATURE" split_words:"true" default:"-1"`
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.APIKey) == "" {
		return fmt.Errorf("%w: openrouter api key is required", contractx.ErrValidation)
	}
	if strings.TrimSpace(c.Model) == "" {
		return fmt.Errorf("%w: default model is required", contractx.ErrValidation)
	}
	return nil
}

// OpenRouterFor resolves the effective model settings for one role.
func (c Config) OpenRouterFor(role Role) openrouterx.Config {
	modelName := strings.TrimSpace(c.Model)
	temp := c.Temperature

	switch role {
	case RoleSupervisor:
		if v := strings.TrimSpace(c.SupervisorModel); v != "" {
			modelName = v
		}
		if c.SupervisorTemperature >= 0 {
			temp = c.SupervisorTemperature
		}
	case RoleSQL:
		if v := strings.TrimSpace(c.SQLModel); v != "" {
			modelName = v
		}
		if c.SQLTemperature >= 0 {
			temp = c.SQLTemperature
		}
	case RoleVector:
		if v := strings.TrimSpace(c.VectorModel); v != "" {
			modelName = v
		}
		if c.VectorTemperature >= 0 {
			temp = c.VectorTemperature
		}
	}

	maxCompletionToken := c.MaxCompletionToken
	return openrouterx.Config{
		BaseURL:            strings.TrimSpace(c.BaseURL),
		APIKey:             strings.TrimSpace(c.APIKey),
		Model:              modelName,
		MaxCompletionToken: &maxCompletionToken,
		Temperature:        temp,
		Timeout:            c.Timeout,
	}
}
