package llm

import (
	"errors"
	"testing"

	contractx "github.com/hierarch-ai/hrag/agent/contract"
)

func TestValidate(t *testing.T) {
	t.Parallel()

	cfg := Config{APIKey: "key", Model: "default/model"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	if err := (Config{Model: "m"}).Validate(); !errors.Is(err, contractx.ErrValidation) {
		t.Fatalf("missing api key: %v", err)
	}
	if err := (Config{APIKey: "k"}).Validate(); !errors.Is(err, contractx.ErrValidation) {
		t.Fatalf("missing model: %v", err)
	}
}

func TestOpenRouterForRoleOverrides(t *testing.T) {
	t.Parallel()

	cfg := Config{
		APIKey:                "key",
		Model:                 "default/model",
		Temperature:           0.5,
		SupervisorModel:       "router/model",
		SupervisorTemperature: 0.1,
		VectorTemperature:     -1,
	}

	sup := cfg.OpenRouterFor(RoleSupervisor)
	if sup.Model != "router/model" || sup.Temperature != 0.1 {
		t.Fatalf("supervisor config = %+v", sup)
	}

	// Roles without overrides fall back to the defaults.
	vec := cfg.OpenRouterFor(RoleVector)
	if vec.Model != "default/model" || vec.Temperature != 0.5 {
		t.Fatalf("vector config = %+v", vec)
	}

	sqlCfg := cfg.OpenRouterFor(RoleSQL)
	if sqlCfg.Model != "default/model" {
		t.Fatalf("sql config = %+v", sqlCfg)
	}
}
