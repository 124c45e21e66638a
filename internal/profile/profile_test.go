package profile

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const agentsYAML = `linkedin_scrape_agent:
  role: AI practitioner
  goal: Share practical lessons
  backstory: Ten years building ML systems
  brand_voice: direct and friendly
  ai_topics:
    - LLM
    - RAG
`

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agents.yaml")
	if err := os.WriteFile(path, []byte(agentsYAML), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}

	agent, err := Load(path, "")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if agent.Role != "AI practitioner" || len(agent.AITopics) != 2 {
		t.Fatalf("unexpected agent %+v", agent)
	}

	prompt := agent.SystemPrompt()
	for _, want := range []string{"You are AI practitioner.", "Brand voice: direct and friendly"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q:\n%s", want, prompt)
		}
	}
}

func TestParseMissingFields(t *testing.T) {
	_, err := Parse([]byte("linkedin_scrape_agent:\n  role: x\n"), "")
	if !errors.Is(err, ErrInvalidProfile) {
		t.Fatalf("expected ErrInvalidProfile, got %v", err)
	}
	if !strings.Contains(err.Error(), "goal, backstory, ai_topics") {
		t.Errorf("expected missing field list, got %v", err)
	}
}

func TestParseUnknownAgent(t *testing.T) {
	if _, err := Parse([]byte(agentsYAML), "other"); !errors.Is(err, ErrInvalidProfile) {
		t.Fatalf("expected ErrInvalidProfile, got %v", err)
	}
}
