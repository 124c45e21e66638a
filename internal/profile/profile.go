package profile

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultAgent is the agents.yaml key read when no name is given
const DefaultAgent = "linkedin_scrape_agent"

// ErrInvalidProfile is returned for profiles missing required fields
var ErrInvalidProfile = errors.New("invalid agent profile")

// Agent describes the voice and interests generated content is written for
type Agent struct {
	Role       string   `yaml:"role"`
	Goal       string   `yaml:"goal"`
	Backstory  string   `yaml:"backstory"`
	AITopics   []string `yaml:"ai_topics"`
	BrandVoice string   `yaml:"brand_voice"`
}

// Load reads the named agent from an agents.yaml file
func Load(path, name string) (*Agent, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read profile: %w", err)
	}
	return Parse(data, name)
}

// Parse decodes the named agent from agents.yaml content
func Parse(data []byte, name string) (*Agent, error) {
	if name == "" {
		name = DefaultAgent
	}

	var agents map[string]*Agent
	if err := yaml.Unmarshal(data, &agents); err != nil {
		return nil, fmt.Errorf("failed to parse profile: %w", err)
	}

	agent, ok := agents[name]
	if !ok || agent == nil {
		return nil, fmt.Errorf("%w: agent %q not found", ErrInvalidProfile, name)
	}
	if err := agent.Validate(); err != nil {
		return nil, err
	}
	return agent, nil
}

// Validate checks that role, goal, backstory and ai_topics are present
func (a *Agent) Validate() error {
	var missing []string
	if strings.TrimSpace(a.Role) == "" {
		missing = append(missing, "role")
	}
	if strings.TrimSpace(a.Goal) == "" {
		missing = append(missing, "goal")
	}
	if strings.TrimSpace(a.Backstory) == "" {
		missing = append(missing, "backstory")
	}
	if len(a.AITopics) == 0 {
		missing = append(missing, "ai_topics")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrInvalidProfile, strings.Join(missing, ", "))
	}
	return nil
}

// SystemPrompt renders the agent as persona text for the LLM
func (a *Agent) SystemPrompt() string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are %s.\n", strings.TrimSpace(a.Role))
	fmt.Fprintf(&b, "Your goal: %s\n", strings.TrimSpace(a.Goal))
	fmt.Fprintf(&b, "Background: %s\n", strings.TrimSpace(a.Backstory))
	if v := strings.TrimSpace(a.BrandVoice); v != "" {
		fmt.Fprintf(&b, "Brand voice: %s\n", v)
	}
	return b.String()
}
