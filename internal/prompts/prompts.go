// Package prompts loads the system prompt for each workflow role. Built-in
// prompts are embedded in the binary; a YAML file can override any of them.
package prompts

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"researchnerd/internal/logging"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// Role names a prompt key in the YAML file.
type Role string

const (
	Coordinator Role = "coordinator"
	Researcher  Role = "researcher"
	Synthesizer Role = "synthesizer"
	Critic      Role = "critic"
)

// Roles lists every role in workflow order.
var Roles = []Role{Coordinator, Researcher, Synthesizer, Critic}

// DatePlaceholder is replaced with the load date.
const DatePlaceholder = "{current_date}"

// stageRoles maps workflow stage names onto prompt roles.
var stageRoles = map[string]Role{
	"decompose":  Coordinator,
	"research":   Researcher,
	"synthesize": Synthesizer,
	"critique":   Critic,
}

// RoleForStage returns the prompt role used by a workflow stage.
func RoleForStage(stage string) (Role, bool) {
	r, ok := stageRoles[stage]
	return r, ok
}

// Set is the loaded prompt for every role. It is read-only after Load.
type Set struct {
	prompts map[Role]string
	Source  string // "embedded" or the override path
}

// Get returns the prompt for a role.
func (s *Set) Get(r Role) string {
	return s.prompts[r]
}

// ForStage returns the prompt for a workflow stage name.
func (s *Set) ForStage(stage string) (string, error) {
	r, ok := RoleForStage(stage)
	if !ok {
		return "", fmt.Errorf("no prompt role for stage %q", stage)
	}
	return s.prompts[r], nil
}

// Load reads the embedded defaults, overlays path when non-empty and
// substitutes the date placeholder using now.
func Load(path string, now time.Time) (*Set, error) {
	merged, err := parse(defaultsYAML)
	if err != nil {
		return nil, fmt.Errorf("failed to parse embedded prompts: %w", err)
	}
	source := "embedded"

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read prompts file: %w", err)
		}
		override, err := parse(data)
		if err != nil {
			return nil, fmt.Errorf("failed to parse prompts file %s: %w", path, err)
		}
		for k, v := range override {
			merged[k] = v
		}
		source = path
		logging.BootDebug("Loaded %d prompt overrides from %s", len(override), path)
	}

	set := &Set{prompts: make(map[Role]string, len(Roles)), Source: source}
	date := now.Format("2006-01-02")
	for _, r := range Roles {
		p := strings.TrimSpace(merged[string(r)])
		if p == "" {
			return nil, fmt.Errorf("prompt %q is missing or empty", r)
		}
		set.prompts[r] = strings.ReplaceAll(p, DatePlaceholder, date)
	}
	return set, nil
}

// Default returns the embedded prompts dated now.
func Default() *Set {
	s, err := Load("", time.Now())
	if err != nil {
		panic(err)
	}
	return s
}

func parse(data []byte) (map[string]string, error) {
	out := map[string]string{}
	if err := yaml.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}
