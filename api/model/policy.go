package model

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

const DefaultPriority = "standard"

// SLAPolicy maps a job priority to the target minutes of each stage.
// Stages are started in the listed order.
type SLAPolicy struct {
	Stages     []Stage                      `yaml:"stages" json:"stages"`
	Priorities map[string]map[Stage]float64 `yaml:"priorities" json:"priorities"`
}

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

func DefaultSLAPolicy() *SLAPolicy {
	return &SLAPolicy{
		Stages: []Stage{StageDispatch, StageArrival, StageCompletion},
		Priorities: map[string]map[Stage]float64{
			"standard": {
				StageDispatch:   30,
				StageArrival:    120,
				StageCompletion: 240,
			},
			"emergency": {
				StageDispatch:   10,
				StageArrival:    45,
				StageCompletion: 120,
			},
		},
	}
}

func LoadSLAPolicy(path string) (*SLAPolicy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	var p SLAPolicy
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &p, nil
}

func (p *SLAPolicy) Validate() error {
	if len(p.Stages) == 0 {
		return &ValidationError{Field: "stages", Message: "at least one stage is required"}
	}
	seen := make(map[Stage]bool, len(p.Stages))
	for _, s := range p.Stages {
		if s == "" {
			return &ValidationError{Field: "stages", Message: "stage name is empty"}
		}
		if seen[s] {
			return &ValidationError{Field: "stages", Message: fmt.Sprintf("duplicate stage %q", s)}
		}
		seen[s] = true
	}
	if len(p.Priorities) == 0 {
		return &ValidationError{Field: "priorities", Message: "at least one priority is required"}
	}
	for name, targets := range p.Priorities {
		for _, s := range p.Stages {
			minutes, ok := targets[s]
			if !ok {
				return &ValidationError{Field: "priorities." + name, Message: fmt.Sprintf("missing target for stage %q", s)}
			}
			if minutes <= 0 {
				return &ValidationError{Field: "priorities." + name + "." + string(s), Message: "target must be positive"}
			}
		}
	}
	return nil
}

func (p *SLAPolicy) HasPriority(priority string) bool {
	_, ok := p.Priorities[priority]
	return ok
}

// Target returns the target minutes for a stage at the given priority.
func (p *SLAPolicy) Target(priority string, stage Stage) (float64, bool) {
	targets, ok := p.Priorities[priority]
	if !ok {
		return 0, false
	}
	minutes, ok := targets[stage]
	return minutes, ok
}

// NextStage returns the stage that follows s, or "" when s is the last one
// or not part of the policy.
func (p *SLAPolicy) NextStage(s Stage) Stage {
	for i, st := range p.Stages {
		if st == s && i+1 < len(p.Stages) {
			return p.Stages[i+1]
		}
	}
	return ""
}

func (p *SLAPolicy) FirstStage() Stage {
	if len(p.Stages) == 0 {
		return ""
	}
	return p.Stages[0]
}
