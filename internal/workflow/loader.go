package workflow

import (
	"fmt"
	"os"
	"strings"

	"github.com/xela07ax/spaceai-orchestrator/internal/domain"
	"gopkg.in/yaml.v3"
)

type definitionsFile struct {
	Workflows []domain.WorkflowDefinition `yaml:"workflows"`
}

// LoadDefinitions читает шаблоны из YAML:
//
//	workflows:
//	  - id: onboarding
//	    name: Onboarding
//	    steps:
//	      - {role: researcher, label: Collect requirements}
func LoadDefinitions(path string) ([]domain.WorkflowDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read workflow definitions: %w", err)
	}
	return ParseDefinitions(data)
}

func ParseDefinitions(data []byte) ([]domain.WorkflowDefinition, error) {
	var f definitionsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse workflow definitions: %w", err)
	}
	for i := range f.Workflows {
		if err := f.Workflows[i].Validate(); err != nil {
			return nil, fmt.Errorf("workflow #%d (%q): %w", i, f.Workflows[i].Name, err)
		}
		if strings.TrimSpace(f.Workflows[i].ID) == "" {
			return nil, fmt.Errorf("workflow #%d (%q): %w", i, f.Workflows[i].Name, ErrDefinitionID)
		}
	}
	return f.Workflows, nil
}
