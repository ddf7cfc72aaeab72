package domain

import (
	"errors"
	"time"
)

type DeploymentStatus string

const (
	DeploymentDraft     DeploymentStatus = "draft"
	DeploymentPublished DeploymentStatus = "published"
)

var (
	ErrEmptyWorkflow     = errors.New("workflow must have at least one step")
	ErrWorkflowPublished = errors.New("workflow already published")
	ErrWorkflowName      = errors.New("workflow name is required")
)

// WorkflowStep описывает шаг шаблона: какая роль и что делает.
type WorkflowStep struct {
	Role  string `json:"role" yaml:"role"`
	Label string `json:"label" yaml:"label"`
}

// WorkflowDefinition: неизменяемый шаблон, по которому идёт прогон.
type WorkflowDefinition struct {
	ID      string           `json:"id" yaml:"id"`
	Name    string           `json:"name" yaml:"name"`
	Steps   []WorkflowStep   `json:"steps" yaml:"steps"`
	Status  DeploymentStatus `json:"deployment_status" yaml:"-"`
	Version int              `json:"version" yaml:"-"`

	CreatedAt time.Time `json:"created_at" yaml:"-"`
	UpdatedAt time.Time `json:"updated_at" yaml:"-"`
}

func (d *WorkflowDefinition) Validate() error {
	if d.Name == "" {
		return ErrWorkflowName
	}
	if len(d.Steps) == 0 {
		return ErrEmptyWorkflow
	}
	return nil
}
