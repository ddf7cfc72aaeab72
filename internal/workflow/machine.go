// Package workflow ведёт линейный прогон по шагам шаблона и хранит сами шаблоны.
package workflow

import (
	"maps"
	"slices"
	"sync"

	"github.com/xela07ax/spaceai-orchestrator/internal/domain"
)

// Run: текущий прогон. Живёт только в памяти и не персистится.
type Run struct {
	Definition       domain.WorkflowDefinition
	CurrentStepIndex int
	Context          map[string]any
}

// Snapshot: проекция прогона наружу.
type Snapshot struct {
	Definition  domain.WorkflowDefinition `json:"definition"`
	CurrentStep domain.WorkflowStep       `json:"current_step"`
	StepIndex   int                       `json:"step_index"`
	Progress    float64                   `json:"progress"`
	Context     map[string]any            `json:"context,omitempty"`
}

// Machine держит не больше одного активного прогона.
// Завершение не является состоянием: после последнего шага прогона просто нет.
type Machine struct {
	mu  sync.Mutex
	run *Run
}

func NewMachine() *Machine {
	return &Machine{}
}

// Start начинает прогон с нулевого шага, заменяя текущий, если он был.
func (m *Machine) Start(def domain.WorkflowDefinition, ctx map[string]any) (*Snapshot, error) {
	if err := def.Validate(); err != nil {
		return nil, err
	}

	def.Steps = slices.Clone(def.Steps)

	m.mu.Lock()
	defer m.mu.Unlock()

	m.run = &Run{
		Definition: def,
		Context:    maps.Clone(ctx),
	}
	return m.snapshot(), nil
}

// NextStep сдвигает индекс. Выход за последний шаг завершает прогон и возвращает nil.
func (m *Machine) NextStep() *Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.run == nil {
		return nil
	}

	next := m.run.CurrentStepIndex + 1
	if next >= len(m.run.Definition.Steps) {
		m.run = nil
		return nil
	}

	m.run.CurrentStepIndex = next
	return m.snapshot()
}

func (m *Machine) State() *Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshot()
}

func (m *Machine) Active() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.run != nil
}

func (m *Machine) snapshot() *Snapshot {
	if m.run == nil {
		return nil
	}
	idx := m.run.CurrentStepIndex
	def := m.run.Definition
	def.Steps = slices.Clone(def.Steps)
	steps := def.Steps
	return &Snapshot{
		Definition:  def,
		CurrentStep: steps[idx],
		StepIndex:   idx,
		Progress:    float64(idx) / float64(len(steps)) * 100,
		Context:     maps.Clone(m.run.Context),
	}
}
