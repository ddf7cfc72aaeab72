package workflow

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xela07ax/spaceai-orchestrator/internal/domain"
)

func threeSteps() domain.WorkflowDefinition {
	return domain.WorkflowDefinition{
		ID:   "wf-1",
		Name: "Content pipeline",
		Steps: []domain.WorkflowStep{
			{Role: "researcher", Label: "Collect sources"},
			{Role: "writer", Label: "Draft article"},
			{Role: "editor", Label: "Review"},
		},
	}
}

func TestMachine_RunsToCompletion(t *testing.T) {
	m := NewMachine()

	snap, err := m.Start(threeSteps(), map[string]any{"topic": "go"})
	require.NoError(t, err)
	assert.Equal(t, 0, snap.StepIndex)
	assert.Zero(t, snap.Progress)

	snap = m.NextStep()
	require.NotNil(t, snap)
	assert.Equal(t, "writer", snap.CurrentStep.Role)
	assert.InDelta(t, 33.3, snap.Progress, 0.1)

	snap = m.NextStep()
	require.NotNil(t, snap)
	assert.Equal(t, "editor", snap.CurrentStep.Role)
	assert.InDelta(t, 66.7, snap.Progress, 0.1)
	assert.Equal(t, "go", snap.Context["topic"])

	assert.Nil(t, m.NextStep(), "advancing past the last step completes the run")
	assert.Nil(t, m.State())
	assert.False(t, m.Active())
	assert.Nil(t, m.NextStep(), "no run, nothing to advance")
}

func TestMachine_RejectsEmptyDefinition(t *testing.T) {
	m := NewMachine()
	_, err := m.Start(domain.WorkflowDefinition{Name: "empty"}, nil)
	require.ErrorIs(t, err, domain.ErrEmptyWorkflow)
	assert.Nil(t, m.State())
}

func TestMachine_SingleStepCompletesOnFirstAdvance(t *testing.T) {
	m := NewMachine()
	_, err := m.Start(domain.WorkflowDefinition{Name: "one", Steps: []domain.WorkflowStep{{Role: "a", Label: "b"}}}, nil)
	require.NoError(t, err)
	assert.Nil(t, m.NextStep())
}

func TestMachine_StateIsAProjection(t *testing.T) {
	m := NewMachine()
	_, err := m.Start(threeSteps(), map[string]any{"k": "v"})
	require.NoError(t, err)

	s := m.State()
	s.Context["k"] = "mutated"
	assert.Equal(t, "v", m.State().Context["k"])
	assert.Equal(t, 0, m.State().StepIndex)
}

func TestMachine_StepsAreNotShared(t *testing.T) {
	m := NewMachine()
	def := threeSteps()
	_, err := m.Start(def, nil)
	require.NoError(t, err)

	// ни исходный шаблон, ни снимок не меняют живой прогон
	def.Steps[1].Role = "intruder"
	s := m.State()
	s.Definition.Steps[2].Role = "intruder"

	next := m.NextStep()
	require.NotNil(t, next)
	assert.Equal(t, "writer", next.CurrentStep.Role)
	assert.Equal(t, "editor", m.State().Definition.Steps[2].Role)
}

func TestMachine_ConcurrentAdvanceNeverOverruns(t *testing.T) {
	m := NewMachine()
	_, err := m.Start(threeSteps(), nil)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if s := m.NextStep(); s != nil {
				assert.Less(t, s.StepIndex, 3)
			}
		}()
	}
	wg.Wait()
	assert.Nil(t, m.State())
}

func newService() *Service {
	return NewService(NewMemoryStore(), zap.NewNop())
}

func TestService_PublishBumpsVersion(t *testing.T) {
	ctx := context.Background()
	svc := newService()

	def, err := svc.CreateDraft(ctx, "Support triage", threeSteps().Steps)
	require.NoError(t, err)
	assert.Equal(t, domain.DeploymentDraft, def.Status)
	assert.Equal(t, 0, def.Version)

	pub, err := svc.Publish(ctx, def.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.DeploymentPublished, pub.Status)
	assert.Equal(t, 1, pub.Version)

	_, err = svc.Publish(ctx, def.ID)
	require.ErrorIs(t, err, domain.ErrWorkflowPublished)

	edited, err := svc.Update(ctx, def.ID, "Support triage v2", threeSteps().Steps[:2])
	require.NoError(t, err)
	assert.Equal(t, domain.DeploymentDraft, edited.Status)

	stored, err := svc.Get(ctx, def.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.Version, "edit keeps the version until the next publish")
	assert.Len(t, stored.Steps, 2)

	pub, err = svc.Publish(ctx, def.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, pub.Version)
}

func TestService_ValidationAndNotFound(t *testing.T) {
	ctx := context.Background()
	svc := newService()

	_, err := svc.CreateDraft(ctx, "empty", nil)
	require.ErrorIs(t, err, domain.ErrEmptyWorkflow)

	_, err = svc.Get(ctx, "missing")
	require.ErrorIs(t, err, domain.ErrNotFound)

	_, err = svc.Publish(ctx, "missing")
	require.ErrorIs(t, err, domain.ErrNotFound)

	_, err = svc.Update(ctx, "missing", "x", threeSteps().Steps)
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestService_BeginRequiresPublished(t *testing.T) {
	ctx := context.Background()
	svc := newService()
	def, err := svc.CreateDraft(ctx, "flow", threeSteps().Steps)
	require.NoError(t, err)

	m := NewMachine()
	_, err = svc.Begin(ctx, m, def.ID, nil)
	require.ErrorIs(t, err, ErrNotPublished)

	_, err = svc.Publish(ctx, def.ID)
	require.NoError(t, err)

	snap, err := svc.Begin(ctx, m, def.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, "researcher", snap.CurrentStep.Role)
}

const seedYAML = `
workflows:
  - id: onboarding
    name: Onboarding
    steps:
      - {role: researcher, label: Collect requirements}
      - {role: writer, label: Write welcome pack}
  - name: Incident review
    steps:
      - role: analyst
        label: Timeline
`

func TestLoadDefinitionsAndSeed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "workflows.yaml")
	require.NoError(t, os.WriteFile(path, []byte(seedYAML), 0o600))

	defs, err := LoadDefinitions(path)
	require.NoError(t, err)
	require.Len(t, defs, 2)
	assert.Equal(t, "onboarding", defs[0].ID)
	assert.Equal(t, "Write welcome pack", defs[0].Steps[1].Label)

	ctx := context.Background()
	svc := newService()

	n, err := svc.Seed(ctx, defs)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	onboarding, err := svc.Get(ctx, "onboarding")
	require.NoError(t, err)
	assert.Equal(t, domain.DeploymentPublished, onboarding.Status)
	assert.Equal(t, 1, onboarding.Version)

	// повторный сид не трогает шаблоны с известным ID
	n, err = svc.Seed(ctx, defs[:1])
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestParseDefinitions_RejectsInvalid(t *testing.T) {
	_, err := ParseDefinitions([]byte("workflows:\n  - name: broken\n"))
	require.ErrorIs(t, err, domain.ErrEmptyWorkflow)

	_, err = ParseDefinitions([]byte("workflows: [oops"))
	require.Error(t, err)

	_, err = ParseDefinitions([]byte("workflows:\n  - name: anonymous\n    steps:\n      - {role: a, label: b}\n"))
	require.ErrorIs(t, err, ErrDefinitionID)
}

func TestSeed_IsIdempotentAcrossRestarts(t *testing.T) {
	ctx := context.Background()
	svc := newService()
	defs, err := ParseDefinitions([]byte(seedYAML))
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := svc.Seed(ctx, defs)
		require.NoError(t, err)
	}
	all, err := svc.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, len(defs))

	_, err = svc.Seed(ctx, []domain.WorkflowDefinition{{Name: "anonymous", Steps: []domain.WorkflowStep{{Role: "a", Label: "b"}}}})
	require.ErrorIs(t, err, ErrDefinitionID)
}
