package main

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xela07ax/spaceai-orchestrator/internal/sentinel"
	"github.com/xela07ax/spaceai-orchestrator/internal/tools"
	"go.uber.org/zap"
)

func TestRunAudit(t *testing.T) {
	in := `[
		{"agentId":"a","type":"ERROR","timestamp":"2024-01-01T00:00:01Z"},
		{"agentId":"a","type":"ERROR","timestamp":"2024-01-01T00:00:02Z"},
		{"agentId":"a","type":"ERROR","timestamp":"2024-01-01T00:00:03Z"},
		{"agentId":"b","type":"ACTION","timestamp":"2024-01-01T00:00:01Z"}
	]`

	var out bytes.Buffer
	require.NoError(t, runAudit(strings.NewReader(in), &out, sentinel.Thresholds{ErrorLoop: 3}))

	var alerts []sentinel.Alert
	require.NoError(t, json.Unmarshal(out.Bytes(), &alerts))
	require.Len(t, alerts, 1)
	assert.Equal(t, "a", alerts[0].AgentID)
	assert.Equal(t, sentinel.RuleErrorLoop, alerts[0].Rule)
	assert.Equal(t, 3, alerts[0].Count)
}

func TestRunAudit_EmptyAndInvalid(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, runAudit(strings.NewReader(`[]`), &out, sentinel.DefaultThresholds()))
	assert.JSONEq(t, `[]`, out.String())

	err := runAudit(strings.NewReader(`[{"agentId":"a","type":"NOPE","timestamp":"2024-01-01T00:00:00Z"}]`), &out, sentinel.DefaultThresholds())
	assert.ErrorContains(t, err, "unknown type")

	assert.Error(t, runAudit(strings.NewReader(`{`), &out, sentinel.DefaultThresholds()))
}

func TestCatalogSchemasCompile(t *testing.T) {
	// Register паникует на невалидной схеме
	assert.NotPanics(t, func() { registerTools(tools.NewRegistry(zap.NewNop()), nil) })
}
