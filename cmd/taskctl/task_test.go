package main

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maumercado/task-queue-go/internal/task"
)

func TestParsePriority_AcceptsKnownNames(t *testing.T) {
	cases := map[string]task.Priority{
		"":       task.PriorityNormal,
		"normal": task.PriorityNormal,
		"Normal": task.PriorityNormal,
		"urgent": task.PriorityUrgent,
		"high":   task.PriorityHigh,
		"low":    task.PriorityLow,
	}

	for in, want := range cases {
		got, err := parsePriority(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestParsePriority_RejectsUnknownName(t *testing.T) {
	_, err := parsePriority("whenever")
	require.Error(t, err)
}

func TestPrintJSON_EncodesIndented(t *testing.T) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	require.NoError(t, enc.Encode(map[string]string{"id": "task_1"}))

	assert.Contains(t, buf.String(), "\"id\": \"task_1\"")
}

func TestSubcommands_AreRegisteredUnderRoot(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}

	assert.True(t, names["task"])
	assert.True(t, names["worker"])
	assert.True(t, names["dlq"])
	assert.True(t, names["alert"])
}
