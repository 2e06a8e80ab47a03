package worker

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/maumercado/task-queue-go/internal/config"
)

func judgmentStub(reply string) *config.Config {
	cfg := &config.Config{}
	cfg.Assistant.BinaryPath = `/bin/sh -c 'printf "` + reply + `"'`
	return cfg
}

func TestNewAIInteractionDetector_ParsesJudgmentAndResponse(t *testing.T) {
	cfg := judgmentStub(`JUDGMENT: yes\nRESPONSE: pick option A\n`)

	detector := NewAIInteractionDetector(cfg)
	needs, response := detector("Which option should I pick?")

	assert.True(t, needs)
	assert.Equal(t, "pick option A", response)
}

func TestNewAIInteractionDetector_RejectsGenericResponse(t *testing.T) {
	cfg := judgmentStub(`JUDGMENT: yes\nRESPONSE: you can decide what is best\n`)

	detector := NewAIInteractionDetector(cfg)
	needs, response := detector("Which option should I pick?")

	assert.False(t, needs)
	assert.Equal(t, "", response)
}

func TestNewAIInteractionDetector_EmptyResponseIsNonActionable(t *testing.T) {
	cfg := judgmentStub(`JUDGMENT: yes\nRESPONSE: \n`)

	detector := NewAIInteractionDetector(cfg)
	needs, response := detector("Which option should I pick?")

	assert.False(t, needs)
	assert.Equal(t, "", response)
}

func TestNewAIInteractionDetector_NoMeansNoInteraction(t *testing.T) {
	cfg := judgmentStub(`JUDGMENT: no\nRESPONSE: \n`)

	detector := NewAIInteractionDetector(cfg)
	needs, response := detector("All done here.")

	assert.False(t, needs)
	assert.Equal(t, "", response)
}

func TestGenericResponseMarkers_CaseInsensitive(t *testing.T) {
	cfg := judgmentStub(`JUDGMENT: yes\nRESPONSE: This is the Best Choice here\n`)

	detector := NewAIInteractionDetector(cfg)
	needs, response := detector("Pick one.")

	assert.False(t, needs)
	assert.Equal(t, "", response)
}
