package usage

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEstimateCostOllamaIsAlwaysFree(t *testing.T) {
	assert.Equal(t, 0.0, EstimateCost("ollama", "qwen3:8b", 1_000_000, 1_000_000))
}

func TestEstimateCostCLIProvidersAreFree(t *testing.T) {
	assert.Equal(t, 0.0, EstimateCost("cli-claude", "claude-3-opus", 500_000, 500_000))
}

func TestEstimateCostFreeModelSuffixIsFree(t *testing.T) {
	assert.Equal(t, 0.0, EstimateCost("openrouter", "meta-llama/llama-3.3-8b:free", 1_000_000, 1_000_000))
}

func TestEstimateCostKnownModel(t *testing.T) {
	got := EstimateCost("openrouter", "gpt-4o-mini", 1_000_000, 1_000_000)
	assert.InDelta(t, 0.75, got, 1e-6)
}

func TestEstimateCostUnknownModelUsesDefaultRate(t *testing.T) {
	got := EstimateCost("openrouter", "some-new-model-nobody-has-priced-yet", 1_000_000, 1_000_000)
	assert.InDelta(t, 4.0, got, 1e-6)
}

func TestEstimateCostRoundsToSixDecimals(t *testing.T) {
	got := EstimateCost("openrouter", "gpt-4o-mini", 1234, 5678)
	assert.Equal(t, roundTo6(got), got)
}

func TestEstimateCostZeroTokensIsZero(t *testing.T) {
	assert.Equal(t, 0.0, EstimateCost("openrouter", "gpt-4o", 0, 0))
}
