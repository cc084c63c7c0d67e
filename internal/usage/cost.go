package usage

import (
	"math"
	"strings"
)

// rate is a model's price per million tokens, input and output separately.
type rate struct {
	inputUsdPerMegaToken  float64
	outputUsdPerMegaToken float64
}

// defaultRate is applied when no table entry's substring matches the model
// name, per §6.5.
var defaultRate = rate{inputUsdPerMegaToken: 1, outputUsdPerMegaToken: 3}

// priceTable maps a model-name substring to its rate. Matching is
// first-match-wins over this slice, most specific substrings first, so
// e.g. "gpt-4o-mini" is checked before the bare "gpt-4o" it also contains.
var priceTable = []struct {
	substr string
	rate   rate
}{
	{"gpt-4o-mini", rate{0.15, 0.60}},
	{"gpt-4o", rate{2.50, 10.00}},
	{"gpt-4-turbo", rate{10.00, 30.00}},
	{"gpt-3.5-turbo", rate{0.50, 1.50}},
	{"claude-3-opus", rate{15.00, 75.00}},
	{"claude-3.5-sonnet", rate{3.00, 15.00}},
	{"claude-3-sonnet", rate{3.00, 15.00}},
	{"claude-3-haiku", rate{0.25, 1.25}},
	{"gemini-1.5-pro", rate{1.25, 5.00}},
	{"gemini-1.5-flash", rate{0.075, 0.30}},
	{"llama-3.3", rate{0.12, 0.30}},
	{"llama-3.1", rate{0.10, 0.25}},
	{"gpt-oss", rate{0.10, 0.30}},
}

// EstimateCost computes the USD cost of one completion, rounded to six
// decimal places. Free-tier models (id contains ":free"), Ollama, and CLI
// providers always cost 0 regardless of token counts.
func EstimateCost(providerID, model string, inputTokens, outputTokens int) float64 {
	if isZeroCostProvider(providerID) || strings.Contains(model, ":free") {
		return 0
	}

	r := rateFor(model)
	cost := float64(inputTokens)/1e6*r.inputUsdPerMegaToken + float64(outputTokens)/1e6*r.outputUsdPerMegaToken
	return roundTo6(cost)
}

func isZeroCostProvider(providerID string) bool {
	switch providerID {
	case "ollama", "cli-claude", "cli-gemini", "cli-opencode":
		return true
	}
	return strings.HasPrefix(providerID, "cli-")
}

func rateFor(model string) rate {
	lower := strings.ToLower(model)
	for _, entry := range priceTable {
		if strings.Contains(lower, entry.substr) {
			return entry.rate
		}
	}
	return defaultRate
}

func roundTo6(v float64) float64 {
	const factor = 1e6
	return math.Round(v*factor) / factor
}
