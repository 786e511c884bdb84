package llm

import (
	"log/slog"
	"sync"
)

// ModelRate is the USD price per one million tokens for a model.
type ModelRate struct {
	InPerMTok  float64
	OutPerMTok float64
}

// rateTable is the single source of per-token pricing. Every cost figure in
// the system derives from this table through CostUSD.
var rateTable = map[string]ModelRate{
	"gpt-4o":      {InPerMTok: 2.50, OutPerMTok: 10.00},
	"gpt-4o-mini": {InPerMTok: 0.15, OutPerMTok: 0.60},
}

var unknownModelWarn sync.Map

// CostUSD computes the cost of a completion from the centralized rate table.
// Unknown models cost zero and are warned about once per process.
func CostUSD(model string, inputTokens, outputTokens int) float64 {
	rate, ok := rateTable[model]
	if !ok {
		if _, seen := unknownModelWarn.LoadOrStore(model, true); !seen {
			slog.Warn("no rate configured for model, costing as zero", "model", model)
		}
		return 0
	}
	return float64(inputTokens)*rate.InPerMTok/1e6 + float64(outputTokens)*rate.OutPerMTok/1e6
}
