package llm

import (
	"strings"

	"research-enricher/internal/models"
)

// Price is the cost of a model per 1000 tokens
type Price struct {
	InputPer1K  float64 `yaml:"input_per_1k" json:"input_per_1k"`
	OutputPer1K float64 `yaml:"output_per_1k" json:"output_per_1k"`
}

// Pricing maps model names to prices. Unknown models cost nothing.
type Pricing map[string]Price

// Cost computes input/1000 x input price + output/1000 x output price for the model
func (p Pricing) Cost(model string, inputTokens, outputTokens int) float64 {
	price, ok := p[model]
	if !ok {
		// the service reports "name:latest" for untagged model names
		price, ok = p[strings.TrimSuffix(model, ":latest")]
		if !ok {
			return 0
		}
	}
	return float64(inputTokens)/1000*price.InputPer1K + float64(outputTokens)/1000*price.OutputPer1K
}

// Usage converts a generation into its accounting record
func (p Pricing) Usage(gen Generation) models.Usage {
	return models.Usage{
		Model:        gen.Model,
		InputTokens:  gen.InputTokens,
		OutputTokens: gen.OutputTokens,
		Cost:         p.Cost(gen.Model, gen.InputTokens, gen.OutputTokens),
	}
}
