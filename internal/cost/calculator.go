// Package cost prices extraction-service token usage.
package cost

import (
	"go.uber.org/zap"
)

// Rates holds per-provider, per-model pricing.
type Rates struct {
	Anthropic map[string]ModelRate `yaml:"anthropic" mapstructure:"anthropic"`
	Gemini    map[string]ModelRate `yaml:"gemini" mapstructure:"gemini"`
}

// ModelRate is USD per million tokens.
type ModelRate struct {
	Input  float64 `yaml:"input" mapstructure:"input"`
	Output float64 `yaml:"output" mapstructure:"output"`
}

// Calculator computes costs for API usage.
type Calculator struct {
	rates Rates
}

// NewCalculator creates a Calculator. Models missing from rates fall back to
// DefaultRates.
func NewCalculator(rates Rates) *Calculator {
	def := DefaultRates()
	merged := Rates{
		Anthropic: mergeRates(def.Anthropic, rates.Anthropic),
		Gemini:    mergeRates(def.Gemini, rates.Gemini),
	}
	return &Calculator{rates: merged}
}

func mergeRates(base, override map[string]ModelRate) map[string]ModelRate {
	out := make(map[string]ModelRate, len(base)+len(override))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range override {
		out[k] = v
	}
	return out
}

// Estimate returns the USD cost of one call. Unknown providers or models cost 0.
func (c *Calculator) Estimate(provider, model string, input, output int64) float64 {
	var table map[string]ModelRate
	switch provider {
	case "anthropic":
		table = c.rates.Anthropic
	case "gemini":
		table = c.rates.Gemini
	}
	rate, ok := table[model]
	if !ok {
		return 0
	}
	return (float64(input)/1e6)*rate.Input + (float64(output)/1e6)*rate.Output
}

// Log emits the cost attribution line for one extraction call.
func (c *Calculator) Log(provider, model, reference string, input, output int64) float64 {
	usd := c.Estimate(provider, model, input, output)
	zap.L().Info("cost attribution",
		zap.String("provider", provider),
		zap.String("model", model),
		zap.String("reference", reference),
		zap.Int64("input_tokens", input),
		zap.Int64("output_tokens", output),
		zap.Float64("estimated_cost_usd", usd),
	)
	return usd
}

// DefaultRates returns list prices for the models paper-cli defaults to.
func DefaultRates() Rates {
	return Rates{
		Anthropic: map[string]ModelRate{
			"claude-haiku-4-5-20251001":  {Input: 1.00, Output: 5.00},
			"claude-sonnet-4-5-20250929": {Input: 3.00, Output: 15.00},
			"claude-opus-4-6":            {Input: 15.00, Output: 75.00},
		},
		Gemini: map[string]ModelRate{
			"gemini-2.5-flash": {Input: 0.30, Output: 2.50},
			"gemini-2.5-pro":   {Input: 1.25, Output: 10.00},
		},
	}
}
