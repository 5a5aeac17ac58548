package services

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ModelPrice is in USD per one million tokens.
type ModelPrice struct {
	InputPerMillion  float64 `yaml:"input_per_million"`
	OutputPerMillion float64 `yaml:"output_per_million"`
}

type PricingTable struct {
	DefaultModel string                `yaml:"default_model"`
	ExchangeRate float64               `yaml:"exchange_rate"`
	Currency     string                `yaml:"currency"`
	Models       map[string]ModelPrice `yaml:"models"`
}

func DefaultPricing() *PricingTable {
	return &PricingTable{
		DefaultModel: "gemini-2.5-flash",
		ExchangeRate: 1,
		Currency:     "USD",
		Models: map[string]ModelPrice{
			"gemini-2.5-pro":        {InputPerMillion: 1.25, OutputPerMillion: 10.00},
			"gemini-2.5-flash":      {InputPerMillion: 0.30, OutputPerMillion: 2.50},
			"gemini-2.5-flash-lite": {InputPerMillion: 0.10, OutputPerMillion: 0.40},
			"gemini-2.0-flash":      {InputPerMillion: 0.10, OutputPerMillion: 0.40},
			"gemini-1.5-flash":      {InputPerMillion: 0.075, OutputPerMillion: 0.30},
		},
	}
}

// LoadPricing reads a YAML pricing table. Missing fields fall back to the
// built-in defaults.
func LoadPricing(path string) (*PricingTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading pricing file: %w", err)
	}

	var table PricingTable
	if err := yaml.Unmarshal(data, &table); err != nil {
		return nil, fmt.Errorf("parsing pricing file: %w", err)
	}

	defaults := DefaultPricing()
	if len(table.Models) == 0 {
		table.Models = defaults.Models
	}
	if table.DefaultModel == "" {
		table.DefaultModel = defaults.DefaultModel
	}
	if table.ExchangeRate <= 0 {
		table.ExchangeRate = defaults.ExchangeRate
	}
	if table.Currency == "" {
		table.Currency = defaults.Currency
	}
	if _, ok := table.Models[table.DefaultModel]; !ok {
		return nil, fmt.Errorf("default model %q has no price row", table.DefaultModel)
	}

	return &table, nil
}

// Price returns the row for model, or the default model's row when the model
// is unpriced.
func (t *PricingTable) Price(model string) ModelPrice {
	if p, ok := t.Models[model]; ok {
		return p
	}
	return t.Models[t.DefaultModel]
}

func (t *PricingTable) Cost(model string, inputTokens, outputTokens int64) float64 {
	p := t.Price(model)
	return float64(inputTokens)/1e6*p.InputPerMillion + float64(outputTokens)/1e6*p.OutputPerMillion
}

func (t *PricingTable) Convert(usd float64) float64 {
	return usd * t.ExchangeRate
}
