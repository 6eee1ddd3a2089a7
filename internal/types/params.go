package types

import (
	"encoding/json"
	"fmt"
)

const (
	ColorRangeCount  = 4
	ProportionsCount = 4
)

type ColorRange struct {
	Lo float64 `json:"lo" yaml:"lo"`
	Hi float64 `json:"hi" yaml:"hi"`
}

// Params is the parameter blob served to the visualization frontend.
type Params struct {
	ColorRange  []ColorRange `json:"colorRange" yaml:"color_range"`
	Proportions []float64    `json:"proportions" yaml:"proportions"`
	MaxDepth    int          `json:"maxDepth" yaml:"max_depth"`
}

func DefaultParams() Params {
	return Params{
		ColorRange: []ColorRange{
			{Lo: 0.5, Hi: 0.6},
			{Lo: 0.2, Hi: 0.4},
			{Lo: 0.0, Hi: 1.0},
			{Lo: 0.99, Hi: 1.0},
		},
		Proportions: []float64{0.4, 0.5, 0.3, 0.7},
		MaxDepth:    5,
	}
}

func (p Params) Validate() error {
	if len(p.ColorRange) != ColorRangeCount {
		return fmt.Errorf("params: expected %d color ranges, got %d", ColorRangeCount, len(p.ColorRange))
	}
	for i, r := range p.ColorRange {
		if r.Lo > r.Hi {
			return fmt.Errorf("params: color range %d has lo %v above hi %v", i, r.Lo, r.Hi)
		}
	}
	if len(p.Proportions) != ProportionsCount {
		return fmt.Errorf("params: expected %d proportions, got %d", ProportionsCount, len(p.Proportions))
	}
	if p.MaxDepth < 0 {
		return fmt.Errorf("params: negative max depth %d", p.MaxDepth)
	}
	return nil
}

// Encode renders the blob once; the result is served unchanged.
func (p Params) Encode() ([]byte, error) {
	return json.Marshal(p)
}
