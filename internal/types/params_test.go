package types

import (
	"encoding/json"
	"testing"
)

func TestDefaultParamsEncoding(t *testing.T) {
	data, err := DefaultParams().Encode()
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	want := `{"colorRange":[{"lo":0.5,"hi":0.6},{"lo":0.2,"hi":0.4},{"lo":0,"hi":1},{"lo":0.99,"hi":1}],"proportions":[0.4,0.5,0.3,0.7],"maxDepth":5}`
	if string(data) != want {
		t.Errorf("Unexpected params JSON\n got: %s\nwant: %s", data, want)
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		t.Fatalf("Params JSON does not decode: %v", err)
	}
	if len(fields) != 3 {
		t.Errorf("Expected exactly 3 fields, got %d", len(fields))
	}
}

func TestParamsValidate(t *testing.T) {
	if err := DefaultParams().Validate(); err != nil {
		t.Fatalf("Default params invalid: %v", err)
	}

	p := DefaultParams()
	p.ColorRange = p.ColorRange[:3]
	if p.Validate() == nil {
		t.Error("Expected error for 3 color ranges")
	}

	p = DefaultParams()
	p.ColorRange[1] = ColorRange{Lo: 0.9, Hi: 0.1}
	if p.Validate() == nil {
		t.Error("Expected error for inverted color range")
	}

	p = DefaultParams()
	p.MaxDepth = -1
	if p.Validate() == nil {
		t.Error("Expected error for negative depth")
	}
}

func TestLedStateFor(t *testing.T) {
	if LedStateFor(true) != LedOn || LedStateFor(false) != LedOff {
		t.Error("Unexpected LED state mapping")
	}
}
