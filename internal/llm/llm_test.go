package llm

import (
	"testing"
)

func TestParseJSONResponsePlain(t *testing.T) {
	result := ParseJSONResponse(`{"key": "value", "num": 42}`)
	if result == nil {
		t.Fatal("expected non-nil result")
	}
	if result["key"] != "value" {
		t.Errorf("expected key='value', got %v", result["key"])
	}
	if result["num"] != float64(42) {
		t.Errorf("expected num=42, got %v", result["num"])
	}
}

func TestParseJSONResponseWithCodeFence(t *testing.T) {
	text := "```json\n{\"key\": \"value\"}\n```"
	result := ParseJSONResponse(text)
	if result == nil {
		t.Fatal("expected non-nil result")
	}
	if result["key"] != "value" {
		t.Errorf("expected key='value', got %v", result["key"])
	}
}

func TestParseJSONResponseWithPlainFence(t *testing.T) {
	text := "```\n{\"key\": \"value\"}\n```"
	result := ParseJSONResponse(text)
	if result == nil {
		t.Fatal("expected non-nil result")
	}
	if result["key"] != "value" {
		t.Errorf("expected key='value', got %v", result["key"])
	}
}

func TestParseJSONResponseInvalid(t *testing.T) {
	result := ParseJSONResponse("not json at all")
	if result != nil {
		t.Error("expected nil for invalid JSON")
	}
}

func TestParseJSONResponseEmpty(t *testing.T) {
	result := ParseJSONResponse("")
	if result != nil {
		t.Error("expected nil for empty string")
	}
}

func TestParseJSONResponseWhitespace(t *testing.T) {
	result := ParseJSONResponse("  \n  {\"key\": \"value\"}  \n  ")
	if result == nil {
		t.Fatal("expected non-nil result")
	}
	if result["key"] != "value" {
		t.Errorf("expected key='value', got %v", result["key"])
	}
}

func TestParseJSONResponseInProse(t *testing.T) {
	text := `Sure! Here is the classification: {"category": "pricing", "note": "uses {braces} in \"strings\""} Hope that helps.`
	result := ParseJSONResponse(text)
	if result == nil {
		t.Fatal("expected non-nil result")
	}
	if result["category"] != "pricing" {
		t.Errorf("expected category='pricing', got %v", result["category"])
	}
}

func TestParseJSONResponseSkipsInvalidCandidate(t *testing.T) {
	result := ParseJSONResponse(`{not json} then {"ok": true}`)
	if result == nil {
		t.Fatal("expected second object to be found")
	}
	if result["ok"] != true {
		t.Errorf("expected ok=true, got %v", result["ok"])
	}
}

func TestParseJSONResponseNested(t *testing.T) {
	result := ParseJSONResponse(`{"entities": {"price": "$49"}, "keywords": ["a", "b"]}`)
	if result == nil {
		t.Fatal("expected non-nil result")
	}
	entities := GetMap(result, "entities")
	if GetString(entities, "price", "") != "$49" {
		t.Errorf("expected nested price, got %v", entities)
	}
	if kw := GetStringSlice(result, "keywords"); len(kw) != 2 {
		t.Errorf("expected 2 keywords, got %v", kw)
	}
}

func TestParseJSONResponseUnbalanced(t *testing.T) {
	if result := ParseJSONResponse(`{"key": "value"`); result != nil {
		t.Errorf("expected nil for unbalanced object, got %v", result)
	}

	result := ParseJSONResponse(`note {x ... {"a": 1}`)
	if result == nil {
		t.Fatal("expected object after unclosed brace")
	}
	if result["a"] != float64(1) {
		t.Errorf("expected a=1, got %v", result["a"])
	}
}

func TestGetFloat(t *testing.T) {
	m := map[string]any{"n": 7.5, "s": "3", "bad": "high"}
	if got := GetFloat(m, "n", 0); got != 7.5 {
		t.Errorf("expected 7.5, got %v", got)
	}
	if got := GetFloat(m, "s", 0); got != 3 {
		t.Errorf("expected numeric string parsed, got %v", got)
	}
	if got := GetFloat(m, "bad", 5); got != 5 {
		t.Errorf("expected fallback 5, got %v", got)
	}
	if got := GetFloat(m, "missing", -1); got != -1 {
		t.Errorf("expected fallback -1, got %v", got)
	}
}
