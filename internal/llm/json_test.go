package llm

import "testing"

type testShape struct {
	Destination string  `json:"destination"`
	Confidence  float64 `json:"confidence_score"`
}

func TestExtractJSONFencedBlock(t *testing.T) {
	text := "Sure! Here's the classification:\n```json\n{\"destination\": \"linkedin\", \"confidence_score\": 0.9}\n```\nLet me know if you need anything else."

	var out testShape
	if err := ExtractJSON(text, &out); err != nil {
		t.Fatalf("ExtractJSON failed: %v", err)
	}
	if out.Destination != "linkedin" || out.Confidence != 0.9 {
		t.Errorf("Unexpected result: %+v", out)
	}
}

func TestExtractJSONFencedBlockWithoutLanguage(t *testing.T) {
	text := "```\n{\"destination\": \"podcast\", \"confidence_score\": 0.5}\n```"

	var out testShape
	if err := ExtractJSON(text, &out); err != nil {
		t.Fatalf("ExtractJSON failed: %v", err)
	}
	if out.Destination != "podcast" {
		t.Errorf("Unexpected result: %+v", out)
	}
}

func TestExtractJSONRaw(t *testing.T) {
	var out testShape
	if err := ExtractJSON(`{"destination": "archive", "confidence_score": 0.7}`, &out); err != nil {
		t.Fatalf("ExtractJSON failed: %v", err)
	}
	if out.Destination != "archive" {
		t.Errorf("Unexpected result: %+v", out)
	}
}

func TestExtractJSONEmbeddedInFreeText(t *testing.T) {
	text := `Based on my analysis, I would classify this as follows:
{"destination": "linkedin", "confidence_score": 0.85} — hope that helps!`

	var out testShape
	if err := ExtractJSON(text, &out); err != nil {
		t.Fatalf("ExtractJSON failed: %v", err)
	}
	if out.Destination != "linkedin" || out.Confidence != 0.85 {
		t.Errorf("Unexpected result: %+v", out)
	}
}

func TestExtractJSONNestedBracesAndStrings(t *testing.T) {
	text := `Result: {"destination": "podcast", "confidence_score": 1, "meta": {"note": "braces } in \" strings"}} trailing`

	var out map[string]any
	if err := ExtractJSON(text, &out); err != nil {
		t.Fatalf("ExtractJSON failed: %v", err)
	}
	if out["destination"] != "podcast" {
		t.Errorf("Unexpected result: %+v", out)
	}
}

func TestExtractJSONFailures(t *testing.T) {
	for _, text := range []string{"", "   ", "no json here", "{broken", "{\"unterminated\": "} {
		var out testShape
		if err := ExtractJSON(text, &out); err == nil {
			t.Errorf("Expected error for %q", text)
		}
	}
}
