// ContentGate - Content Delivery Resilience Layer
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/contentgate

package payload

import (
	"strings"
	"testing"
)

func TestDecodeHTMLFragment(t *testing.T) {
	p := Decode("text/html; charset=utf-8", []byte("<div>hello</div>"))
	if p.Kind != KindHTML {
		t.Fatalf("expected KindHTML, got %s", p.Kind)
	}
	if p.HTML != "<div>hello</div>" {
		t.Errorf("unexpected HTML: %q", p.HTML)
	}
	if !p.Usable() {
		t.Error("HTML payload should be usable")
	}
}

func TestDecodeStructured(t *testing.T) {
	body := []byte(`{"success": true, "data": {"items": [1,2,3]}, "html": "<ul></ul>"}`)
	p := Decode("application/json", body)
	if p.Kind != KindStructured {
		t.Fatalf("expected KindStructured, got %s (%s)", p.Kind, p.Reason)
	}
	if !strings.Contains(string(p.Data), "items") {
		t.Errorf("data not preserved: %s", p.Data)
	}
	if p.HTML != "<ul></ul>" {
		t.Errorf("html field not preserved: %q", p.HTML)
	}
}

func TestDecodeJSONArray(t *testing.T) {
	p := Decode("application/json", []byte(`[{"id": 1}, {"id": 2}]`))
	if p.Kind != KindStructured {
		t.Fatalf("expected KindStructured for array, got %s (%s)", p.Kind, p.Reason)
	}
}

func TestDecodeErrorEnvelope(t *testing.T) {
	tests := []struct {
		name string
		body string
		want Kind
	}{
		{"error string no content", `{"error": "boom"}`, KindInvalid},
		{"error true no content", `{"error": true}`, KindInvalid},
		{"success false no content", `{"success": false}`, KindInvalid},
		{"error false is fine", `{"error": false, "data": {"a": 1}}`, KindStructured},
		{"error with data still usable", `{"error": "partial", "data": {"a": 1}}`, KindStructured},
		{"error with html still usable", `{"error": "partial", "html": "<p>x</p>"}`, KindStructured},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := Decode("application/json", []byte(tt.body))
			if p.Kind != tt.want {
				t.Errorf("Decode(%s) kind = %s, want %s", tt.body, p.Kind, tt.want)
			}
		})
	}
}

func TestDecodeConfidenceScore(t *testing.T) {
	low := Decode("application/json", []byte(`{"data": {"a": 1}, "confidence_score": 0.1}`))
	if low.Kind != KindInvalid {
		t.Errorf("low confidence should be rejected, got %s", low.Kind)
	}

	ok := Decode("application/json", []byte(`{"data": {"a": 1}, "confidence_score": 0.9}`))
	if ok.Kind != KindStructured {
		t.Errorf("high confidence should be accepted, got %s (%s)", ok.Kind, ok.Reason)
	}

	absent := Decode("application/json", []byte(`{"data": {"a": 1}}`))
	if absent.Kind != KindStructured {
		t.Errorf("absent confidence should be accepted, got %s", absent.Kind)
	}
}

func TestDecodeUndecodableJSON(t *testing.T) {
	p := Decode("application/json", []byte(`{"broken`))
	if p.Kind != KindInvalid {
		t.Fatalf("expected KindInvalid, got %s", p.Kind)
	}
	if p.Usable() {
		t.Error("invalid payload must not be usable")
	}
}

func TestDecodeSniffsWithoutContentType(t *testing.T) {
	j := Decode("", []byte(`  {"data": {"a": 1}}`))
	if j.Kind != KindStructured {
		t.Errorf("leading-brace body should decode as JSON, got %s", j.Kind)
	}

	h := Decode("", []byte("<html></html>"))
	if h.Kind != KindHTML {
		t.Errorf("tag-leading body should be HTML, got %s", h.Kind)
	}
}
