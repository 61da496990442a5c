// ContentGate - Content Delivery Resilience Layer
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/contentgate

// Package payload models the content returned by the upstream API as a
// tagged union, decided once at the network boundary. Downstream code never
// sniffs response shapes again.
package payload

import (
	"strings"
	"unicode"

	"github.com/goccy/go-json"
)

// Kind discriminates the payload union.
type Kind string

const (
	// KindHTML is a raw rendered fragment.
	KindHTML Kind = "html"

	// KindStructured is a JSON object with usable data and/or an html field.
	KindStructured Kind = "structured"

	// KindInvalid is a response that decoded but is unusable: an error
	// envelope with no content, or a confidence score below threshold.
	KindInvalid Kind = "invalid"
)

// MinConfidence is the minimum confidence_score an upstream response may
// carry and still be accepted.
const MinConfidence = 0.3

// Payload is the decoded content of an upstream response.
type Payload struct {
	Kind Kind `json:"kind"`

	// HTML holds the rendered fragment for KindHTML, or the optional html
	// field of a structured response.
	HTML string `json:"html,omitempty"`

	// Data holds the structured body for KindStructured, verbatim.
	Data json.RawMessage `json:"data,omitempty"`

	// Reason explains why a KindInvalid payload was rejected.
	Reason string `json:"reason,omitempty"`
}

// Usable reports whether the payload can be rendered.
func (p Payload) Usable() bool {
	return p.Kind == KindHTML || p.Kind == KindStructured
}

// envelope is the upstream JSON response shape. All fields are optional;
// the API mixes fragment responses, structured data, and error envelopes.
type envelope struct {
	Error           any             `json:"error"`
	Success         *bool           `json:"success"`
	HTML            string          `json:"html"`
	Data            json.RawMessage `json:"data"`
	ConfidenceScore *float64        `json:"confidence_score"`
}

// Decode classifies a response body. contentType is the HTTP Content-Type
// header; bodies that are not JSON are treated as raw HTML fragments.
func Decode(contentType string, body []byte) Payload {
	if !looksLikeJSON(contentType, body) {
		return Payload{Kind: KindHTML, HTML: string(body)}
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		// JSON content type but not a JSON object. Arrays are valid
		// structured data; anything else undecodable is invalid.
		var raw json.RawMessage
		if err2 := json.Unmarshal(body, &raw); err2 == nil && len(raw) > 0 && raw[0] == '[' {
			return Payload{Kind: KindStructured, Data: raw}
		}
		return Payload{Kind: KindInvalid, Reason: "undecodable JSON body"}
	}

	if env.ConfidenceScore != nil && *env.ConfidenceScore < MinConfidence {
		return Payload{Kind: KindInvalid, Reason: "confidence score below threshold"}
	}

	hasData := len(env.Data) > 0 && string(env.Data) != "null"
	hasHTML := strings.TrimSpace(env.HTML) != ""

	if errFlagged(env) && !hasData && !hasHTML {
		return Payload{Kind: KindInvalid, Reason: "error envelope with no content"}
	}

	if hasData || hasHTML {
		return Payload{Kind: KindStructured, HTML: env.HTML, Data: env.Data}
	}

	// A JSON body with neither data nor html nor an error flag: keep it
	// verbatim, callers may still want the raw object.
	return Payload{Kind: KindStructured, Data: body}
}

// errFlagged reports whether the envelope carries an explicit error marker.
func errFlagged(env envelope) bool {
	if env.Success != nil && !*env.Success {
		return true
	}
	switch v := env.Error.(type) {
	case nil:
		return false
	case bool:
		return v
	case string:
		return v != ""
	default:
		return true
	}
}

// looksLikeJSON decides whether a body should go through JSON decoding.
func looksLikeJSON(contentType string, body []byte) bool {
	if strings.Contains(contentType, "application/json") {
		return true
	}
	if strings.Contains(contentType, "text/html") {
		return false
	}
	// No usable content type: sniff the first non-space byte.
	for _, b := range body {
		if unicode.IsSpace(rune(b)) {
			continue
		}
		return b == '{' || b == '['
	}
	return false
}
