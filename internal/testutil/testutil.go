// Package testutil provides common helpers for HTTP API tests.
package testutil

import (
	"bytes"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/carelinq/eligibility-agent/internal/models"
)

// Envelope mirrors the JSON response envelope the API wraps every result in.
type Envelope struct {
	Status  models.APIStatus `json:"status"`
	Message string           `json:"message"`
	Result  json.RawMessage  `json:"result"`
}

// DoJSON sends a JSON request and decodes the response envelope. A nil body
// sends an empty request.
func DoJSON(t *testing.T, method, url string, body interface{}) (*http.Response, Envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode request: %v", err)
		}
	}
	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()
	var env Envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp, env
}

// DecodeResult unmarshals the envelope's result payload into v.
func DecodeResult(t *testing.T, env Envelope, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(env.Result, v); err != nil {
		t.Fatalf("decode result: %v", err)
	}
}

// AssertHTTPStatus fails the test when the status code does not match.
func AssertHTTPStatus(t *testing.T, expected, actual int, context string) {
	t.Helper()
	if actual != expected {
		t.Errorf("%s: expected status %d, got %d", context, expected, actual)
	}
}
