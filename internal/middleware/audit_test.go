package middleware

import (
	"encoding/json"
	"testing"
)

func TestRedactAuditBodyVaults(t *testing.T) {
	body := []byte(`{"agent":"0xabc","signature":"0xdead","nested":{"private_key":"pk","gateway_key":"gk"}}`)
	out := redactAuditBody("/v1/vaults", body)

	var data map[string]interface{}
	if err := json.Unmarshal([]byte(out), &data); err != nil {
		t.Fatalf("invalid json output: %v", err)
	}
	if data["signature"] == "0xdead" {
		t.Fatalf("signature not redacted")
	}
	if data["agent"] != "0xabc" {
		t.Fatalf("non-sensitive field should survive redaction")
	}
	if nested, ok := data["nested"].(map[string]interface{}); ok {
		if nested["private_key"] == "pk" || nested["gateway_key"] == "gk" {
			t.Fatalf("nested keys not redacted")
		}
	}
}

func TestRedactAuditBodyNonSensitivePath(t *testing.T) {
	body := []byte(`{"ok":true}`)
	out := redactAuditBody("/health", body)
	if out != string(body) {
		t.Fatalf("unexpected redaction on non-sensitive path")
	}
}

func TestRedactAuditBodyInvalidJSON(t *testing.T) {
	body := []byte("not-json")
	out := redactAuditBody("/v1/vaults", body)
	if out != "[redacted]" {
		t.Fatalf("expected redacted placeholder for invalid json")
	}
}
