package web

import (
	"encoding/json"
	"net/http/httptest"
	"testing"
)

func TestSafeFileName(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		wantErr bool
	}{
		{name: "plain csv", in: "customers-20240101.csv"},
		{name: "plain xml", in: "orders.xml"},
		{name: "empty", in: "", wantErr: true},
		{name: "path traversal", in: "../etc/passwd", wantErr: true},
		{name: "absolute path", in: "/etc/passwd", wantErr: true},
		{name: "backslash", in: `..\secret`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := safeFileName(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Errorf("safeFileName(%q) accepted", tt.in)
				}
				return
			}
			if err != nil || got != tt.in {
				t.Errorf("safeFileName(%q) = %q, %v", tt.in, got, err)
			}
		})
	}
}

func TestWriteSuccessEnvelope(t *testing.T) {
	rec := httptest.NewRecorder()
	writeSuccess(rec, map[string]any{"position": 3})

	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
	var env envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	if !env.Success {
		t.Error("success = false")
	}
	data, ok := env.Data.(map[string]any)
	if !ok || data["position"] != float64(3) {
		t.Errorf("data = %v", env.Data)
	}
}
