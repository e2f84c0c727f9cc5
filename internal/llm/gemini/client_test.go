package gemini

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/joseph-ayodele/invoice-processor/internal/entity"
)

var pdf = []byte("%PDF-1.4\n%%EOF\n")

func writeDoc(t *testing.T) entity.Document {
	t.Helper()
	path := filepath.Join(t.TempDir(), "inv.pdf")
	if err := os.WriteFile(path, pdf, 0o644); err != nil {
		t.Fatal(err)
	}
	return entity.Document{Path: path, Filename: "inv.pdf", Size: len(pdf)}
}

func TestInvoke(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1beta/models/gemini-1.5-flash:generateContent" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.Header.Get("x-goog-api-key"); got != "test-key" {
			t.Errorf("api key header = %q", got)
		}

		var req generateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
			return
		}
		if len(req.Contents) != 1 || len(req.Contents[0].Parts) != 2 {
			t.Errorf("unexpected contents: %+v", req.Contents)
			return
		}
		if req.Contents[0].Parts[0].Text != "extract it" {
			t.Errorf("prompt part = %q", req.Contents[0].Parts[0].Text)
		}
		inline := req.Contents[0].Parts[1].InlineData
		if inline == nil || inline.MimeType != "application/pdf" {
			t.Errorf("inline data = %+v", inline)
			return
		}
		if inline.Data != base64.StdEncoding.EncodeToString(pdf) {
			t.Error("inline data is not the base64 document")
		}
		if req.GenerationConfig.ResponseMimeType != "application/json" {
			t.Errorf("responseMimeType = %q", req.GenerationConfig.ResponseMimeType)
		}

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"role":"model","parts":[{"text":"{\"markdown\":"},{"text":"\"# x\"}"}]},"finishReason":"STOP"}]}`))
	}))
	defer srv.Close()

	c := NewClient(Config{APIKey: "test-key", BaseURL: srv.URL + "/v1beta/"}, srv.Client(), nil)
	got, err := c.Invoke(context.Background(), writeDoc(t), "extract it")
	if err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}
	if got != `{"markdown":"# x"}` {
		t.Errorf("Invoke() = %q", got)
	}
}

func TestInvokeErrors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr string
	}{
		{"server error", http.StatusInternalServerError, `{"error":{"message":"boom"}}`, "500"},
		{"blocked", http.StatusOK, `{"promptFeedback":{"blockReason":"SAFETY"}}`, "SAFETY"},
		{"no candidates", http.StatusOK, `{"candidates":[]}`, "no candidates"},
		{"empty text", http.StatusOK, `{"candidates":[{"content":{"parts":[]},"finishReason":"MAX_TOKENS"}]}`, "MAX_TOKENS"},
		{"not json", http.StatusOK, `<html>`, "decode"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			c := NewClient(Config{APIKey: "k", BaseURL: srv.URL}, srv.Client(), nil)
			_, err := c.Invoke(context.Background(), writeDoc(t), "p")
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Invoke() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestInvokeWithoutKey(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")
	c := NewClient(Config{}, nil, nil)
	if _, err := c.Invoke(context.Background(), writeDoc(t), "p"); err == nil {
		t.Error("Invoke() without API key succeeded")
	}
}
