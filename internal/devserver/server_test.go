package devserver

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestChatEchoesMessage(t *testing.T) {
	r := New(0, zerolog.Nop()).Router()
	req := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(`{"message":"hello","user_id":"11"}`))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()

	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["response"] != EchoPrefix+"hello" {
		t.Fatalf("unexpected response: %q", body["response"])
	}
}

func TestChatRejectsMalformedBody(t *testing.T) {
	r := New(0, zerolog.Nop()).Router()
	cases := []string{`not json`, `{}`, `{"message":"   "}`, `{"message":5}`}
	for _, payload := range cases {
		req := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(payload))
		resp := httptest.NewRecorder()
		r.ServeHTTP(resp, req)
		if resp.Code != http.StatusBadRequest {
			t.Fatalf("payload=%q expected 400, got %d", payload, resp.Code)
		}
	}
}

func TestHealthz(t *testing.T) {
	r := New(0, zerolog.Nop()).Router()
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
}

func TestChatRejectsGet(t *testing.T) {
	r := New(0, zerolog.Nop()).Router()
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/chat", nil))
	if resp.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", resp.Code)
	}
}
