package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/pavelanni/examfix/internal/model"
)

// fakeAPI serves an OpenAI-compatible chat completion endpoint that replies with content.
func fakeAPI(t *testing.T, content string, status int) (*httptest.Server, *string) {
	t.Helper()
	var lastBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/models"):
			w.Header().Set("Content-Type", "application/json")
			io.WriteString(w, `{"object":"list","data":[{"id":"test-model","object":"model"}]}`)
		case strings.HasSuffix(r.URL.Path, "/chat/completions"):
			b, _ := io.ReadAll(r.Body)
			lastBody = string(b)
			if status != http.StatusOK {
				w.WriteHeader(status)
				io.WriteString(w, `{"error":{"message":"upstream unavailable","type":"server_error"}}`)
				return
			}
			resp := map[string]any{
				"id":      "chatcmpl-1",
				"object":  "chat.completion",
				"created": 1,
				"model":   "test-model",
				"choices": []map[string]any{{
					"index":         0,
					"message":       map[string]string{"role": "assistant", "content": content},
					"finish_reason": "stop",
				}},
			}
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(resp)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv, &lastBody
}

func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	c, err := New(Config{BaseURL: baseURL + "/v1", APIKey: "test", Model: "test-model"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func TestNewRejectsUnknownVariant(t *testing.T) {
	if _, err := New(Config{Variant: "harsh"}); err == nil {
		t.Error("expected error for unknown variant")
	}
}

func TestValidate(t *testing.T) {
	srv, body := fakeAPI(t, `{"isValid":false,"correctedQuestion":{"answer":"B"},"reason":"wrong key"}`, http.StatusOK)
	c := newTestClient(t, srv.URL)

	v, err := c.Validate(context.Background(), model.ValidationRequest{
		Statement: "Which is a noble gas?",
		Type:      model.TypeMCQ,
		Options:   model.Some([]string{"Oxygen", "Neon"}),
		Answer:    model.Some("A"),
	})
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if v.IsValid {
		t.Error("expected invalid verdict")
	}
	if v.Correction == nil || v.Correction.Answer.Or("") != "B" {
		t.Fatalf("expected answer correction, got %+v", v.Correction)
	}
	if v.Correction.Statement.Valid || v.Correction.Options.Valid {
		t.Error("fields not returned by the model must stay absent")
	}
	if v.Reason != "wrong key" {
		t.Errorf("reason = %q", v.Reason)
	}
	if !strings.Contains(*body, "Which is a noble gas?") {
		t.Error("request should carry the question statement")
	}
	if !strings.Contains(*body, `"json_object"`) {
		t.Error("request should ask for a JSON object response")
	}
}

func TestValidateTransportError(t *testing.T) {
	srv, _ := fakeAPI(t, "", http.StatusInternalServerError)
	c := newTestClient(t, srv.URL)

	_, err := c.Validate(context.Background(), model.ValidationRequest{Statement: "x", Type: model.TypeNAT})
	if err == nil {
		t.Fatal("expected error from failing endpoint")
	}
}

func TestValidateMalformed(t *testing.T) {
	srv, _ := fakeAPI(t, `I think it's fine`, http.StatusOK)
	c := newTestClient(t, srv.URL)

	_, err := c.Validate(context.Background(), model.ValidationRequest{Statement: "x", Type: model.TypeNAT})
	if !errors.Is(err, ErrMalformedResponse) {
		t.Fatalf("expected ErrMalformedResponse, got %v", err)
	}
}

func TestPing(t *testing.T) {
	srv, _ := fakeAPI(t, "", http.StatusOK)
	c := newTestClient(t, srv.URL)
	if err := c.Ping(context.Background()); err != nil {
		t.Errorf("Ping: %v", err)
	}
}

func TestParseVerdict(t *testing.T) {
	tests := []struct {
		name        string
		raw         string
		wantErr     bool
		wantValid   bool
		wantFix     bool
		wantAnswer  string
		wantOptions int
	}{
		{"valid no correction", `{"isValid":true,"correctedQuestion":null,"reason":null}`, false, true, false, "", 0},
		{"missing isValid", `{"reason":"?"}`, true, false, false, "", 0},
		{"isValid wrong type", `{"isValid":"yes"}`, true, false, false, "", 0},
		{"not json", `nope`, true, false, false, "", 0},
		{"numeric answer", `{"isValid":false,"correctedQuestion":{"answer":9.81}}`, false, false, true, "9.81", 0},
		{"options fix", `{"isValid":false,"correctedQuestion":{"options":["a","b","c"]}}`, false, false, true, "", 3},
		{"empty correction object", `{"isValid":false,"correctedQuestion":{}}`, false, false, false, "", 0},
		{"blank statement ignored", `{"isValid":false,"correctedQuestion":{"statement":"  "}}`, false, false, false, "", 0},
		{"code fence", "```json\n{\"isValid\":true}\n```", false, true, false, "", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := ParseVerdict(tt.raw)
			if tt.wantErr {
				if !errors.Is(err, ErrMalformedResponse) {
					t.Fatalf("expected ErrMalformedResponse, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseVerdict: %v", err)
			}
			if v.IsValid != tt.wantValid {
				t.Errorf("IsValid = %v, want %v", v.IsValid, tt.wantValid)
			}
			if (v.Correction != nil) != tt.wantFix {
				t.Fatalf("correction present = %v, want %v", v.Correction != nil, tt.wantFix)
			}
			if !tt.wantFix {
				return
			}
			if got := v.Correction.Answer.Or(""); got != tt.wantAnswer {
				t.Errorf("answer = %q, want %q", got, tt.wantAnswer)
			}
			if got := len(v.Correction.Options.Value); got != tt.wantOptions {
				t.Errorf("options = %d, want %d", got, tt.wantOptions)
			}
		})
	}
}
