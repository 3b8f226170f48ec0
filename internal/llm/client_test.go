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
	"time"
)

func newTestClient(t *testing.T, h http.HandlerFunc, timeout time.Duration) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return New(Options{BaseURL: srv.URL + "/v1/", APIKey: "sk-test", Timeout: timeout})
}

func TestComplete_Success(t *testing.T) {
	var got map[string]any
	var auth, path string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		path = r.URL.Path
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &got); err != nil {
			t.Errorf("request body not JSON: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"choices":[{"message":{"content":"  {\"title\":\"x\"}\n"}}]}`)
	}, 0)

	out, err := c.Complete(context.Background(), Request{
		Model:       "gpt-4o-mini",
		Messages:    []Message{Text("system", "be brief"), Text("user", "hello")},
		MaxTokens:   1600,
		Temperature: Float(0.2),
		JSONMode:    true,
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if out != `{"title":"x"}` {
		t.Errorf("content = %q", out)
	}
	if auth != "Bearer sk-test" {
		t.Errorf("Authorization = %q", auth)
	}
	if path != "/v1/chat/completions" {
		t.Errorf("path = %q", path)
	}
	if got["model"] != "gpt-4o-mini" {
		t.Errorf("model = %v", got["model"])
	}
	if got["max_tokens"] != float64(1600) {
		t.Errorf("max_tokens = %v", got["max_tokens"])
	}
	if got["temperature"] != 0.2 {
		t.Errorf("temperature = %v", got["temperature"])
	}
	rf, _ := got["response_format"].(map[string]any)
	if rf["type"] != "json_object" {
		t.Errorf("response_format = %v", got["response_format"])
	}
}

func TestComplete_ImageMessageShape(t *testing.T) {
	var got struct {
		Messages []struct {
			Content []struct {
				Type     string `json:"type"`
				Text     string `json:"text"`
				ImageURL struct {
					URL string `json:"url"`
				} `json:"image_url"`
			} `json:"content"`
		} `json:"messages"`
		ResponseFormat any `json:"response_format"`
	}
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
		io.WriteString(w, `{"choices":[{"message":{"content":"ok"}}]}`)
	}, 0)

	_, err := c.Complete(context.Background(), Request{
		Model:    "gpt-4o",
		Messages: []Message{TextWithImage("describe", "data:image/jpeg;base64,AAAA")},
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if len(got.Messages) != 1 || len(got.Messages[0].Content) != 2 {
		t.Fatalf("messages = %+v", got.Messages)
	}
	parts := got.Messages[0].Content
	if parts[0].Type != "text" || parts[0].Text != "describe" {
		t.Errorf("part 0 = %+v", parts[0])
	}
	if parts[1].Type != "image_url" || parts[1].ImageURL.URL != "data:image/jpeg;base64,AAAA" {
		t.Errorf("part 1 = %+v", parts[1])
	}
	if got.ResponseFormat != nil {
		t.Errorf("response_format should be omitted, got %v", got.ResponseFormat)
	}
}

func TestComplete_Errors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr string
	}{
		{"server error", http.StatusInternalServerError, `{"error":"boom"}`, "llm: status 500"},
		{"unauthorized", http.StatusUnauthorized, `bad key`, "bad key"},
		{"not json", http.StatusOK, `<html>`, "llm: decode response"},
		{"no choices", http.StatusOK, `{"choices":[]}`, "no choices"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				io.WriteString(w, tt.body)
			}, 0)
			_, err := c.Complete(context.Background(), Request{Model: "m"})
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %q, want to contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestComplete_NoChoicesSentinel(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"choices":[]}`)
	}, 0)
	_, err := c.Complete(context.Background(), Request{Model: "m"})
	if !errors.Is(err, ErrNoChoices) {
		t.Errorf("err = %v, want ErrNoChoices", err)
	}
}

func TestComplete_Timeout(t *testing.T) {
	release := make(chan struct{})
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}, 50*time.Millisecond)
	defer close(release)

	start := time.Now()
	_, err := c.Complete(context.Background(), Request{Model: "m"})
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want deadline exceeded", err)
	}
	if time.Since(start) > 2*time.Second {
		t.Errorf("Complete took %v, timeout not applied", time.Since(start))
	}
}
