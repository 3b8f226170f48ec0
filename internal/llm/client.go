// Package llm is a small client for OpenAI-compatible chat completion APIs.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
)

// ErrNoChoices is returned when the service answers without any completion.
var ErrNoChoices = errors.New("no choices in response")

// maxErrorBody bounds how much of a failed response is echoed into errors.
const maxErrorBody = 512

// Options configures a Client.
type Options struct {
	BaseURL string
	APIKey  string
	// Timeout bounds a single Complete call. Zero means no deadline beyond
	// the caller's context.
	Timeout time.Duration
	// HTTPClient overrides the base transport. Its Transport is wrapped with
	// bearer authentication.
	HTTPClient *http.Client
	Logger     *zerolog.Logger
}

// Client calls the chat completions endpoint.
type Client struct {
	endpoint string
	timeout  time.Duration
	http     *http.Client
	log      zerolog.Logger
}

// New returns a Client authenticating with opts.APIKey as a bearer token.
func New(opts Options) *Client {
	base := http.DefaultTransport
	if opts.HTTPClient != nil && opts.HTTPClient.Transport != nil {
		base = opts.HTTPClient.Transport
	}
	src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: opts.APIKey})
	log := zerolog.Nop()
	if opts.Logger != nil {
		log = *opts.Logger
	}
	return &Client{
		endpoint: strings.TrimRight(opts.BaseURL, "/") + "/chat/completions",
		timeout:  opts.Timeout,
		http:     &http.Client{Transport: &oauth2.Transport{Source: src, Base: base}},
		log:      log,
	}
}

// Part is one element of a multimodal message body.
type Part struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageURL `json:"image_url,omitempty"`
}

// ImageURL references an image, usually as a data URL.
type ImageURL struct {
	URL string `json:"url"`
}

// Message is a chat message. Content is either a string or a []Part.
type Message struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

// Text returns a plain text message.
func Text(role, text string) Message {
	return Message{Role: role, Content: text}
}

// TextWithImage returns a user message carrying a prompt and one image.
func TextWithImage(text, imageURL string) Message {
	return Message{Role: "user", Content: []Part{
		{Type: "text", Text: text},
		{Type: "image_url", ImageURL: &ImageURL{URL: imageURL}},
	}}
}

// Request is a single chat completion request.
type Request struct {
	Model       string
	Messages    []Message
	MaxTokens   int
	Temperature *float64
	// JSONMode asks the service to answer with a JSON object.
	JSONMode bool
}

type wireRequest struct {
	Model          string          `json:"model"`
	Messages       []Message       `json:"messages"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	Temperature    *float64        `json:"temperature,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type wireResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Complete sends req and returns the trimmed content of the first choice.
func (c *Client) Complete(ctx context.Context, req Request) (string, error) {
	rid := uuid.NewString()
	start := time.Now()

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	body := wireRequest{
		Model:       req.Model,
		Messages:    req.Messages,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	}
	if req.JSONMode {
		body.ResponseFormat = &responseFormat{Type: "json_object"}
	}
	bs, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("llm: encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(bs))
	if err != nil {
		return "", fmt.Errorf("llm: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	c.log.Debug().Str("req_id", rid).Str("model", req.Model).Int("content_length", len(bs)).Msg("llm.http.request")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		c.log.Error().Err(err).Str("req_id", rid).Int64("elapsed_ms", time.Since(start).Milliseconds()).Msg("llm.http.send_error")
		return "", fmt.Errorf("llm: send: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("llm: read response: %w", err)
	}
	c.log.Debug().
		Str("req_id", rid).
		Int("status", resp.StatusCode).
		Int("bytes", len(raw)).
		Int64("elapsed_ms", time.Since(start).Milliseconds()).
		Msg("llm.http.response")

	if resp.StatusCode/100 != 2 {
		snippet := raw
		if len(snippet) > maxErrorBody {
			snippet = snippet[:maxErrorBody]
		}
		return "", fmt.Errorf("llm: status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var out wireResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("llm: decode response: %w", err)
	}
	if len(out.Choices) == 0 {
		return "", fmt.Errorf("llm: %w", ErrNoChoices)
	}
	return strings.TrimSpace(out.Choices[0].Message.Content), nil
}

// Float returns a pointer to v, for Request.Temperature.
func Float(v float64) *float64 { return &v }
