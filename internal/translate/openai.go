package translate

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

type OpenAIConfig struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

// OpenAIClient speaks the OpenAI-compatible chat completions API in
// streaming mode and exposes the deltas through the Stream contract.
type OpenAIClient struct {
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
}

func NewOpenAIClient(cfg OpenAIConfig) (*OpenAIClient, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("api key is required")
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = "gpt-5"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &OpenAIClient{
		baseURL: strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		apiKey:  strings.TrimSpace(cfg.APIKey),
		model:   model,
		client:  &http.Client{Timeout: timeout},
	}, nil
}

func (c *OpenAIClient) Complete(ctx context.Context, prompt string, opts Options) (Stream, error) {
	payload := map[string]any{
		"model": c.model,
		"messages": []map[string]string{
			{"role": "user", "content": prompt},
		},
		"temperature": opts.Temperature,
		"stream":      true,
	}
	if opts.MaxTokens > 0 {
		payload["max_tokens"] = opts.MaxTokens
	}
	if len(opts.StopSequences) > 0 {
		payload["stop"] = opts.StopSequences
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal chat payload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build chat request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request chat completion: %w", err)
	}
	if resp.StatusCode >= 400 {
		defer func() { _ = resp.Body.Close() }()
		rawRespBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("chat completion failed status=%d body=%s", resp.StatusCode, string(rawRespBody))
	}

	return &sseStream{body: resp.Body, scanner: bufio.NewScanner(resp.Body)}, nil
}

// sseStream reads "data:" lines off the completion response and yields the
// content delta of each event. The stream closes the response body on [DONE],
// on end of input and on error, so abandoning it mid-read leaks nothing once
// Next has returned a terminal result.
type sseStream struct {
	body    io.Closer
	scanner *bufio.Scanner
	done    bool
}

type sseEvent struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (s *sseStream) Next() (string, error) {
	if s.done {
		return "", io.EOF
	}
	for s.scanner.Scan() {
		line := strings.TrimSpace(s.scanner.Text())
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "[DONE]" {
			return "", s.finish(nil)
		}

		var event sseEvent
		if err := json.Unmarshal([]byte(data), &event); err != nil {
			return "", s.finish(fmt.Errorf("decode completion event: %w", err))
		}
		if len(event.Choices) == 0 {
			continue
		}
		chunk := event.Choices[0].Delta.Content
		if chunk == "" {
			// Non-streaming servers answer a stream request with one full
			// message; accept that shape too.
			chunk = event.Choices[0].Message.Content
		}
		if chunk == "" {
			continue
		}
		return chunk, nil
	}
	if err := s.scanner.Err(); err != nil {
		return "", s.finish(fmt.Errorf("read completion stream: %w", err))
	}
	return "", s.finish(nil)
}

func (s *sseStream) finish(err error) error {
	s.done = true
	_ = s.body.Close()
	if err != nil {
		return err
	}
	return io.EOF
}
