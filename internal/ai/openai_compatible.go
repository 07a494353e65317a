package ai

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
)

const errorSnippetLimit = 240

type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ChatConfig struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
}

// CompletionServiceError is returned for every failed completion: transport
// errors, non-2xx statuses and unusable bodies alike.
type CompletionServiceError struct {
	StatusCode int
	Snippet    string
	Err        error
}

func (e *CompletionServiceError) Error() string {
	switch {
	case e.StatusCode != 0:
		return fmt.Sprintf("completion service status %d: %s", e.StatusCode, e.Snippet)
	case e.Err != nil:
		return "completion service failed: " + e.Err.Error()
	default:
		return "completion service failed"
	}
}

func (e *CompletionServiceError) Unwrap() error {
	return e.Err
}

// Completer produces one assistant message for a conversation.
type Completer interface {
	Complete(ctx context.Context, cfg ChatConfig, messages []ChatMessage) (string, error)
}

type OpenAICompatibleClient struct {
	httpClient *http.Client
}

func NewOpenAICompatibleClient(timeout time.Duration) *OpenAICompatibleClient {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &OpenAICompatibleClient{
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (c *OpenAICompatibleClient) Complete(ctx context.Context, cfg ChatConfig, messages []ChatMessage) (string, error) {
	reqBody := map[string]interface{}{
		"model":       cfg.Model,
		"messages":    messages,
		"temperature": cfg.Temperature,
		"stream":      false,
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return "", &CompletionServiceError{Err: fmt.Errorf("marshal llm request failed: %w", err)}
	}

	url := strings.TrimRight(cfg.BaseURL, "/") + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(bodyBytes))
	if err != nil {
		return "", &CompletionServiceError{Err: fmt.Errorf("build llm request failed: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+cfg.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &CompletionServiceError{Err: fmt.Errorf("llm request failed: %w", err)}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &CompletionServiceError{Err: fmt.Errorf("read llm response failed: %w", err)}
	}
	if resp.StatusCode >= 300 {
		return "", &CompletionServiceError{StatusCode: resp.StatusCode, Snippet: snippet(raw)}
	}

	var parsed struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", &CompletionServiceError{Snippet: snippet(raw), Err: fmt.Errorf("parse llm json failed: %w", err)}
	}
	if len(parsed.Choices) == 0 {
		return "", &CompletionServiceError{Snippet: snippet(raw), Err: errors.New("empty llm choices")}
	}
	return parsed.Choices[0].Message.Content, nil
}

func snippet(raw []byte) string {
	r := []rune(strings.TrimSpace(string(raw)))
	if len(r) > errorSnippetLimit {
		r = r[:errorSnippetLimit]
	}
	return string(r)
}
