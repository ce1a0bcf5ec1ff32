package services

import (
  "bytes"
  "context"
  "encoding/json"
  "fmt"
  "io"
  "net/http"
  "time"
  "github.com/askyenta/yenta-backend/internal/logger"
  "github.com/askyenta/yenta-backend/internal/utils"
)

// AIClient wraps the text-completion backend. Both calls block until the
// model responds; neither call retries, so connection failures surface to the
// caller immediately. Raw output carries no JSON guarantee; callers that need
// structure go through ExtractJSONObject.
type AIClient interface {
  Generate(ctx context.Context, prompt string) (string, error)
  Chat(ctx context.Context, messages []AIMessage) (string, error)
}

type AIMessage struct {
  Role    string  `json:"role"`
  Content string  `json:"content"`
}

type aiClient struct {
  httpClient  *http.Client
  log         *logger.Logger
  baseURL     string
  model       string
}

func NewAIClient(log *logger.Logger) (AIClient, error) {
  serviceLog := log.With("service", "AIClient")
  baseURL := utils.GetEnv("LLM_BASE_URL", "http://localhost:11434", log)
  model := utils.GetEnv("LLM_MODEL", "llama3.2:latest", log)
  timeoutSec := utils.GetEnvAsInt("LLM_TIMEOUT_SECONDS", 120, log)
  if timeoutSec <= 0 {
    return nil, fmt.Errorf("LLM_TIMEOUT_SECONDS must be positive")
  }
  return &aiClient{
    httpClient: &http.Client{
      Timeout: time.Duration(timeoutSec) * time.Second,
    },
    log:     serviceLog,
    baseURL: baseURL,
    model:   model,
  }, nil
}

type aiHTTPError struct {
  StatusCode  int
  Body        string
}

func (e *aiHTTPError) Error() string {
  return fmt.Sprintf("llm http %d: %s", e.StatusCode, e.Body)
}

func (c *aiClient) doOnce(ctx context.Context, path string, body any, out any) error {
  var buf bytes.Buffer
  if err := json.NewEncoder(&buf).Encode(body); err != nil {
    return err
  }

  req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, &buf)
  if err != nil {
    return err
  }
  req.Header.Set("Content-Type", "application/json")

  resp, err := c.httpClient.Do(req)
  if err != nil {
    return err
  }

  raw, readErr := io.ReadAll(resp.Body)
  _ = resp.Body.Close()
  if readErr != nil {
    return readErr
  }

  if resp.StatusCode < 200 || resp.StatusCode >= 300 {
    return &aiHTTPError{StatusCode: resp.StatusCode, Body: string(raw)}
  }
  if err := json.Unmarshal(raw, out); err != nil {
    return fmt.Errorf("llm decode error: %w; raw=%s", err, string(raw))
  }
  return nil
}

// ---- Generate (single prompt completion) ----

type generateRequest struct {
  Model   string  `json:"model"`
  Prompt  string  `json:"prompt"`
  Stream  bool    `json:"stream"`
}

type generateResponse struct {
  Response  string  `json:"response"`
}

func (c *aiClient) Generate(ctx context.Context, prompt string) (string, error) {
  req := generateRequest{
    Model:  c.model,
    Prompt: prompt,
    Stream: false,
  }
  var resp generateResponse
  if err := c.doOnce(ctx, "/api/generate", req, &resp); err != nil {
    c.log.Warn("LLM generate call failed", "error", err)
    return "", fmt.Errorf("Error calling completion API: %w", err)
  }
  return resp.Response, nil
}

// ---- Chat (role-tagged message completion) ----

type chatRequest struct {
  Model     string      `json:"model"`
  Messages  []AIMessage `json:"messages"`
  Stream    bool        `json:"stream"`
}

type chatResponse struct {
  Message   AIMessage   `json:"message"`
}

func (c *aiClient) Chat(ctx context.Context, messages []AIMessage) (string, error) {
  req := chatRequest{
    Model:    c.model,
    Messages: messages,
    Stream:   false,
  }
  var resp chatResponse
  if err := c.doOnce(ctx, "/api/chat", req, &resp); err != nil {
    c.log.Warn("LLM chat call failed", "error", err)
    return "", fmt.Errorf("Error calling completion API: %w", err)
  }
  return resp.Message.Content, nil
}
