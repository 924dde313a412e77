// Package ai 调用 OpenAI 兼容的 chat completions 接口生成简历修改建议。
package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"resumeforge/internal/errcode"
	"resumeforge/internal/resume"
)

const systemPrompt = `You are an assistant that suggests improvements to resumes based on a job description. Return a JSON object with a 'recommendations' array. Each recommendation must have:
- 'type': exactly one of 'summary', 'experience', 'education', 'skills', or 'projects'
- 'current': the current text from the resume
- 'suggested': your improved suggestion
- 'status': always 'pending'
- 'metadata': optional additional info

Example format:
{
  "recommendations": [
    {
      "type": "summary",
      "current": "Current summary text",
      "suggested": "Improved summary text",
      "status": "pending",
      "metadata": {}
    }
  ]
}`

// maxResponseBytes 限制读取的响应体大小。
const maxResponseBytes = 4 << 20

// Client 是文本生成服务的客户端。
type Client struct {
	baseURL string
	apiKey  string
	model   string
	http    *http.Client
	logger  *slog.Logger
}

func NewClient(baseURL, apiKey, model string, timeout time.Duration, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		apiKey:  apiKey,
		model:   model,
		http:    &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string            `json:"model"`
	Messages       []chatMessage     `json:"messages"`
	ResponseFormat map[string]string `json:"response_format"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Suggest 发送简历快照和岗位描述，返回规范化后的建议列表。
// 任何失败都以 errcode.Misc 返回，不会返回部分结果。
func (c *Client) Suggest(ctx context.Context, snapshot resume.Snapshot, jobDescription string) ([]resume.Recommendation, error) {
	resumeJSON, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return nil, errcode.Wrap(errcode.Misc, "encode resume snapshot", err)
	}

	body, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: fmt.Sprintf("Job Description: %s\n\nResume Data: %s", jobDescription, resumeJSON)},
		},
		ResponseFormat: map[string]string{"type": "json_object"},
	})
	if err != nil {
		return nil, errcode.Wrap(errcode.Misc, "encode completion request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, errcode.Wrap(errcode.Misc, "build completion request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errcode.Wrap(errcode.Misc, "completion request failed", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, errcode.Wrap(errcode.Misc, "read completion response", err)
	}
	c.logger.Debug("completion finished",
		slog.String("model", c.model),
		slog.Int("status", resp.StatusCode),
		slog.Duration("latency", time.Since(start)),
	)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, errcode.Wrap(errcode.Misc, "completion request failed",
			fmt.Errorf("status %d: %s", resp.StatusCode, truncate(string(raw), 256)))
	}

	var out chatResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, errcode.Wrap(errcode.Misc, "decode completion response", err)
	}
	if out.Error != nil && out.Error.Message != "" {
		return nil, errcode.Wrap(errcode.Misc, "completion request failed", fmt.Errorf("%s", out.Error.Message))
	}
	if len(out.Choices) == 0 || strings.TrimSpace(out.Choices[0].Message.Content) == "" {
		return nil, errcode.New(errcode.Misc, "empty completion response")
	}

	return Normalize([]byte(out.Choices[0].Message.Content))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
