// Package visionai 封装视觉 AI 提供商的 HTTP 调用
//
// 契约：提交图片+提示词，返回一段应当包含 JSON 对象的自由文本。
// 响应可能被代码围栏包裹，解析前需要剥离，见 ExtractJSON。
package visionai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

const apiChatCompletions = "/v1/chat/completions"

// 错误分类，调用方用 errors.Is 区分降级原因
var (
	// ErrTimeout 提供商响应超时
	ErrTimeout = errors.New("visionai: provider timeout")
	// ErrProvider 提供商返回错误或不可达
	ErrProvider = errors.New("visionai: provider error")
	// ErrBadResponse 响应无法按预期结构解析
	ErrBadResponse = errors.New("visionai: unparsable response")
)

// Config 提供商连接配置
type Config struct {
	URL       string // 服务地址，如 http://localhost:11434
	APIKey    string // 鉴权密钥，可为空（本地部署）
	Model     string // 模型名称
	TimeoutMs int    // 单次调用超时（毫秒），默认 30000
}

// Engine 视觉 AI 客户端
type Engine struct {
	cfg Config
	cli *http.Client
}

// NewEngine 创建客户端实例
func NewEngine() Engine {
	return Engine{cli: http.DefaultClient}
}

// SetConfig 设置连接配置，返回新实例便于链式调用
func (e Engine) SetConfig(cfg Config) Engine {
	if cfg.TimeoutMs <= 0 {
		cfg.TimeoutMs = 30000
	}
	e.cfg = cfg
	return e
}

type chatRequest struct {
	Model     string        `json:"model"`
	Messages  []chatMessage `json:"messages"`
	MaxTokens int           `json:"max_tokens,omitempty"`
}

type chatMessage struct {
	Role    string        `json:"role"`
	Content []contentPart `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// AnalyzeImage 提交一张图片和提示词，返回提供商的原始文本
// 图片以 data URL 形式内嵌，mime 一般为 image/jpeg
func (e Engine) AnalyzeImage(ctx context.Context, image []byte, mime, prompt string) (string, error) {
	if len(image) == 0 {
		return "", fmt.Errorf("visionai: image is required")
	}
	dataURL := fmt.Sprintf("data:%s;base64,%s", mime, base64.StdEncoding.EncodeToString(image))
	parts := []contentPart{
		{Type: "text", Text: prompt},
		{Type: "image_url", ImageURL: &imageURL{URL: dataURL}},
	}
	return e.chat(ctx, parts)
}

// Complete 纯文本补全，用于合成阶段的单次调用
func (e Engine) Complete(ctx context.Context, prompt string) (string, error) {
	return e.chat(ctx, []contentPart{{Type: "text", Text: prompt}})
}

func (e Engine) chat(ctx context.Context, parts []contentPart) (string, error) {
	if e.cfg.URL == "" {
		return "", fmt.Errorf("%w: url not configured", ErrProvider)
	}

	ctx, cancel := context.WithTimeout(ctx, time.Duration(e.cfg.TimeoutMs)*time.Millisecond)
	defer cancel()

	body, err := json.Marshal(chatRequest{
		Model:     e.cfg.Model,
		Messages:  []chatMessage{{Role: "user", Content: parts}},
		MaxTokens: 4096,
	})
	if err != nil {
		return "", fmt.Errorf("visionai: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.cfg.URL+apiChatCompletions, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("visionai: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if e.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.cfg.APIKey)
	}

	resp, err := e.cli.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "", fmt.Errorf("%w after %dms", ErrTimeout, e.cfg.TimeoutMs)
		}
		return "", fmt.Errorf("%w: %s", ErrProvider, err.Error())
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: read body: %s", ErrProvider, err.Error())
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: status %d: %s", ErrProvider, resp.StatusCode, truncate(raw, 256))
	}

	var out chatResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("%w: %s", ErrBadResponse, truncate(raw, 256))
	}
	if out.Error != nil {
		return "", fmt.Errorf("%w: %s", ErrProvider, out.Error.Message)
	}
	if len(out.Choices) == 0 {
		return "", fmt.Errorf("%w: empty choices", ErrBadResponse)
	}
	return out.Choices[0].Message.Content, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
