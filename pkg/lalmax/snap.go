package lalmax

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const apiStatKeyFrame = "/api/stat/key_frame"

// GetSnapshot 获取流的关键帧图片（PNG）
// 服务端可能在 200 状态码下返回 JSON 错误，需要嗅探响应体区分
func (e *Engine) GetSnapshot(ctx context.Context, streamName string) ([]byte, error) {
	if streamName == "" {
		return nil, fmt.Errorf("lalmax: stream_name is required")
	}

	url := fmt.Sprintf("%s%s?stream_name=%s&type=image", e.cfg.URL, apiStatKeyFrame, streamName)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("lalmax: create request: %w", err)
	}
	if e.cfg.Secret != "" {
		req.Header.Set("Authorization", e.cfg.Secret)
	}

	resp, err := e.cli.Do(req)
	if err != nil {
		return nil, fmt.Errorf("lalmax: request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("lalmax: read response: %w", err)
	}

	switch resp.StatusCode {
	case http.StatusOK:
		if strings.Contains(resp.Header.Get("Content-Type"), "application/json") || looksLikeJSON(body) {
			var h FixedHeader
			if err := json.Unmarshal(body, &h); err == nil {
				if err := errOf(h); err != nil {
					return nil, err
				}
			}
		}
		return body, nil
	case http.StatusTooManyRequests:
		return nil, fmt.Errorf("lalmax: keyframe is being generated, try again later")
	case http.StatusNotFound:
		return nil, fmt.Errorf("lalmax: stream not found: %s", streamName)
	default:
		return nil, fmt.Errorf("lalmax: unexpected status %d: %s", resp.StatusCode, string(body))
	}
}

func looksLikeJSON(body []byte) bool {
	return len(body) > 0 && (body[0] == '{' || body[0] == '[')
}
