// Package lalmax 封装 lalmax 流媒体服务器的 HTTP API
// 只保留看护管线用到的能力：快照抓取与回源拉流
package lalmax

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

type Config struct {
	URL    string // 服务地址，如 http://localhost:8080
	Secret string // 接口鉴权，可为空
}

type Engine struct {
	cfg Config
	cli *http.Client
}

func NewEngine() Engine {
	return Engine{
		cli: &http.Client{
			Timeout: 5 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        30,
				MaxIdleConnsPerHost: 30,
				MaxConnsPerHost:     100,
			},
		},
	}
}

func (e Engine) SetConfig(cfg Config) Engine {
	e.cfg = cfg
	return e
}

// FixedHeader lalmax 接口的通用响应头
type FixedHeader struct {
	Code ResCode `json:"code"`
	Msg  string  `json:"msg"`
}

// post 发送 POST 请求
func (e *Engine) post(ctx context.Context, path string, data map[string]any, out any) error {
	body, _ := json.Marshal(data)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.cfg.URL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("lalmax: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if e.cfg.Secret != "" {
		req.Header.Set("Authorization", e.cfg.Secret)
	}
	resp, err := e.cli.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return json.NewDecoder(resp.Body).Decode(out)
}
