package lalmax

import (
	"context"
	"encoding/json"
)

const (
	apiCtrlStartRelayPull = "/api/ctrl/startRelayPull"
	apiCtrlStopRelayPull  = "/api/ctrl/stopRelayPull"
)

// StartRelayPullInput 回源拉流参数
// 把相机的 rtsp/rtmp 流拉进媒体服务器，之后才能对该流抓快照
type StartRelayPullInput struct {
	URL           string `json:"url"`             // 必填，回源完整地址，支持 rtmp 和 rtsp
	StreamName    string `json:"stream_name"`     // 选填，不指定则从 url 解析
	PullTimeoutMs int    `json:"pull_timeout_ms"` // 选填，建连超时（毫秒）
	PullRetryNum  int    `json:"pull_retry_num"`  // 选填，-1 一直重试，0 不重试
	RtspMode      int    `json:"rtsp_mode"`       // 选填，0 tcp / 1 udp
}

type StartRelayPullOutput struct {
	FixedHeader
	Data struct {
		StreamName string `json:"stream_name"`
		SessionID  string `json:"session_id"`
	} `json:"data"`
}

// StartRelayPull 启动回源拉流
func (e *Engine) StartRelayPull(ctx context.Context, in StartRelayPullInput) (*StartRelayPullOutput, error) {
	body, err := struct2map(in)
	if err != nil {
		return nil, err
	}
	var out StartRelayPullOutput
	if err := e.post(ctx, apiCtrlStartRelayPull, body, &out); err != nil {
		return nil, err
	}
	if err := errOf(out.FixedHeader); err != nil {
		return nil, err
	}
	return &out, nil
}

// StopRelayPull 停止回源拉流
func (e *Engine) StopRelayPull(ctx context.Context, streamName string) error {
	var out struct {
		FixedHeader
	}
	if err := e.post(ctx, apiCtrlStopRelayPull, map[string]any{"stream_name": streamName}, &out); err != nil {
		return err
	}
	return errOf(out.FixedHeader)
}

func struct2map(in any) (map[string]any, error) {
	b, err := json.Marshal(in)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return out, nil
}
