// Package onvifadapter 直连 ONVIF 相机抓取快照帧
package onvifadapter

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gowvp/onvif"
	m "github.com/gowvp/onvif/media"
	sdkmedia "github.com/gowvp/onvif/sdk/media"
	xsdonvif "github.com/gowvp/onvif/xsd/onvif"
	"github.com/gowvp/vigil/internal/conf"
	"github.com/gowvp/vigil/internal/core/monitor"
	"github.com/ixugo/goddd/pkg/conc"
	"github.com/ixugo/goddd/pkg/orm"
)

var _ monitor.FrameSource = (*Adapter)(nil)

// Adapter ONVIF 协议适配器
//
// 设备连接与快照地址都做内存缓存，抓帧路径上只剩一次 HTTP GET；
// 连接失效时清缓存，下一次抓帧重建
type Adapter struct {
	cfg     conf.Onvif
	client  *http.Client
	devices conc.Map[string, *Device] // 设备连接缓存，键为地址
}

// Device ONVIF 设备包装（连接 + 快照地址缓存）
type Device struct {
	*onvif.Device
	snapshotURIs conc.Map[string, string] // profile token -> snapshot uri
}

func NewAdapter(cfg conf.Onvif) *Adapter {
	cli := *http.DefaultClient
	cli.Timeout = 3000 * time.Millisecond
	return &Adapter{
		cfg:    cfg,
		client: &cli,
	}
}

// Capture implements monitor.FrameSource.
// sourceID 是 profile token，留空则取设备第一个 profile
func (a *Adapter) Capture(ctx context.Context, sourceID string) (*monitor.Frame, error) {
	dev, err := a.device(ctx)
	if err != nil {
		return nil, err
	}
	uri, err := a.snapshotURI(ctx, dev, sourceID)
	if err != nil {
		a.devices.Delete(a.cfg.Addr)
		return nil, err
	}

	data, mime, err := a.fetch(ctx, uri)
	if err != nil {
		a.devices.Delete(a.cfg.Addr)
		return nil, err
	}
	return &monitor.Frame{
		SourceID:   sourceID,
		Bytes:      data,
		MIME:       mime,
		CapturedAt: orm.Now(),
	}, nil
}

func (a *Adapter) device(_ context.Context) (*Device, error) {
	if d, ok := a.devices.Load(a.cfg.Addr); ok {
		return d, nil
	}
	onvifDev, err := onvif.NewDevice(onvif.DeviceParams{
		Xaddr:      a.cfg.Addr,
		Username:   a.cfg.Username,
		Password:   a.cfg.Password,
		HttpClient: a.client,
	})
	if err != nil {
		return nil, fmt.Errorf("onvif connect %s: %w", a.cfg.Addr, err)
	}
	d := Device{Device: onvifDev}
	a.devices.Store(a.cfg.Addr, &d)
	return &d, nil
}

func (a *Adapter) snapshotURI(ctx context.Context, dev *Device, token string) (string, error) {
	if token == "" {
		var err error
		if token, err = a.firstProfile(ctx, dev); err != nil {
			return "", err
		}
	}
	if uri, ok := dev.snapshotURIs.Load(token); ok {
		return uri, nil
	}

	var param m.GetSnapshotUri
	param.ProfileToken = xsdonvif.ReferenceToken(token)
	resp, err := sdkmedia.Call_GetSnapshotUri(ctx, dev.Device, param)
	if err != nil {
		return "", fmt.Errorf("onvif snapshot uri: %w", err)
	}
	uri := string(resp.MediaUri.Uri)
	if uri == "" {
		return "", fmt.Errorf("onvif snapshot uri empty for profile %s", token)
	}
	dev.snapshotURIs.Store(token, uri)
	return uri, nil
}

func (a *Adapter) firstProfile(ctx context.Context, dev *Device) (string, error) {
	resp, err := sdkmedia.Call_GetProfiles(ctx, dev.Device, m.GetProfiles{})
	if err != nil {
		return "", fmt.Errorf("onvif profiles: %w", err)
	}
	if len(resp.Profiles) == 0 {
		return "", fmt.Errorf("onvif device %s has no media profiles", a.cfg.Addr)
	}
	return string(resp.Profiles[0].Token), nil
}

// fetch 拉取快照图片，相机普遍要求 Basic 认证
func (a *Adapter) fetch(ctx context.Context, uri string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return nil, "", fmt.Errorf("onvif fetch: %w", err)
	}
	if a.cfg.Username != "" {
		req.SetBasicAuth(a.cfg.Username, a.cfg.Password)
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("onvif fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("onvif fetch: status %d from %s", resp.StatusCode, uri)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("onvif fetch: read body: %w", err)
	}
	if len(data) == 0 {
		return nil, "", fmt.Errorf("onvif fetch: empty frame")
	}

	mime := resp.Header.Get("Content-Type")
	if !strings.HasPrefix(mime, "image/") {
		mime = "image/jpeg"
	}
	return data, mime, nil
}
