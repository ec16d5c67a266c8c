package archive

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/gowvp/vigil/internal/core/monitor"
	"github.com/ixugo/goddd/pkg/orm"
	"github.com/jinzhu/copier"
)

var _ monitor.Archiver = (*Core)(nil)

// SaveSession 归档一次终态会话
//
// 帧图片统一重编码为 JPEG 后落盘，会话 JSON 存入记录本体。
// 超出配额时先在 normal 级别内按最旧优先逐出，再逐出 critical，
// 全部腾空仍放不下才返回 ErrQuotaExceeded。
func (c *Core) SaveSession(ctx context.Context, sess *monitor.CaptureSession) error {
	blobs, snapshot, err := c.prepareFrames(sess)
	if err != nil {
		return fmt.Errorf("archive: prepare frames: %w", err)
	}
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("archive: marshal session: %w", err)
	}

	size := int64(len(payload))
	for _, b := range blobs {
		size += int64(len(b))
	}

	rec := Record{
		SessionID:      sess.ID,
		SourceID:       sess.SourceID,
		Status:         sess.Status,
		RetentionClass: retentionClass(sess),
		Payload:        payload,
		FrameDir:       sess.ID,
		FrameCount:     len(blobs),
		SizeBytes:      size,
		CreatedAt:      orm.Now(),
	}
	if sess.MetaReport != nil {
		rec.RiskLevel = sess.MetaReport.RiskLevel
	}
	rec.ExpiresAt = orm.Time{Time: rec.CreatedAt.Add(c.retention(rec.RetentionClass))}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.ensureRoomLocked(ctx, size); err != nil {
		return err
	}
	if err := c.writeFrames(sess.ID, blobs); err != nil {
		return fmt.Errorf("archive: write frames: %w", err)
	}
	if err := c.store.Record().Add(ctx, &rec); err != nil {
		_ = os.RemoveAll(filepath.Join(c.cfg.Dir, rec.FrameDir))
		return fmt.Errorf("archive: add record: %w", err)
	}
	slog.Info("会话已归档",
		"session_id", sess.ID,
		"retention_class", rec.RetentionClass,
		"size_bytes", size,
		"expires_at", rec.ExpiresAt.Format(time.DateTime),
	)
	return nil
}

// prepareFrames 帧重编码，并产出帧引用就位的会话快照
func (c *Core) prepareFrames(sess *monitor.CaptureSession) ([][]byte, *monitor.CaptureSession, error) {
	var snapshot monitor.CaptureSession
	if err := copier.Copy(&snapshot, sess); err != nil {
		return nil, nil, err
	}

	blobs := make([][]byte, 0, len(sess.Frames))
	for i := range sess.Frames {
		raw := sess.Frames[i].RawFrame
		if len(raw) == 0 {
			continue
		}
		blob, err := compressFrame(raw, c.cfg.JPEGQuality)
		if err != nil {
			// 解码失败的帧原样保留，归档不因单帧受阻
			slog.Warn("帧重编码失败，保留原始字节", "session_id", sess.ID, "frame_index", i+1, "err", err)
			blob = raw
		}
		snapshot.Frames[i].RawFrameRef = frameRef(sess.ID, i+1)
		blobs = append(blobs, blob)
	}
	return blobs, &snapshot, nil
}

func frameRef(sessionID string, index int) string {
	return filepath.Join(sessionID, fmt.Sprintf("frame_%03d.jpg", index))
}

func (c *Core) writeFrames(sessionID string, blobs [][]byte) error {
	if len(blobs) == 0 {
		return nil
	}
	dir := filepath.Join(c.cfg.Dir, sessionID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	for i, b := range blobs {
		if err := os.WriteFile(filepath.Join(c.cfg.Dir, frameRef(sessionID, i+1)), b, 0o644); err != nil {
			return err
		}
	}
	return nil
}

func retentionClass(sess *monitor.CaptureSession) string {
	if m := sess.MetaReport; m != nil {
		if m.RiskLevel == monitor.RiskHigh || m.RiskLevel == monitor.RiskCritical {
			return RetentionCritical
		}
	}
	return RetentionNormal
}

func (c *Core) retention(class string) time.Duration {
	days := c.cfg.RetainDaysNormal
	if class == RetentionCritical {
		days = c.cfg.RetainDaysCritical
	}
	return time.Duration(days) * 24 * time.Hour
}

// ensureRoomLocked 逐出到放得下为止，调用方必须持有 mu
func (c *Core) ensureRoomLocked(ctx context.Context, need int64) error {
	// 单条记录本身就超配额时逐出再多也放不下，直接拒绝，不清空已有存档
	if need > c.cfg.QuotaBytes {
		return fmt.Errorf("%w: need %d bytes, quota %d", ErrQuotaExceeded, need, c.cfg.QuotaBytes)
	}
	usage, err := c.store.Record().Usage(ctx)
	if err != nil {
		return fmt.Errorf("archive: usage: %w", err)
	}
	for usage+need > c.cfg.QuotaBytes {
		victim, err := c.oldest(ctx, RetentionNormal)
		if err != nil {
			if !orm.IsErrRecordNotFound(err) {
				return fmt.Errorf("archive: pick victim: %w", err)
			}
			victim, err = c.oldest(ctx, RetentionCritical)
			if err != nil {
				if orm.IsErrRecordNotFound(err) {
					return fmt.Errorf("%w: need %d bytes, quota %d", ErrQuotaExceeded, need, c.cfg.QuotaBytes)
				}
				return fmt.Errorf("archive: pick victim: %w", err)
			}
		}
		if err := c.removeRecord(ctx, victim); err != nil {
			return err
		}
		usage -= victim.SizeBytes
		slog.Info("配额逐出", "session_id", victim.SessionID, "retention_class", victim.RetentionClass, "size_bytes", victim.SizeBytes)
	}
	return nil
}

func (c *Core) oldest(ctx context.Context, class string) (*Record, error) {
	var rec Record
	if err := c.store.Record().Get(ctx, &rec,
		orm.Where("retention_class=?", class),
		orm.OrderBy("created_at ASC"),
	); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (c *Core) removeRecord(ctx context.Context, rec *Record) error {
	if err := c.store.Record().Del(ctx, rec, orm.Where("id=?", rec.ID)); err != nil {
		return fmt.Errorf("archive: delete record: %w", err)
	}
	if rec.FrameDir != "" {
		_ = os.RemoveAll(filepath.Join(c.cfg.Dir, rec.FrameDir))
	}
	return nil
}

// FindRecords 查询归档记录，默认新的在前
func (c *Core) FindRecords(ctx context.Context, in *FindRecordInput) ([]*Record, int64, error) {
	query := orm.NewQuery(4).OrderBy("created_at DESC")
	if in.Status != "" {
		query.Where("status = ?", in.Status)
	}
	if in.RiskLevel != "" {
		query.Where("risk_level = ?", in.RiskLevel)
	}
	if in.SourceID != "" {
		query.Where("source_id = ?", in.SourceID)
	}
	if in.RetentionClass != "" {
		query.Where("retention_class = ?", in.RetentionClass)
	}

	items := make([]*Record, 0, in.Limit())
	total, err := c.store.Record().Find(ctx, &items, in, query.Encode()...)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// GetSession 取回一条归档会话
func (c *Core) GetSession(ctx context.Context, sessionID string) (*Record, *monitor.CaptureSession, error) {
	var rec Record
	if err := c.store.Record().Get(ctx, &rec, orm.Where("session_id=?", sessionID)); err != nil {
		return nil, nil, err
	}
	var sess monitor.CaptureSession
	if err := json.Unmarshal(rec.Payload, &sess); err != nil {
		return nil, nil, fmt.Errorf("archive: decode payload: %w", err)
	}
	return &rec, &sess, nil
}

// PurgeExpired 清理所有过期记录，可重复调用
func (c *Core) PurgeExpired(ctx context.Context) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var purged int
	for {
		var rows []*Record
		if _, err := c.store.Record().Find(ctx, &rows, pageOf(100),
			orm.Where("expires_at < ?", time.Now()),
			orm.OrderBy("created_at ASC"),
		); err != nil {
			return purged, err
		}
		if len(rows) == 0 {
			return purged, nil
		}
		for _, rec := range rows {
			if err := c.removeRecord(ctx, rec); err != nil {
				return purged, err
			}
			purged++
		}
	}
}

// Stats 当前占用与记录数，供健康接口展示
func (c *Core) Stats(ctx context.Context) (usage int64, count int64, err error) {
	if usage, err = c.store.Record().Usage(ctx); err != nil {
		return 0, 0, err
	}
	if count, err = c.store.Record().Count(ctx); err != nil {
		return 0, 0, err
	}
	return usage, count, nil
}

// Export 导出归档会话
// redact=true 时帧内容只保留摘要（sha256+大小），
// 适用于导出目标不是本地可信存储的场景
func (c *Core) Export(ctx context.Context, in *ExportInput) ([]byte, error) {
	records, _, err := c.FindRecords(ctx, &in.FindRecordInput)
	if err != nil {
		return nil, err
	}

	out := make([]exportRecord, 0, len(records))
	for _, rec := range records {
		doc := exportRecord{Record: rec, Session: json.RawMessage(rec.Payload)}
		frames, err := c.exportFrames(rec, in.Redact)
		if err != nil {
			return nil, err
		}
		doc.Frames = frames
		out = append(out, doc)
	}
	return json.MarshalIndent(map[string]any{
		"exported_at": time.Now().Format(time.RFC3339),
		"redacted":    in.Redact,
		"records":     out,
	}, "", "  ")
}

type exportRecord struct {
	Record  *Record         `json:"record"`
	Session json.RawMessage `json:"session"`
	Frames  []exportFrame   `json:"frames,omitempty"`
}

type exportFrame struct {
	Ref       string `json:"ref"`
	SizeBytes int64  `json:"size_bytes"`
	SHA256    string `json:"sha256,omitempty"`
	Data      string `json:"data,omitempty"` // base64，仅非脱敏导出携带
}

func (c *Core) exportFrames(rec *Record, redact bool) ([]exportFrame, error) {
	if rec.FrameDir == "" {
		return nil, nil
	}
	dir := filepath.Join(c.cfg.Dir, rec.FrameDir)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	frames := make([]exportFrame, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, err
		}
		f := exportFrame{
			Ref:       filepath.Join(rec.FrameDir, e.Name()),
			SizeBytes: int64(len(data)),
		}
		if redact {
			sum := sha256.Sum256(data)
			f.SHA256 = hex.EncodeToString(sum[:])
		} else {
			f.Data = base64.StdEncoding.EncodeToString(data)
		}
		frames = append(frames, f)
	}
	return frames, nil
}

// pageOf 内部批处理用的分页器
type pageOf int

func (p pageOf) Offset() int { return 0 }
func (p pageOf) Limit() int  { return int(p) }
