package archive_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/gowvp/vigil/internal/conf"
	"github.com/gowvp/vigil/internal/core/archive"
	"github.com/gowvp/vigil/internal/core/archive/store/archivedb"
	"github.com/gowvp/vigil/internal/core/monitor"
	"github.com/ixugo/goddd/pkg/orm"
	"github.com/ixugo/goddd/pkg/web"
	"gorm.io/gorm"
)

func newTestCore(t *testing.T, cfg conf.Archive) *archive.Core {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{})
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Dir == "" {
		cfg.Dir = t.TempDir()
	}
	if cfg.JPEGQuality == 0 {
		cfg.JPEGQuality = 80
	}
	return archive.NewCore(archivedb.NewDB(db).AutoMigrate(true), &cfg)
}

// testJPEG 生成一张可解码的真实图片
func testJPEG(t *testing.T, side int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, side, side))
	for x := range side {
		for y := range side {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 95}); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func completedSession(id string, risk string, frames ...[]byte) *monitor.CaptureSession {
	now := orm.Now()
	sess := monitor.CaptureSession{
		ID:        id,
		SourceID:  "cam01",
		Status:    monitor.StatusCompleted,
		Target:    len(frames),
		StartedAt: now,
		EndedAt:   &now,
		MetaReport: &monitor.MetaReport{
			SourceSessionID: id,
			GeneratedAt:     now,
			Source:          monitor.SourceAIProvider,
			RiskLevel:       risk,
			TemporalTrend:   monitor.TrendStable,
			Summary:         "subject stable",
		},
	}
	for i, raw := range frames {
		sess.Frames = append(sess.Frames, monitor.FrameResult{
			FrameIndex: i + 1,
			CapturedAt: now,
			RawFrame:   raw,
			Source:     monitor.SourceAIProvider,
			Analysis:   monitor.Assessment{Detected: true, Confidence: 0.9},
		})
	}
	return &sess
}

func TestSaveAndGetSession(t *testing.T) {
	dir := t.TempDir()
	core := newTestCore(t, conf.Archive{
		Dir: dir, QuotaBytes: 10 << 20,
		RetainDaysNormal: 7, RetainDaysCritical: 30,
	})

	sess := completedSession("sess-1", monitor.RiskLow, testJPEG(t, 64), testJPEG(t, 64))
	if err := core.SaveSession(context.Background(), sess); err != nil {
		t.Fatal(err)
	}

	rec, got, err := core.GetSession(context.Background(), "sess-1")
	if err != nil {
		t.Fatal(err)
	}
	if rec.RetentionClass != archive.RetentionNormal {
		t.Fatalf("retention class = %s", rec.RetentionClass)
	}
	if rec.FrameCount != 2 || rec.SizeBytes <= 0 {
		t.Fatalf("record = %+v", rec)
	}
	if len(got.Frames) != 2 || got.Frames[0].RawFrameRef == "" {
		t.Fatalf("payload frames = %+v", got.Frames)
	}
	// 帧文件在引用的位置上
	if _, err := os.Stat(filepath.Join(dir, got.Frames[0].RawFrameRef)); err != nil {
		t.Fatal(err)
	}
}

func TestHighRiskGetsCriticalRetention(t *testing.T) {
	core := newTestCore(t, conf.Archive{
		QuotaBytes: 10 << 20, RetainDaysNormal: 7, RetainDaysCritical: 30,
	})
	sess := completedSession("sess-high", monitor.RiskHigh)
	if err := core.SaveSession(context.Background(), sess); err != nil {
		t.Fatal(err)
	}
	rec, _, err := core.GetSession(context.Background(), "sess-high")
	if err != nil {
		t.Fatal(err)
	}
	if rec.RetentionClass != archive.RetentionCritical {
		t.Fatalf("retention class = %s", rec.RetentionClass)
	}
	if !rec.ExpiresAt.After(rec.CreatedAt.AddDate(0, 0, 29)) {
		t.Fatalf("expires_at = %v", rec.ExpiresAt)
	}
}

// 配额不变量：随机大小连续写入，任何时刻占用不超过配额，
// 且 critical 记录最后被逐出
func TestQuotaEviction(t *testing.T) {
	const quota = 200 << 10
	core := newTestCore(t, conf.Archive{
		QuotaBytes: quota, RetainDaysNormal: 7, RetainDaysCritical: 30,
	})
	ctx := context.Background()

	r := rand.New(rand.NewPCG(42, 0))
	// JPEG 解不开的随机字节会原样落盘，大小完全可控
	randomFrame := func(n int) []byte {
		b := make([]byte, n)
		for i := range b {
			b[i] = byte(r.IntN(256))
		}
		return b
	}

	critical := completedSession("sess-critical", monitor.RiskCritical, randomFrame(20<<10))
	if err := core.SaveSession(ctx, critical); err != nil {
		t.Fatal(err)
	}

	for i := range 20 {
		id := fmt.Sprintf("sess-%03d", i)
		sess := completedSession(id, monitor.RiskLow, randomFrame(10<<10+r.IntN(30<<10)))
		if err := core.SaveSession(ctx, sess); err != nil {
			t.Fatal(err)
		}

		usage, _, err := core.Stats(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if usage > quota {
			t.Fatalf("usage %d exceeds quota %d after %s", usage, quota, id)
		}
		// 新写入的记录必须存在
		if _, _, err := core.GetSession(ctx, id); err != nil {
			t.Fatalf("latest session evicted: %v", err)
		}
	}

	// normal 还有可逐出的记录，critical 不应被动过
	if _, _, err := core.GetSession(ctx, "sess-critical"); err != nil {
		t.Fatalf("critical record evicted while normals remained: %v", err)
	}
	records, _, err := core.FindRecords(ctx, &archive.FindRecordInput{
		PagerFilter:    web.PagerFilter{Page: 1, Size: 100},
		RetentionClass: archive.RetentionNormal,
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(records) == 0 {
		t.Fatal("expected surviving normal records")
	}
}

func TestQuotaExceededOversized(t *testing.T) {
	core := newTestCore(t, conf.Archive{
		QuotaBytes: 8 << 10, RetainDaysNormal: 7, RetainDaysCritical: 30,
	})
	big := make([]byte, 64<<10)
	sess := completedSession("sess-big", monitor.RiskLow, big)

	err := core.SaveSession(context.Background(), sess)
	if !errors.Is(err, archive.ErrQuotaExceeded) {
		t.Fatalf("want ErrQuotaExceeded, got %v", err)
	}
	if _, count, err := core.Stats(context.Background()); err != nil || count != 0 {
		t.Fatalf("store should stay empty: count=%d err=%v", count, err)
	}
}

// 超配额的写入只能被拒绝，不允许为它清空既有存档
func TestQuotaExceededKeepsExistingRecords(t *testing.T) {
	dir := t.TempDir()
	core := newTestCore(t, conf.Archive{
		Dir: dir, QuotaBytes: 64 << 10,
		RetainDaysNormal: 7, RetainDaysCritical: 30,
	})
	ctx := context.Background()

	for i := range 3 {
		id := fmt.Sprintf("sess-%d", i)
		if err := core.SaveSession(ctx, completedSession(id, monitor.RiskLow, testJPEG(t, 32))); err != nil {
			t.Fatal(err)
		}
	}

	big := completedSession("sess-big", monitor.RiskLow, make([]byte, 128<<10))
	if err := core.SaveSession(ctx, big); !errors.Is(err, archive.ErrQuotaExceeded) {
		t.Fatalf("want ErrQuotaExceeded, got %v", err)
	}

	// 既有记录与帧文件都还在
	if _, count, err := core.Stats(ctx); err != nil || count != 3 {
		t.Fatalf("existing records lost: count=%d err=%v", count, err)
	}
	for i := range 3 {
		id := fmt.Sprintf("sess-%d", i)
		_, payload, err := core.GetSession(ctx, id)
		if err != nil {
			t.Fatalf("%s: %v", id, err)
		}
		if _, err := os.Stat(filepath.Join(dir, payload.Frames[0].RawFrameRef)); err != nil {
			t.Fatalf("%s frame file: %v", id, err)
		}
	}
}

func TestPurgeExpiredIdempotent(t *testing.T) {
	dir := t.TempDir()
	// 负保留天数：写入即过期
	core := newTestCore(t, conf.Archive{
		Dir: dir, QuotaBytes: 10 << 20,
		RetainDaysNormal: -1, RetainDaysCritical: 30,
	})
	ctx := context.Background()

	sess := completedSession("sess-exp", monitor.RiskLow, testJPEG(t, 32))
	if err := core.SaveSession(ctx, sess); err != nil {
		t.Fatal(err)
	}

	n, err := core.PurgeExpired(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("purged = %d", n)
	}
	if _, err := os.Stat(filepath.Join(dir, "sess-exp")); !os.IsNotExist(err) {
		t.Fatal("frame dir should be removed with the record")
	}

	// 再次调用没有新动作
	n, err = core.PurgeExpired(ctx)
	if err != nil || n != 0 {
		t.Fatalf("second purge: n=%d err=%v", n, err)
	}
}

func TestExportRedaction(t *testing.T) {
	core := newTestCore(t, conf.Archive{
		QuotaBytes: 10 << 20, RetainDaysNormal: 7, RetainDaysCritical: 30,
	})
	ctx := context.Background()
	if err := core.SaveSession(ctx, completedSession("sess-exp", monitor.RiskLow, testJPEG(t, 32))); err != nil {
		t.Fatal(err)
	}

	redacted, err := core.Export(ctx, &archive.ExportInput{
		FindRecordInput: archive.FindRecordInput{PagerFilter: web.PagerFilter{Page: 1, Size: 10}},
		Redact:          true,
	})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(redacted), `"sha256"`) {
		t.Fatal("redacted export should carry frame digests")
	}
	if strings.Contains(string(redacted), `"data"`) {
		t.Fatal("redacted export must not carry frame bytes")
	}

	full, err := core.Export(ctx, &archive.ExportInput{
		FindRecordInput: archive.FindRecordInput{PagerFilter: web.PagerFilter{Page: 1, Size: 10}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(full), `"data"`) {
		t.Fatal("trusted export should carry frame bytes")
	}
}
