package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/wire"
	"github.com/gowvp/vigil/internal/adapter/mediaadapter"
	"github.com/gowvp/vigil/internal/adapter/onvifadapter"
	"github.com/gowvp/vigil/internal/conf"
	"github.com/gowvp/vigil/internal/core/analysis"
	"github.com/gowvp/vigil/internal/core/archive"
	"github.com/gowvp/vigil/internal/core/archive/store/archivedb"
	"github.com/gowvp/vigil/internal/core/monitor"
	"github.com/gowvp/vigil/internal/core/monitor/store/monitordb"
	"github.com/gowvp/vigil/pkg/visionai"
	"github.com/ixugo/goddd/pkg/orm"
	"github.com/ixugo/goddd/pkg/web"
	"gorm.io/gorm"
)

var ProviderSet = wire.NewSet(
	wire.Struct(new(Usecase), "*"),
	NewHTTPHandler,
	NewVisionEngine,
	NewFrameSource,
	NewAnalyzer, NewSynthesizer,
	NewArchiveStore, NewArchiveCore,
	NewMonitorStore, NewMonitorCore,
	NewMonitorAPI, NewArchiveAPI,
)

type Usecase struct {
	Conf       *conf.Bootstrap
	DB         *gorm.DB
	MonitorAPI MonitorAPI
	ArchiveAPI ArchiveAPI
}

// NewHTTPHandler 生成Gin框架路由内容
func NewHTTPHandler(uc *Usecase) http.Handler {
	cfg := uc.Conf
	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	g := gin.New()
	g.NoRoute(func(c *gin.Context) {
		c.JSON(404, gin.H{"msg": "来到了无人的荒漠"})
	})
	// 如果启用了 Pprof，设置 Pprof 监控
	if cfg.Server.HTTP.PProf.Enabled {
		web.SetupPProf(g, &cfg.Server.HTTP.PProf.AccessIps)
	}

	setupRouter(g, uc)
	return g
}

// NewVisionEngine 视觉模型客户端
func NewVisionEngine(bc *conf.Bootstrap) visionai.Engine {
	v := bc.Vision
	return visionai.NewEngine().SetConfig(visionai.Config{
		URL:       v.URL,
		APIKey:    v.APIKey,
		Model:     v.Model,
		TimeoutMs: v.TimeoutMs,
	})
}

// NewFrameSource 依据配置选择抓帧适配器
func NewFrameSource(bc *conf.Bootstrap) (monitor.FrameSource, error) {
	switch bc.Monitor.SourceType {
	case "onvif":
		return onvifadapter.NewAdapter(bc.Onvif), nil
	case "media", "":
		a := mediaadapter.NewAdapter(bc.Media)
		// 配了回源地址时把相机流拉进媒体服务器，失败只告警
		go a.EnsurePull(context.Background(), bc.Monitor.SourceID)
		return a, nil
	default:
		return nil, fmt.Errorf("未知的 source_type: %q", bc.Monitor.SourceType)
	}
}

// NewAnalyzer 单帧分析器
func NewAnalyzer(engine visionai.Engine) monitor.FrameAnalyzer {
	return analysis.NewAnalyzer(engine)
}

// NewSynthesizer 序列合成器
func NewSynthesizer(engine visionai.Engine, bc *conf.Bootstrap) monitor.Synthesizer {
	return analysis.NewSynthesizer(engine, bc.Monitor.Subject)
}

// NewArchiveStore 创建归档存储层
func NewArchiveStore(db *gorm.DB) archive.Storer {
	return archivedb.NewDB(db).AutoMigrate(orm.GetEnabledAutoMigrate())
}

// NewArchiveCore 创建归档核心服务并启动过期清理协程
func NewArchiveCore(store archive.Storer, bc *conf.Bootstrap) *archive.Core {
	core := archive.NewCore(store, &bc.Archive)
	core.StartPurgeWorker(context.Background())
	return core
}

// NewMonitorStore 创建采集审计存储层
func NewMonitorStore(db *gorm.DB) monitor.Storer {
	return monitordb.NewDB(db).AutoMigrate(orm.GetEnabledAutoMigrate())
}

// NewMonitorCore 组装采集调度核心
// 归档领域通过 monitor.Archiver 端口注入，monitor 不反向依赖 archive 的存储细节
// cleanup 在进程退出前排空在途会话
func NewMonitorCore(store monitor.Storer, bc *conf.Bootstrap,
	fs monitor.FrameSource, an monitor.FrameAnalyzer, syn monitor.Synthesizer, arc *archive.Core,
) (monitor.Core, func()) {
	core := monitor.NewCore(store,
		monitor.WithConfig(&bc.Monitor),
		monitor.WithFrameSource(fs),
		monitor.WithAnalyzer(an),
		monitor.WithSynthesizer(syn),
		monitor.WithArchiver(arc),
	)
	if bc.Monitor.AutoStart {
		if err := core.Start(context.Background()); err != nil {
			slog.Error("采集循环自动启动失败", "err", err)
		}
	}
	cleanup := func() {
		core.Stop(false)
		// 给在途会话最多 15 秒补完剩余帧
		deadline := time.Now().Add(15 * time.Second)
		for time.Now().Before(deadline) {
			if core.Status().State != monitor.StateSessionActive {
				return
			}
			time.Sleep(200 * time.Millisecond)
		}
		slog.Warn("在途会话未能在退出前排空")
	}
	return core, cleanup
}
