package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gowvp/vigil/internal/conf"
	"github.com/gowvp/vigil/internal/core/archive"
	"github.com/gowvp/vigil/internal/core/report"
	"github.com/ixugo/goddd/pkg/web"
)

// ArchiveAPI 为 http 提供业务方法
type ArchiveAPI struct {
	archiveCore *archive.Core
	conf        *conf.Bootstrap
}

func NewArchiveAPI(core *archive.Core, conf *conf.Bootstrap) ArchiveAPI {
	return ArchiveAPI{archiveCore: core, conf: conf}
}

func registerArchive(g gin.IRouter, api ArchiveAPI, handler ...gin.HandlerFunc) {
	{
		group := g.Group("/sessions", handler...)
		group.GET("", web.WrapH(api.findSessions))
		group.GET("/:id", web.WrapH(api.getSession))
		group.GET("/:id/report", web.WrapH(api.getSessionReport))
	}
	{
		group := g.Group("/archive", handler...)
		group.GET("/stats", web.WrapH(api.getArchiveStats))
		group.GET("/export", api.exportSessions)
		group.POST("/purge", web.WrapH(api.purgeSessions))
	}
}

// findSessions 分页查询归档会话
func (a ArchiveAPI) findSessions(c *gin.Context, in *archive.FindRecordInput) (any, error) {
	items, total, err := a.archiveCore.FindRecords(c.Request.Context(), in)
	return gin.H{"items": items, "total": total}, err
}

// getSession 取单条归档记录及完整会话内容
func (a ArchiveAPI) getSession(c *gin.Context, _ *struct{}) (any, error) {
	rec, sess, err := a.archiveCore.GetSession(c.Request.Context(), c.Param("id"))
	if err != nil {
		return nil, err
	}
	return gin.H{"record": rec, "session": sess}, nil
}

type sessionReportOutput struct {
	SessionID string `json:"session_id"`
	Summary   string `json:"summary"`
	Detail    string `json:"detail"` // markdown
}

// getSessionReport 渲染会话的人类可读报告
func (a ArchiveAPI) getSessionReport(c *gin.Context, _ *struct{}) (sessionReportOutput, error) {
	_, sess, err := a.archiveCore.GetSession(c.Request.Context(), c.Param("id"))
	if err != nil {
		return sessionReportOutput{}, err
	}
	return sessionReportOutput{
		SessionID: sess.ID,
		Summary:   report.Summarize(sess),
		Detail:    report.Detail(sess),
	}, nil
}

func (a ArchiveAPI) getArchiveStats(c *gin.Context, _ *struct{}) (archive.StatsOutput, error) {
	usage, count, err := a.archiveCore.Stats(c.Request.Context())
	if err != nil {
		return archive.StatsOutput{}, err
	}
	return archive.StatsOutput{
		UsageBytes: usage,
		QuotaBytes: a.conf.Archive.QuotaBytes,
		Records:    count,
	}, nil
}

// exportSessions 导出归档为 JSON 文件下载
// 不走 WrapH，需要设置下载头并原样输出字节
func (a ArchiveAPI) exportSessions(c *gin.Context) {
	var in archive.ExportInput
	if err := c.ShouldBindQuery(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"msg": err.Error()})
		return
	}
	data, err := a.archiveCore.Export(c.Request.Context(), &in)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"msg": err.Error()})
		return
	}
	filename := fmt.Sprintf("vigil_export_%s.json", time.Now().Format("20060102_150405"))
	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	c.Data(http.StatusOK, "application/json", data)
}

// purgeSessions 手动触发一次过期清理
func (a ArchiveAPI) purgeSessions(c *gin.Context, _ *struct{}) (archive.PurgeOutput, error) {
	n, err := a.archiveCore.PurgeExpired(c.Request.Context())
	if err != nil {
		return archive.PurgeOutput{}, err
	}
	return archive.PurgeOutput{Purged: n}, nil
}
