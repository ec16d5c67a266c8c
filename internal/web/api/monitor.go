package api

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/gowvp/vigil/internal/core/monitor"
	"github.com/ixugo/goddd/pkg/reason"
	"github.com/ixugo/goddd/pkg/web"
)

// MonitorAPI 为 http 提供业务方法
type MonitorAPI struct {
	monitorCore monitor.Core
}

func NewMonitorAPI(core monitor.Core) MonitorAPI {
	return MonitorAPI{monitorCore: core}
}

func registerMonitor(g gin.IRouter, api MonitorAPI, handler ...gin.HandlerFunc) {
	group := g.Group("/monitor", handler...)
	group.POST("/start", web.WrapH(api.startMonitor))
	group.POST("/stop", web.WrapH(api.stopMonitor))
	group.POST("/trigger", web.WrapH(api.triggerCapture))
	group.GET("/status", web.WrapH(api.getStatus))
	group.GET("/outcomes", web.WrapH(api.findOutcomes))
}

// startMonitor 启动定时采集循环
func (a MonitorAPI) startMonitor(_ *gin.Context, _ *struct{}) (monitor.StatusOutput, error) {
	// 调度循环要跨请求存活，不能挂在请求 ctx 上
	if err := a.monitorCore.Start(context.Background()); err != nil {
		return monitor.StatusOutput{}, err
	}
	return a.monitorCore.Status(), nil
}

// stopMonitor 停止采集循环
// force=false 时等进行中的会话补完剩余帧，force=true 立即取消
func (a MonitorAPI) stopMonitor(_ *gin.Context, in *monitor.StopInput) (monitor.StatusOutput, error) {
	a.monitorCore.Stop(in.Force)
	return a.monitorCore.Status(), nil
}

// triggerCapture 手动触发一次完整采集会话，帧间不等待调度间隔
func (a MonitorAPI) triggerCapture(_ *gin.Context, _ *struct{}) (monitor.TriggerOutput, error) {
	id, err := a.monitorCore.TriggerNow()
	if err != nil {
		if errors.Is(err, monitor.ErrBusy) {
			return monitor.TriggerOutput{}, reason.ErrBadRequest.SetMsg("已有采集会话在进行中")
		}
		return monitor.TriggerOutput{}, err
	}
	return monitor.TriggerOutput{SessionID: id}, nil
}

func (a MonitorAPI) getStatus(_ *gin.Context, _ *struct{}) (monitor.StatusOutput, error) {
	return a.monitorCore.Status(), nil
}

// findOutcomes 分页查询会话审计记录
func (a MonitorAPI) findOutcomes(c *gin.Context, in *monitor.FindOutcomeInput) (any, error) {
	items, total, err := a.monitorCore.FindOutcomes(c.Request.Context(), in)
	return gin.H{"items": items, "total": total}, err
}
