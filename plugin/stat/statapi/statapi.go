// Package statapi 主机资源 http 接口
package statapi

import (
	"github.com/gin-gonic/gin"
	"github.com/gowvp/vigil/plugin/stat"
	"github.com/ixugo/goddd/pkg/web"
)

// Register 注册主机资源接口
func Register(r gin.IRouter) {
	r.GET("/app/stats", web.WrapH(getStats))
}

func getStats(_ *gin.Context, _ *struct{}) (*stat.Snapshot, error) {
	if s := stat.Load(); s != nil {
		return s, nil
	}
	return &stat.Snapshot{}, nil
}
