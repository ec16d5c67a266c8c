// Package data 初始化看护服务的数据存储
// 会话审计与归档记录共用同一个库，默认 sqlite 单文件部署
package data

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/glebarez/sqlite"
	"github.com/google/wire"
	"github.com/gowvp/vigil/internal/conf"
	"github.com/ixugo/goddd/pkg/orm"
	"github.com/ixugo/goddd/pkg/system"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// ProviderSet is data providers.
var ProviderSet = wire.NewSet(SetupDB)

// SetupDB 初始化数据存储
func SetupDB(c *conf.Bootstrap) (*gorm.DB, error) {
	cfg := c.Data.Database
	dial, isSQLite := getDialector(cfg.Dsn)
	if isSQLite {
		// sqlite 单写者，连接池收到 1，避免归档写入与审计写入互相 SQLITE_BUSY
		cfg.MaxIdleConns = 1
		cfg.MaxOpenConns = 1
	}
	db, err := orm.New(dial, orm.Config{
		MaxIdleConns:    int(cfg.MaxIdleConns),
		MaxOpenConns:    int(cfg.MaxOpenConns),
		ConnMaxLifetime: cfg.ConnMaxLifetime.Duration(),
		SlowThreshold:   cfg.SlowThreshold.Duration(),
	})
	if err == nil {
		slog.Info("数据存储就绪", "sqlite", isSQLite)
	}
	return db, err
}

// getDialector 返回 dial 和 是否 sqlite
// dsn 不带协议前缀时按 sqlite 文件处理，相对路径挂到工作目录下
func getDialector(dsn string) (gorm.Dialector, bool) {
	switch true {
	case strings.HasPrefix(dsn, "postgres"):
		return postgres.New(postgres.Config{
			DriverName: "pgx",
			DSN:        dsn,
		}), false
	case strings.HasPrefix(dsn, "mysql"):
		return mysql.Open(dsn), false
	default:
		path := dsn
		if !filepath.IsAbs(path) {
			path = filepath.Join(system.Getwd(), path)
		}
		// 首次启动时库文件所在目录可能还不存在
		_ = os.MkdirAll(filepath.Dir(path), 0o755)
		return sqlite.Open(path), true
	}
}
