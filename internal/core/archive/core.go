package archive

import (
	"context"
	"errors"
	"sync"

	"github.com/gowvp/vigil/internal/conf"
	"github.com/ixugo/goddd/pkg/orm"
	"gorm.io/gorm"
)

// ErrQuotaExceeded 腾空所有可逐出记录后仍放不下新写入
var ErrQuotaExceeded = errors.New("archive: quota exceeded")

// Storer data persistence
type Storer interface {
	Record() RecordStorer
}

// RecordStorer 归档记录存储
type RecordStorer interface {
	Add(context.Context, *Record) error
	Get(context.Context, *Record, ...orm.QueryOption) error
	Find(context.Context, *[]*Record, orm.Pager, ...orm.QueryOption) (int64, error)
	Del(context.Context, *Record, ...orm.QueryOption) error
	Count(context.Context, ...orm.QueryOption) (int64, error)
	// Usage 当前占用的总字节数
	Usage(context.Context) (int64, error)
	Session(context.Context, ...func(*gorm.DB) error) error
}

// Core business domain
//
// 配额存储是会话之间唯一共享的可变资源，
// save/purge 全部经过 mu 串行化，并发逐出与写入下配额不变量依然精确
type Core struct {
	store Storer
	cfg   *conf.Archive
	mu    sync.Mutex
}

// NewCore create business domain
func NewCore(store Storer, cfg *conf.Archive) *Core {
	return &Core{store: store, cfg: cfg}
}
