package archivedb

import (
	"context"

	"github.com/gowvp/vigil/internal/core/archive"
	"github.com/ixugo/goddd/pkg/orm"
	"gorm.io/gorm"
)

var _ archive.Storer = DB{}

// DB 归档记录的 gorm 存储
type DB struct {
	db     *gorm.DB
	record Record
}

func NewDB(db *gorm.DB) DB {
	return DB{db: db, record: Record{db: db}}
}

// AutoMigrate 按需建表
func (d DB) AutoMigrate(ok bool) DB {
	if ok {
		_ = d.db.AutoMigrate(&archive.Record{})
	}
	return d
}

// Record implements archive.Storer.
func (d DB) Record() archive.RecordStorer {
	return d.record
}

var _ archive.RecordStorer = Record{}

type Record struct {
	db *gorm.DB
}

// Add implements archive.RecordStorer.
func (r Record) Add(ctx context.Context, rec *archive.Record) error {
	return r.db.WithContext(ctx).Create(rec).Error
}

// Get implements archive.RecordStorer.
func (r Record) Get(ctx context.Context, rec *archive.Record, opts ...orm.QueryOption) error {
	db := r.db.WithContext(ctx).Model(&archive.Record{})
	for _, fn := range opts {
		db = fn(db)
	}
	return db.First(rec).Error
}

// Find implements archive.RecordStorer.
func (r Record) Find(ctx context.Context, rows *[]*archive.Record, pager orm.Pager, opts ...orm.QueryOption) (int64, error) {
	db := r.db.WithContext(ctx).Model(&archive.Record{})
	for _, fn := range opts {
		db = fn(db)
	}
	var total int64
	if err := db.Count(&total).Error; err != nil {
		return 0, err
	}
	if err := db.Offset(pager.Offset()).Limit(pager.Limit()).Find(rows).Error; err != nil {
		return 0, err
	}
	return total, nil
}

// Del implements archive.RecordStorer.
func (r Record) Del(ctx context.Context, rec *archive.Record, opts ...orm.QueryOption) error {
	db := r.db.WithContext(ctx)
	for _, fn := range opts {
		db = fn(db)
	}
	return db.Delete(rec).Error
}

// Count implements archive.RecordStorer.
func (r Record) Count(ctx context.Context, opts ...orm.QueryOption) (int64, error) {
	db := r.db.WithContext(ctx).Model(&archive.Record{})
	for _, fn := range opts {
		db = fn(db)
	}
	var total int64
	err := db.Count(&total).Error
	return total, err
}

// Usage implements archive.RecordStorer.
func (r Record) Usage(ctx context.Context) (int64, error) {
	var usage int64
	err := r.db.WithContext(ctx).Model(&archive.Record{}).
		Select("COALESCE(SUM(size_bytes), 0)").Scan(&usage).Error
	return usage, err
}

// Session implements archive.RecordStorer.
func (r Record) Session(ctx context.Context, changeFns ...func(*gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, fn := range changeFns {
			if err := fn(tx); err != nil {
				return err
			}
		}
		return nil
	})
}
