package monitordb

import (
	"context"

	"github.com/gowvp/vigil/internal/core/monitor"
	"github.com/ixugo/goddd/pkg/orm"
	"gorm.io/gorm"
)

var _ monitor.Storer = DB{}

// DB 会话审计的 gorm 存储
type DB struct {
	db      *gorm.DB
	outcome Outcome
}

func NewDB(db *gorm.DB) DB {
	return DB{db: db, outcome: Outcome{db: db}}
}

// AutoMigrate 按需建表
func (d DB) AutoMigrate(ok bool) DB {
	if ok {
		_ = d.db.AutoMigrate(&monitor.SessionOutcome{})
	}
	return d
}

// Outcome implements monitor.Storer.
func (d DB) Outcome() monitor.OutcomeStorer {
	return d.outcome
}

var _ monitor.OutcomeStorer = Outcome{}

type Outcome struct {
	db *gorm.DB
}

// Add implements monitor.OutcomeStorer.
func (o Outcome) Add(ctx context.Context, row *monitor.SessionOutcome) error {
	return o.db.WithContext(ctx).Create(row).Error
}

// Find implements monitor.OutcomeStorer.
func (o Outcome) Find(ctx context.Context, rows *[]*monitor.SessionOutcome, pager orm.Pager, opts ...orm.QueryOption) (int64, error) {
	db := o.db.WithContext(ctx).Model(&monitor.SessionOutcome{})
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

// Count implements monitor.OutcomeStorer.
func (o Outcome) Count(ctx context.Context, opts ...orm.QueryOption) (int64, error) {
	db := o.db.WithContext(ctx).Model(&monitor.SessionOutcome{})
	for _, fn := range opts {
		db = fn(db)
	}
	var total int64
	err := db.Count(&total).Error
	return total, err
}

// Session implements monitor.OutcomeStorer.
func (o Outcome) Session(ctx context.Context, changeFns ...func(*gorm.DB) error) error {
	return o.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, fn := range changeFns {
			if err := fn(tx); err != nil {
				return err
			}
		}
		return nil
	})
}
