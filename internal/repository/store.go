package repository

import (
	"context"
	"database/sql"

	"gorm.io/gorm"
)

// Store 汇总所有仓储，InTx 内得到绑定同一事务的副本
type Store struct {
	db     *gorm.DB
	txOpts *sql.TxOptions

	Users    *UserRepository
	Levels   *LevelRepository
	Subjects *SubjectRepository
	Counters *CounterRepository
	Visits   *VisitRepository
	Catalog  *CatalogRepository
	Titles   *TitleRepository
	Activity *ActivityRepository
	Markers  *MarkerRepository
	Perks    *PerkRepository
}

// NewStore 创建仓储集合；txOpts 为 nil 时使用驱动默认隔离级别
func NewStore(db *gorm.DB, txOpts *sql.TxOptions) *Store {
	return &Store{
		db:       db,
		txOpts:   txOpts,
		Users:    NewUserRepository(db),
		Levels:   NewLevelRepository(db),
		Subjects: NewSubjectRepository(db),
		Counters: NewCounterRepository(db),
		Visits:   NewVisitRepository(db),
		Catalog:  NewCatalogRepository(db),
		Titles:   NewTitleRepository(db),
		Activity: NewActivityRepository(db),
		Markers:  NewMarkerRepository(db),
		Perks:    NewPerkRepository(db),
	}
}

// DB 底层连接
func (s *Store) DB() *gorm.DB {
	return s.db
}

// InTx 在事务中执行 fn；fn 返回错误时整体回滚
func (s *Store) InTx(ctx context.Context, fn func(tx *Store) error) error {
	run := func(tx *gorm.DB) error {
		return fn(NewStore(tx, s.txOpts))
	}
	if s.txOpts != nil {
		return s.db.WithContext(ctx).Transaction(run, s.txOpts)
	}
	return s.db.WithContext(ctx).Transaction(run)
}
