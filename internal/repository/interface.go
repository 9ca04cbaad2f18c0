package repository

import (
	"context"

	"gorm.io/gorm"
)

// BaseRepository 各仓储接口的公共部分：
// 暴露底层句柄，并支持切换到事务句柄。
type BaseRepository interface {
	GetDB() *gorm.DB
	WithTx(tx *gorm.DB) BaseRepository
}

// BaseRepo 持有数据库句柄，供具体仓储嵌入
type BaseRepo struct {
	db *gorm.DB
}

// NewBaseRepo 包装数据库句柄
func NewBaseRepo(db *gorm.DB) *BaseRepo {
	return &BaseRepo{db: db}
}

// GetDB 返回底层句柄
func (r *BaseRepo) GetDB() *gorm.DB {
	return r.db
}

// WithTx 返回绑定到事务句柄的副本
func (r *BaseRepo) WithTx(tx *gorm.DB) *BaseRepo {
	return &BaseRepo{db: tx}
}

// Transaction 在事务中执行fn，fn返回错误时回滚
func (r *BaseRepo) Transaction(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(fn)
}

// Pagination 分页参数，Total由查询方填充
type Pagination struct {
	Page     int   `json:"page"`
	PageSize int   `json:"page_size"`
	Total    int64 `json:"total"`
}

// NewPagination 创建分页参数，页码从1开始，页大小限制在1..100
func NewPagination(page, pageSize int) *Pagination {
	if page <= 0 {
		page = 1
	}
	switch {
	case pageSize <= 0:
		pageSize = 10
	case pageSize > 100:
		pageSize = 100
	}
	return &Pagination{Page: page, PageSize: pageSize}
}

// Offset 计算偏移量
func (p *Pagination) Offset() int {
	return (p.Page - 1) * p.PageSize
}

// Paginate 分页scope，nil分页时原样返回
func Paginate(p *Pagination) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if p == nil {
			return db
		}
		return db.Offset(p.Offset()).Limit(p.PageSize)
	}
}
