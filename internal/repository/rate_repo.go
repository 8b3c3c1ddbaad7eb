package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"GamePriceSync/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// RateRepository 汇率缓存仓储，(base, quote, provider) 后写覆盖
type RateRepository interface {
	UpsertRate(ctx context.Context, rate *model.ExchangeRate) error
	// ListFresh 指定币对 fetched_at >= notBefore 的所有来源，按时间倒序
	ListFresh(ctx context.Context, base, quote string, notBefore time.Time) ([]*model.ExchangeRate, error)
	DeleteOlderThan(ctx context.Context, before time.Time) (int64, error)
}

type rateRepository struct {
	db *gorm.DB
}

func NewRateRepository(db *gorm.DB) RateRepository {
	return &rateRepository{db: db}
}

func (r *rateRepository) UpsertRate(ctx context.Context, rate *model.ExchangeRate) error {
	rate.BaseCurrency = strings.ToUpper(rate.BaseCurrency)
	rate.QuoteCurrency = strings.ToUpper(rate.QuoteCurrency)
	if err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "base_currency"}, {Name: "quote_currency"}, {Name: "provider"}},
		DoUpdates: clause.AssignmentColumns([]string{"rate", "fetched_at", "metadata"}),
	}).Create(rate).Error; err != nil {
		return fmt.Errorf("upsert rate %s/%s(%s): %w", rate.BaseCurrency, rate.QuoteCurrency, rate.Provider, err)
	}
	return nil
}

func (r *rateRepository) ListFresh(ctx context.Context, base, quote string, notBefore time.Time) ([]*model.ExchangeRate, error) {
	var list []*model.ExchangeRate
	err := r.db.WithContext(ctx).
		Where("base_currency = ? AND quote_currency = ? AND fetched_at >= ?", strings.ToUpper(base), strings.ToUpper(quote), notBefore).
		Order("fetched_at DESC").
		Find(&list).Error
	if err != nil {
		return nil, err
	}
	return list, nil
}

func (r *rateRepository) DeleteOlderThan(ctx context.Context, before time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Where("fetched_at < ?", before).Delete(&model.ExchangeRate{})
	return res.RowsAffected, res.Error
}
