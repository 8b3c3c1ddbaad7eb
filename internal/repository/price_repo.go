package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"GamePriceSync/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PriceRepository 当前价格 + 历史快照仓储
type PriceRepository interface {
	UpsertPrice(ctx context.Context, p *model.PriceRecord) error
	FindActivePrice(ctx context.Context, gameID uint64, retailer, country string) (*model.PriceRecord, error)
	// ListRefreshCandidates force 时返回全部有效行，否则只返回未知价格(-1)或过期的行
	ListRefreshCandidates(ctx context.Context, gameID uint64, force bool, staleBefore time.Time) ([]*model.PriceRecord, error)
	// ListStaleGameIDs 存在待刷新价格行的游戏ID
	ListStaleGameIDs(ctx context.Context, staleBefore time.Time, limit int) ([]uint64, error)
	// ApplyFetched 原地更新价格并追加一条历史快照（同一事务）
	ApplyFetched(ctx context.Context, p *model.PriceRecord, snap *model.PriceSnapshot) error
	QueryPrices(ctx context.Context, filter PriceFilter) ([]*model.PriceRecord, error)
	ListHistory(ctx context.Context, gameID uint64, retailer, country string, since time.Time) ([]*model.PriceSnapshot, error)
}

// PriceFilter 价格查询条件
type PriceFilter struct {
	GameID       uint64
	Currency     string // 为空不过滤
	ActiveOnly   bool
	PositiveOnly bool // amount_minor > 0，排除免费(0)与未知(-1)
	KnownOnly    bool // amount_minor >= 0，只排除未知(-1)
	Limit        int
}

type priceRepository struct {
	db *gorm.DB
}

func NewPriceRepository(db *gorm.DB) PriceRepository {
	return &priceRepository{db: db}
}

func (r *priceRepository) UpsertPrice(ctx context.Context, p *model.PriceRecord) error {
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = time.Now().UTC()
	}
	if err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "video_game_id"}, {Name: "retailer"}, {Name: "country_code"}},
		DoUpdates: clause.AssignmentColumns([]string{"currency", "amount_minor", "url", "is_active", "recorded_at", "updated_at"}),
	}).Create(p).Error; err != nil {
		return fmt.Errorf("upsert price %d/%s/%s: %w", p.VideoGameID, p.Retailer, p.CountryCode, err)
	}
	id, err := lookupID(ctx, r.db, &model.PriceRecord{}, "video_game_id = ? AND retailer = ? AND country_code = ?", p.VideoGameID, p.Retailer, p.CountryCode)
	if err != nil {
		return err
	}
	p.ID = id
	return nil
}

func (r *priceRepository) FindActivePrice(ctx context.Context, gameID uint64, retailer, country string) (*model.PriceRecord, error) {
	var p model.PriceRecord
	err := r.db.WithContext(ctx).
		Where("video_game_id = ? AND retailer = ? AND country_code = ? AND is_active = ?", gameID, retailer, country, true).
		First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *priceRepository) ListRefreshCandidates(ctx context.Context, gameID uint64, force bool, staleBefore time.Time) ([]*model.PriceRecord, error) {
	db := r.db.WithContext(ctx).Where("video_game_id = ? AND is_active = ?", gameID, true)
	if !force {
		db = db.Where("(amount_minor = ? OR updated_at < ?)", model.PriceUnknown, staleBefore)
	}
	var list []*model.PriceRecord
	if err := db.Order("id ASC").Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

func (r *priceRepository) ListStaleGameIDs(ctx context.Context, staleBefore time.Time, limit int) ([]uint64, error) {
	var ids []uint64
	db := r.db.WithContext(ctx).Model(&model.PriceRecord{}).
		Where("is_active = ?", true).
		Where("(amount_minor = ? OR updated_at < ?)", model.PriceUnknown, staleBefore).
		Distinct("video_game_id").
		Order("video_game_id ASC")
	if limit > 0 {
		db = db.Limit(limit)
	}
	if err := db.Pluck("video_game_id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *priceRepository) ApplyFetched(ctx context.Context, p *model.PriceRecord, snap *model.PriceSnapshot) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&model.PriceRecord{}).Where("id = ?", p.ID).Updates(map[string]interface{}{
			"amount_minor": p.AmountMinor,
			"currency":     p.Currency,
			"recorded_at":  p.RecordedAt,
			"updated_at":   p.UpdatedAt,
		})
		if res.Error != nil {
			return fmt.Errorf("更新价格 %d 失败: %w", p.ID, res.Error)
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("价格行 %d 不存在", p.ID)
		}
		if snap != nil {
			if err := tx.Create(snap).Error; err != nil {
				return fmt.Errorf("写入价格快照失败: %w", err)
			}
		}
		return nil
	})
}

// QueryPrices 按金额升序
func (r *priceRepository) QueryPrices(ctx context.Context, filter PriceFilter) ([]*model.PriceRecord, error) {
	db := r.db.WithContext(ctx).Where("video_game_id = ?", filter.GameID)
	if filter.ActiveOnly {
		db = db.Where("is_active = ?", true)
	}
	if filter.PositiveOnly {
		db = db.Where("amount_minor > ?", 0)
	} else if filter.KnownOnly {
		db = db.Where("amount_minor >= ?", 0)
	}
	if filter.Currency != "" {
		db = db.Where("currency = ?", filter.Currency)
	}
	if filter.Limit > 0 {
		db = db.Limit(filter.Limit)
	}
	var list []*model.PriceRecord
	if err := db.Order("amount_minor ASC").Order("id ASC").Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

func (r *priceRepository) ListHistory(ctx context.Context, gameID uint64, retailer, country string, since time.Time) ([]*model.PriceSnapshot, error) {
	db := r.db.WithContext(ctx).Where("video_game_id = ?", gameID)
	if retailer != "" {
		db = db.Where("retailer = ?", retailer)
	}
	if country != "" {
		db = db.Where("country_code = ?", country)
	}
	if !since.IsZero() {
		db = db.Where("recorded_at >= ?", since)
	}
	var list []*model.PriceSnapshot
	if err := db.Order("recorded_at ASC").Order("id ASC").Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}
