package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"GamePriceSync/internal/model"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CatalogRepository 规范实体图仓储（sources/products/titles/games/title_sources/media/users/currencies）
// 所有写入都按自然键 upsert，重复导入只更新不新增
type CatalogRepository interface {
	// Transaction 在事务内执行；嵌套调用对应 savepoint
	Transaction(ctx context.Context, fn func(repo CatalogRepository) error) error

	UpsertSource(ctx context.Context, s *model.VideoGameSource) error
	UpsertProduct(ctx context.Context, p *model.Product) error
	UpsertTitle(ctx context.Context, t *model.VideoGameTitle) error
	UpsertGame(ctx context.Context, g *model.VideoGame) error
	UpsertTitleSource(ctx context.Context, ts *model.VideoGameTitleSource) error
	UpsertMedia(ctx context.Context, m *model.Media) error
	UpsertUser(ctx context.Context, u *model.User) error
	UpsertCurrency(ctx context.Context, c *model.Currency) error

	// LinkGamesToTitles 按 legacy_title_id 回填 video_game_title_id
	LinkGamesToTitles(ctx context.Context, legacyToTitleID map[uint64]uint64) (int64, error)
	// LinkTitlesToProducts 按 legacy_product_id 回填 product_id
	LinkTitlesToProducts(ctx context.Context, legacyToProductID map[uint64]uint64) (int64, error)

	GetTitle(ctx context.Context, id uint64) (*model.VideoGameTitle, error)
	GetGame(ctx context.Context, id uint64) (*model.VideoGame, error)
	ListTitleSources(ctx context.Context, titleID uint64) ([]*model.VideoGameTitleSource, error)
	UpdateTitleAggregates(ctx context.Context, titleID uint64, agg TitleAggregates) error

	// Prices 共享同一连接/事务的价格仓储
	Prices() PriceRepository
}

// TitleAggregates 聚合后写回 title 的字段，nil 表示没有可用值（写 NULL）
type TitleAggregates struct {
	Rating      *float64
	RatingCount *uint32
	IGDBRating  *float64
	Platforms   datatypes.JSON
}

type catalogRepository struct {
	db *gorm.DB
}

func NewCatalogRepository(db *gorm.DB) CatalogRepository {
	return &catalogRepository{db: db}
}

func (r *catalogRepository) Transaction(ctx context.Context, fn func(repo CatalogRepository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&catalogRepository{db: tx})
	})
}

func (r *catalogRepository) Prices() PriceRepository {
	return NewPriceRepository(r.db)
}

// lookupID upsert 之后按唯一键重新取ID（冲突更新时驱动返回的自增ID不可靠）
func lookupID(ctx context.Context, db *gorm.DB, m interface{}, query string, args ...interface{}) (uint64, error) {
	var id uint64
	row := db.WithContext(ctx).Model(m).Select("id").Where(query, args...).Limit(1).Row()
	if err := row.Scan(&id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, gorm.ErrRecordNotFound
		}
		return 0, err
	}
	return id, nil
}

func (r *catalogRepository) UpsertSource(ctx context.Context, s *model.VideoGameSource) error {
	if err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "provider"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "kind", "base_url", "legacy_id", "updated_at"}),
	}).Create(s).Error; err != nil {
		return fmt.Errorf("upsert source %s: %w", s.Provider, err)
	}
	id, err := lookupID(ctx, r.db, &model.VideoGameSource{}, "provider = ?", s.Provider)
	if err != nil {
		return err
	}
	s.ID = id
	return nil
}

func (r *catalogRepository) UpsertProduct(ctx context.Context, p *model.Product) error {
	if err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "provider"}, {Name: "external_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "slug", "external_ids", "legacy_id", "updated_at"}),
	}).Create(p).Error; err != nil {
		return fmt.Errorf("upsert product %s:%s: %w", p.Provider, p.ExternalID, err)
	}
	id, err := lookupID(ctx, r.db, &model.Product{}, "provider = ? AND external_id = ?", p.Provider, p.ExternalID)
	if err != nil {
		return err
	}
	p.ID = id
	return nil
}

// UpsertTitle 不覆盖 product_id 与聚合字段，它们由回填/聚合流程维护
func (r *catalogRepository) UpsertTitle(ctx context.Context, t *model.VideoGameTitle) error {
	if err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "provider"}, {Name: "external_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "slug", "legacy_id", "legacy_product_id", "updated_at"}),
	}).Create(t).Error; err != nil {
		return fmt.Errorf("upsert title %s:%s: %w", t.Provider, t.ExternalID, err)
	}
	id, err := lookupID(ctx, r.db, &model.VideoGameTitle{}, "provider = ? AND external_id = ?", t.Provider, t.ExternalID)
	if err != nil {
		return err
	}
	t.ID = id
	return nil
}

// UpsertGame 不覆盖 video_game_title_id，由 titles 阶段回填
func (r *catalogRepository) UpsertGame(ctx context.Context, g *model.VideoGame) error {
	if err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "provider"}, {Name: "external_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "platform", "release_date", "legacy_id", "legacy_title_id", "updated_at"}),
	}).Create(g).Error; err != nil {
		return fmt.Errorf("upsert game %s:%s: %w", g.Provider, g.ExternalID, err)
	}
	id, err := lookupID(ctx, r.db, &model.VideoGame{}, "provider = ? AND external_id = ?", g.Provider, g.ExternalID)
	if err != nil {
		return err
	}
	g.ID = id
	return nil
}

func (r *catalogRepository) UpsertTitleSource(ctx context.Context, ts *model.VideoGameTitleSource) error {
	if err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "video_game_title_id"}, {Name: "provider"}},
		DoUpdates: clause.AssignmentColumns([]string{"external_id", "payload", "legacy_id", "updated_at"}),
	}).Create(ts).Error; err != nil {
		return fmt.Errorf("upsert title source %d:%s: %w", ts.VideoGameTitleID, ts.Provider, err)
	}
	id, err := lookupID(ctx, r.db, &model.VideoGameTitleSource{}, "video_game_title_id = ? AND provider = ?", ts.VideoGameTitleID, ts.Provider)
	if err != nil {
		return err
	}
	ts.ID = id
	return nil
}

func (r *catalogRepository) UpsertMedia(ctx context.Context, m *model.Media) error {
	if err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "owner_type"}, {Name: "owner_id"}, {Name: "url"}},
		DoUpdates: clause.AssignmentColumns([]string{"kind", "legacy_id", "updated_at"}),
	}).Create(m).Error; err != nil {
		return fmt.Errorf("upsert media %s: %w", m.URL, err)
	}
	id, err := lookupID(ctx, r.db, &model.Media{}, "owner_type = ? AND owner_id = ? AND url = ?", m.OwnerType, m.OwnerID, m.URL)
	if err != nil {
		return err
	}
	m.ID = id
	return nil
}

func (r *catalogRepository) UpsertUser(ctx context.Context, u *model.User) error {
	if err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "email"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "legacy_id", "is_active", "updated_at"}),
	}).Create(u).Error; err != nil {
		return fmt.Errorf("upsert user %s: %w", u.Email, err)
	}
	id, err := lookupID(ctx, r.db, &model.User{}, "email = ?", u.Email)
	if err != nil {
		return err
	}
	u.ID = id
	return nil
}

func (r *catalogRepository) UpsertCurrency(ctx context.Context, c *model.Currency) error {
	if err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "code"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "symbol", "decimals", "is_crypto", "updated_at"}),
	}).Create(c).Error; err != nil {
		return fmt.Errorf("upsert currency %s: %w", c.Code, err)
	}
	id, err := lookupID(ctx, r.db, &model.Currency{}, "code = ?", c.Code)
	if err != nil {
		return err
	}
	c.ID = id
	return nil
}

func (r *catalogRepository) LinkGamesToTitles(ctx context.Context, legacyToTitleID map[uint64]uint64) (int64, error) {
	var total int64
	for legacy, titleID := range legacyToTitleID {
		res := r.db.WithContext(ctx).Model(&model.VideoGame{}).
			Where("legacy_title_id = ?", legacy).
			Update("video_game_title_id", titleID)
		if res.Error != nil {
			return total, fmt.Errorf("回填 video_game_title_id(legacy=%d): %w", legacy, res.Error)
		}
		total += res.RowsAffected
	}
	return total, nil
}

func (r *catalogRepository) LinkTitlesToProducts(ctx context.Context, legacyToProductID map[uint64]uint64) (int64, error) {
	var total int64
	for legacy, productID := range legacyToProductID {
		res := r.db.WithContext(ctx).Model(&model.VideoGameTitle{}).
			Where("legacy_product_id = ?", legacy).
			Update("product_id", productID)
		if res.Error != nil {
			return total, fmt.Errorf("回填 product_id(legacy=%d): %w", legacy, res.Error)
		}
		total += res.RowsAffected
	}
	return total, nil
}

func (r *catalogRepository) GetTitle(ctx context.Context, id uint64) (*model.VideoGameTitle, error) {
	var t model.VideoGameTitle
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&t).Error; err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *catalogRepository) GetGame(ctx context.Context, id uint64) (*model.VideoGame, error) {
	var g model.VideoGame
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&g).Error; err != nil {
		return nil, err
	}
	return &g, nil
}

func (r *catalogRepository) ListTitleSources(ctx context.Context, titleID uint64) ([]*model.VideoGameTitleSource, error) {
	var list []*model.VideoGameTitleSource
	if err := r.db.WithContext(ctx).Where("video_game_title_id = ?", titleID).Order("id ASC").Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

func (r *catalogRepository) UpdateTitleAggregates(ctx context.Context, titleID uint64, agg TitleAggregates) error {
	platforms := agg.Platforms
	if len(platforms) == 0 {
		platforms = datatypes.JSON("[]")
	}
	return r.db.WithContext(ctx).Model(&model.VideoGameTitle{}).Where("id = ?", titleID).Updates(map[string]interface{}{
		"rating":       agg.Rating,
		"rating_count": agg.RatingCount,
		"igdb_rating":  agg.IGDBRating,
		"platforms":    platforms,
	}).Error
}
