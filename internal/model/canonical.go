package model

import (
	"time"

	"gorm.io/datatypes"
)

// VideoGameSource 数据源登记表（igdb/rawg/steam...），provider 唯一
type VideoGameSource struct {
	ID        uint64    `gorm:"column:id;primaryKey;autoIncrement"`
	Provider  string    `gorm:"column:provider;type:varchar(64);uniqueIndex;not null"`
	Name      string    `gorm:"column:name;type:varchar(128)"`
	Kind      string    `gorm:"column:kind;type:varchar(32)"` // catalog/retailer/fx
	BaseURL   string    `gorm:"column:base_url;type:varchar(256)"`
	LegacyID  *uint64   `gorm:"column:legacy_id;index"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (VideoGameSource) TableName() string { return "video_game_sources" }

// Product 规范商品，与 VideoGameTitle 一对一
type Product struct {
	ID          uint64         `gorm:"column:id;primaryKey;autoIncrement"`
	Provider    string         `gorm:"column:provider;type:varchar(64);not null;uniqueIndex:uq_product_identity"`
	ExternalID  string         `gorm:"column:external_id;type:varchar(128);not null;uniqueIndex:uq_product_identity"`
	Name        string         `gorm:"column:name;type:varchar(256);not null"`
	Slug        string         `gorm:"column:slug;type:varchar(256)"`
	ExternalIDs datatypes.JSON `gorm:"column:external_ids"` // 多数据源ID，如 {"igdb":1942}
	LegacyID    *uint64        `gorm:"column:legacy_id;index"`
	CreatedAt   time.Time      `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time      `gorm:"column:updated_at;autoUpdateTime"`
}

func (Product) TableName() string { return "products" }

// VideoGameTitle 规范游戏作品，一个作品对应多个平台/数据源的 VideoGame
type VideoGameTitle struct {
	ID              uint64         `gorm:"column:id;primaryKey;autoIncrement"`
	Provider        string         `gorm:"column:provider;type:varchar(64);not null;uniqueIndex:uq_title_identity"`
	ExternalID      string         `gorm:"column:external_id;type:varchar(128);not null;uniqueIndex:uq_title_identity"`
	Name            string         `gorm:"column:name;type:varchar(256);not null"`
	Slug            string         `gorm:"column:slug;type:varchar(256)"`
	ProductID       *uint64        `gorm:"column:product_id;index"`
	LegacyID        *uint64        `gorm:"column:legacy_id;index"`
	LegacyProductID *uint64        `gorm:"column:legacy_product_id;index"` // products 阶段回填 product_id 用
	Rating          *float64       `gorm:"column:rating"`                  // 0-5
	RatingCount     *uint32        `gorm:"column:rating_count"`
	IGDBRating      *float64       `gorm:"column:igdb_rating"` // 0-100
	Platforms       datatypes.JSON `gorm:"column:platforms"`   // 规范平台名数组
	CreatedAt       time.Time      `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time      `gorm:"column:updated_at;autoUpdateTime"`
}

func (VideoGameTitle) TableName() string { return "video_game_titles" }

// VideoGame 某数据源/平台视角下的游戏条目
type VideoGame struct {
	ID               uint64     `gorm:"column:id;primaryKey;autoIncrement"`
	Provider         string     `gorm:"column:provider;type:varchar(64);not null;uniqueIndex:uq_game_identity"`
	ExternalID       string     `gorm:"column:external_id;type:varchar(128);not null;uniqueIndex:uq_game_identity"`
	VideoGameTitleID *uint64    `gorm:"column:video_game_title_id;index"`
	LegacyID         *uint64    `gorm:"column:legacy_id;index"`
	LegacyTitleID    *uint64    `gorm:"column:legacy_title_id;index"` // titles 阶段回填 video_game_title_id 用
	Name             string     `gorm:"column:name;type:varchar(256)"`
	Platform         string     `gorm:"column:platform;type:varchar(64)"`
	ReleaseDate      *time.Time `gorm:"column:release_date"`
	CreatedAt        time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

func (VideoGame) TableName() string { return "video_games" }

// VideoGameTitleSource 每个贡献数据源一行，保留原始payload供审计/重放
type VideoGameTitleSource struct {
	ID               uint64         `gorm:"column:id;primaryKey;autoIncrement"`
	VideoGameTitleID uint64         `gorm:"column:video_game_title_id;not null;uniqueIndex:uq_title_source"`
	Provider         string         `gorm:"column:provider;type:varchar(64);not null;uniqueIndex:uq_title_source"`
	ExternalID       string         `gorm:"column:external_id;type:varchar(128)"`
	Payload          datatypes.JSON `gorm:"column:payload"`
	LegacyID         *uint64        `gorm:"column:legacy_id;index"`
	CreatedAt        time.Time      `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time      `gorm:"column:updated_at;autoUpdateTime"`
}

func (VideoGameTitleSource) TableName() string { return "video_game_title_sources" }
