package model

import (
	"time"

	"gorm.io/datatypes"
)

// PriceUnknown amount_minor 哨兵值：价格未知，需要抓取
const PriceUnknown int64 = -1

// PriceRecord 当前有效价格，(video_game_id, retailer, country_code) 唯一
// AmountMinor 一律为最小货币单位整数（分），-1 表示未知
type PriceRecord struct {
	ID          uint64    `gorm:"column:id;primaryKey;autoIncrement"`
	VideoGameID uint64    `gorm:"column:video_game_id;not null;uniqueIndex:uq_game_retailer_country"`
	Retailer    string    `gorm:"column:retailer;type:varchar(64);not null;uniqueIndex:uq_game_retailer_country"`
	CountryCode string    `gorm:"column:country_code;type:varchar(8);not null;uniqueIndex:uq_game_retailer_country"`
	Currency    string    `gorm:"column:currency;type:varchar(8);not null"`
	AmountMinor int64     `gorm:"column:amount_minor;not null"`
	URL         string    `gorm:"column:url;type:varchar(512)"`
	IsActive    bool      `gorm:"column:is_active;not null"`
	RecordedAt  time.Time `gorm:"column:recorded_at"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time `gorm:"column:updated_at;autoUpdateTime:false"` // 由刷新流程显式写入
}

func (PriceRecord) TableName() string { return "video_game_prices" }

// PriceSnapshot 价格历史快照，只追加不修改
type PriceSnapshot struct {
	ID          uint64    `gorm:"column:id;primaryKey;autoIncrement"`
	SnapshotID  string    `gorm:"column:snapshot_id;type:varchar(64);uniqueIndex;not null"`
	VideoGameID uint64    `gorm:"column:video_game_id;not null;index:idx_history_lookup"`
	Retailer    string    `gorm:"column:retailer;type:varchar(64);not null;index:idx_history_lookup"`
	CountryCode string    `gorm:"column:country_code;type:varchar(8);not null;index:idx_history_lookup"`
	Currency    string    `gorm:"column:currency;type:varchar(8);not null"`
	AmountMinor int64     `gorm:"column:amount_minor;not null"`
	RecordedAt  time.Time `gorm:"column:recorded_at;not null;index:idx_history_lookup"`
}

func (PriceSnapshot) TableName() string { return "video_game_price_histories" }

// ExchangeRate 汇率缓存，(base, quote, provider) 唯一；(A,B) 与 (B,A) 不强制一致
type ExchangeRate struct {
	ID            uint64         `gorm:"column:id;primaryKey;autoIncrement"`
	BaseCurrency  string         `gorm:"column:base_currency;type:varchar(8);not null;uniqueIndex:uq_rate_pair_provider"`
	QuoteCurrency string         `gorm:"column:quote_currency;type:varchar(8);not null;uniqueIndex:uq_rate_pair_provider"`
	Provider      string         `gorm:"column:provider;type:varchar(32);not null;uniqueIndex:uq_rate_pair_provider"`
	Rate          float64        `gorm:"column:rate;not null"`
	FetchedAt     time.Time      `gorm:"column:fetched_at;not null;index"`
	Metadata      datatypes.JSON `gorm:"column:metadata"`
}

func (ExchangeRate) TableName() string { return "exchange_rates" }

// Media 封面/截图等，owner 为 title 或 game
type Media struct {
	ID        uint64    `gorm:"column:id;primaryKey;autoIncrement"`
	OwnerType string    `gorm:"column:owner_type;type:varchar(16);not null;uniqueIndex:uq_media_owner_url"`
	OwnerID   uint64    `gorm:"column:owner_id;not null;uniqueIndex:uq_media_owner_url"`
	URL       string    `gorm:"column:url;type:varchar(512);not null;uniqueIndex:uq_media_owner_url"`
	Kind      string    `gorm:"column:kind;type:varchar(32)"` // cover/screenshot/video
	LegacyID  *uint64   `gorm:"column:legacy_id;index"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (Media) TableName() string { return "media" }

type User struct {
	ID        uint64    `gorm:"column:id;primaryKey;autoIncrement"`
	Email     string    `gorm:"column:email;type:varchar(256);uniqueIndex;not null"`
	Name      string    `gorm:"column:name;type:varchar(128)"`
	LegacyID  *uint64   `gorm:"column:legacy_id;index"`
	IsActive  bool      `gorm:"column:is_active"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (User) TableName() string { return "users" }

type Currency struct {
	ID        uint64    `gorm:"column:id;primaryKey;autoIncrement"`
	Code      string    `gorm:"column:code;type:varchar(8);uniqueIndex;not null"`
	Name      string    `gorm:"column:name;type:varchar(64)"`
	Symbol    string    `gorm:"column:symbol;type:varchar(8)"`
	Decimals  int       `gorm:"column:decimals"`
	IsCrypto  bool      `gorm:"column:is_crypto"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (Currency) TableName() string { return "currencies" }

// AllModels 按依赖顺序返回需要迁移的表
func AllModels() []interface{} {
	return []interface{}{
		&VideoGameSource{},
		&Product{},
		&VideoGameTitle{},
		&VideoGame{},
		&VideoGameTitleSource{},
		&PriceRecord{},
		&PriceSnapshot{},
		&ExchangeRate{},
		&Media{},
		&User{},
		&Currency{},
	}
}
