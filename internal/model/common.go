package model

import (
	"fmt"
	"strings"
)

// EntityType 规范实体类型枚举（IdentityMap 键的第一段）
type EntityType string

const (
	EntityProduct  EntityType = "product"
	EntityTitle    EntityType = "title"
	EntityGame     EntityType = "game"
	EntitySource   EntityType = "source"
	EntityMedia    EntityType = "media"
	EntityUser     EntityType = "user"
	EntityCurrency EntityType = "currency"
)

// ProviderLegacyMain 旧库自增ID充当的伪数据源
const ProviderLegacyMain = "legacy_main"

// CanonicalEntityKey (实体类型, 数据源, 外部ID)，只作查找键使用，不落库
type CanonicalEntityKey struct {
	Type       EntityType
	Provider   string
	ExternalID string
}

// String 大小写归一后的组合键 "{type}:{provider}:{external_id}"
func (k CanonicalEntityKey) String() string {
	return strings.ToLower(fmt.Sprintf("%s:%s:%s",
		strings.TrimSpace(string(k.Type)),
		strings.TrimSpace(k.Provider),
		strings.TrimSpace(k.ExternalID)))
}

// RetailerType 零售商枚举，价格抓取器按此分发
type RetailerType string

const (
	RetailerSteam       RetailerType = "steam"
	RetailerAmazon      RetailerType = "amazon"
	RetailerEpic        RetailerType = "epic"
	RetailerGOG         RetailerType = "gog"
	RetailerXbox        RetailerType = "xbox"
	RetailerItch        RetailerType = "itch"
	RetailerPlayStation RetailerType = "playstation"
)

// AllRetailers 所有已支持零售商（顺序固定）
var AllRetailers = []RetailerType{
	RetailerSteam, RetailerAmazon, RetailerEpic, RetailerGOG,
	RetailerXbox, RetailerItch, RetailerPlayStation,
}

// retailerNames 名称/slug 精确匹配表（小写）
var retailerNames = map[string]RetailerType{
	"steam":             RetailerSteam,
	"steam store":       RetailerSteam,
	"amazon":            RetailerAmazon,
	"amazon.com":        RetailerAmazon,
	"epic":              RetailerEpic,
	"epic games":        RetailerEpic,
	"epic games store":  RetailerEpic,
	"epic-games":        RetailerEpic,
	"gog":               RetailerGOG,
	"gog.com":           RetailerGOG,
	"xbox":              RetailerXbox,
	"xbox store":        RetailerXbox,
	"microsoft store":   RetailerXbox,
	"itch":              RetailerItch,
	"itch.io":           RetailerItch,
	"itchio":            RetailerItch,
	"playstation":       RetailerPlayStation,
	"playstation store": RetailerPlayStation,
	"playstation-store": RetailerPlayStation,
	"psn":               RetailerPlayStation,
}

// ParseRetailer 按名称或slug精确匹配零售商，不做模糊匹配
func ParseRetailer(name string) (RetailerType, bool) {
	r, ok := retailerNames[strings.ToLower(strings.TrimSpace(name))]
	return r, ok
}
