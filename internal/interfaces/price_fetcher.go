package interfaces

import (
	"context"

	"GamePriceSync/internal/config"
	"GamePriceSync/internal/model"

	"github.com/sirupsen/logrus"
)

// PriceFetcher 所有零售商价格抓取器必须实现的接口
type PriceFetcher interface {
	Retailer() model.RetailerType
	// ExtractID 从商店链接中提取商品ID，本身就是ID时原样返回
	ExtractID(urlOrID string) (string, bool)
	// FetchPrice 无价格数据时返回 nil, nil
	FetchPrice(ctx context.Context, urlOrID, country string) (*model.FetchedPrice, error)
}

// Factory 价格抓取器工厂函数签名
type Factory func(cfg *config.ProviderConfig, logger *logrus.Logger) PriceFetcher
