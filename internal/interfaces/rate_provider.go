package interfaces

import (
	"context"

	"GamePriceSync/internal/model"
)

// RateProvider 单币对汇率数据源（bybit/tradingview）
type RateProvider interface {
	Name() string
	FetchPairRate(ctx context.Context, base, quote string) (*model.RateQuote, error)
}

// BulkRateProvider 一次请求返回某个基础货币对所有报价货币的汇率
type BulkRateProvider interface {
	Name() string
	FetchAllRates(ctx context.Context, base string) (map[string]float64, error)
}
