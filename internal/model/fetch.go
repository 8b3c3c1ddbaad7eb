package model

import "time"

// FetchedPrice 零售商抓取结果，AmountMinor 为最小货币单位
type FetchedPrice struct {
	AmountMinor int64
	Currency    string
	IsFree      bool
	ExternalID  string
}

// RateQuote 外部数据源返回的单个汇率
type RateQuote struct {
	Base      string
	Quote     string
	Rate      float64
	Provider  string
	FetchedAt time.Time
	Metadata  map[string]interface{}
}

// 汇率来源，写入 exchange_rates.provider
const (
	RateSourceBybit       = "bybit"
	RateSourceForex       = "exchangerate-api"
	RateSourceTradingView = "tradingview"
	RateSourceDerived     = "derived-via-usd"
	RateSourceFallback    = "fallback-approx"
)
