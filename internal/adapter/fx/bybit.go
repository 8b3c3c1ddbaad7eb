// Package fx 汇率数据源客户端：bybit（加密货币）、exchangerate-api（法币批量）、tradingview（法币单币对）
package fx

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"GamePriceSync/internal/config"
	"GamePriceSync/internal/model"
	"GamePriceSync/internal/utils/httpclient"

	"github.com/sirupsen/logrus"
)

// 美元在交易所里以稳定币计价
var usdQuoteAliases = []string{"USDT", "USDC", "USD"}

// auditTopN 元数据里保留的候选交易对数量
const auditTopN = 3

type BybitClient struct {
	cfg    *config.ProviderConfig
	logger *logrus.Logger
	req    *httpclient.Requester
	now    func() time.Time
}

func NewBybitClient(cfg *config.ProviderConfig, logger *logrus.Logger) *BybitClient {
	if cfg.Category == "" {
		cfg.Category = "spot"
	}
	return &BybitClient{
		cfg:    cfg,
		logger: logger,
		req:    httpclient.NewRequester(cfg, logger),
		now:    time.Now,
	}
}

func (c *BybitClient) Name() string { return model.RateSourceBybit }

type bybitTickersResp struct {
	RetCode int    `json:"retCode"`
	RetMsg  string `json:"retMsg"`
	Result  struct {
		Category string        `json:"category"`
		List     []bybitTicker `json:"list"`
	} `json:"result"`
}

type bybitTicker struct {
	Symbol      string `json:"symbol"`
	LastPrice   string `json:"lastPrice"`
	Turnover24h string `json:"turnover24h"`
	Volume24h   string `json:"volume24h"`
}

// LiquidityCandidate 同一币对在交易所中的一个可选交易对
type LiquidityCandidate struct {
	Symbol   string  `json:"symbol"`
	Price    float64 `json:"price"`
	Turnover float64 `json:"turnover_24h"`
}

// FetchPairRate 返回 base/quote 成交额最高交易对的最新价
func (c *BybitClient) FetchPairRate(ctx context.Context, base, quote string) (*model.RateQuote, error) {
	base, quote = strings.ToUpper(base), strings.ToUpper(quote)

	endpoint := fmt.Sprintf("%s/v5/market/tickers?category=%s", strings.TrimRight(c.cfg.BaseURL, "/"), url.QueryEscape(c.cfg.Category))
	var resp bybitTickersResp
	if err := c.req.GetJSON(ctx, endpoint, &resp); err != nil {
		return nil, fmt.Errorf("bybit获取行情失败: %w", err)
	}
	if resp.RetCode != 0 {
		return nil, fmt.Errorf("bybit返回错误 %d: %s", resp.RetCode, resp.RetMsg)
	}

	wanted := make(map[string]struct{})
	for _, q := range quoteSymbols(quote) {
		wanted[base+q] = struct{}{}
	}
	var candidates []LiquidityCandidate
	for _, t := range resp.Result.List {
		if _, ok := wanted[strings.ToUpper(t.Symbol)]; !ok {
			continue
		}
		price, err := strconv.ParseFloat(t.LastPrice, 64)
		if err != nil || price <= 0 {
			c.logger.WithFields(logrus.Fields{"symbol": t.Symbol, "last_price": t.LastPrice}).Warn("bybit行情价格无效，跳过")
			continue
		}
		turnover, _ := strconv.ParseFloat(t.Turnover24h, 64)
		candidates = append(candidates, LiquidityCandidate{Symbol: t.Symbol, Price: price, Turnover: turnover})
	}

	best, top, ok := SelectMostLiquid(candidates, auditTopN)
	if !ok {
		return nil, fmt.Errorf("bybit没有%s/%s交易对", base, quote)
	}
	c.logger.WithFields(logrus.Fields{
		"pair":       base + "/" + quote,
		"symbol":     best.Symbol,
		"candidates": len(candidates),
	}).Debug("bybit选中流动性最高的交易对")

	return &model.RateQuote{
		Base:      base,
		Quote:     quote,
		Rate:      best.Price,
		Provider:  c.Name(),
		FetchedAt: c.now().UTC(),
		Metadata: map[string]interface{}{
			"symbol":     best.Symbol,
			"category":   c.cfg.Category,
			"candidates": top,
		},
	}, nil
}

// SelectMostLiquid 按24小时成交额降序，返回最优候选和前 n 个候选
func SelectMostLiquid(candidates []LiquidityCandidate, n int) (LiquidityCandidate, []LiquidityCandidate, bool) {
	if len(candidates) == 0 {
		return LiquidityCandidate{}, nil, false
	}
	sorted := make([]LiquidityCandidate, len(candidates))
	copy(sorted, candidates)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Turnover > sorted[j].Turnover })
	if n > 0 && len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted[0], sorted, true
}

func quoteSymbols(quote string) []string {
	if quote == "USD" {
		return usdQuoteAliases
	}
	return []string{quote}
}
