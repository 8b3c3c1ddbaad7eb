package fx

import (
	"context"
	"fmt"
	"strings"
	"time"

	"GamePriceSync/internal/config"
	"GamePriceSync/internal/model"
	"GamePriceSync/internal/utils/httpclient"

	"github.com/sirupsen/logrus"
)

// TradingViewClient tradingview scanner 接口
// 法币走 /forex/scan（FX_IDC 行情），加密货币走 /crypto/scan（BYBIT 行情）
type TradingViewClient struct {
	cfg    *config.ProviderConfig
	logger *logrus.Logger
	req    *httpclient.Requester
	crypto map[string]struct{}
	now    func() time.Time
}

type scanRequest struct {
	Symbols scanSymbols `json:"symbols"`
	Columns []string    `json:"columns"`
}

type scanSymbols struct {
	Tickers []string `json:"tickers"`
	Query   struct {
		Types []string `json:"types"`
	} `json:"query"`
}

type scanResp struct {
	TotalCount int `json:"totalCount"`
	Data       []struct {
		S string        `json:"s"`
		D []interface{} `json:"d"`
	} `json:"data"`
}

// NewTradingViewClient cryptoCodes 中的币种按加密货币行情查询
func NewTradingViewClient(cfg *config.ProviderConfig, cryptoCodes []string, logger *logrus.Logger) *TradingViewClient {
	crypto := make(map[string]struct{}, len(cryptoCodes))
	for _, c := range cryptoCodes {
		crypto[strings.ToUpper(c)] = struct{}{}
	}
	return &TradingViewClient{
		cfg:    cfg,
		logger: logger,
		req:    httpclient.NewRequester(cfg, logger),
		crypto: crypto,
		now:    time.Now,
	}
}

// ticker 返回 scanner 行情代码和对应的 scan 路径
func (c *TradingViewClient) ticker(base, quote string) (string, string) {
	if _, ok := c.crypto[base]; ok {
		if quote == "USD" {
			quote = "USDT"
		}
		return "BYBIT:" + base + quote, "/crypto/scan"
	}
	return "FX_IDC:" + base + quote, "/forex/scan"
}

func (c *TradingViewClient) Name() string { return model.RateSourceTradingView }

func (c *TradingViewClient) FetchPairRate(ctx context.Context, base, quote string) (*model.RateQuote, error) {
	base, quote = strings.ToUpper(base), strings.ToUpper(quote)
	ticker, path := c.ticker(base, quote)

	body := scanRequest{Columns: []string{"close"}}
	body.Symbols.Tickers = []string{ticker}
	body.Symbols.Query.Types = []string{}

	var resp scanResp
	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + path
	if err := c.req.PostJSON(ctx, endpoint, body, &resp); err != nil {
		return nil, fmt.Errorf("tradingview请求失败: %w", err)
	}
	for _, row := range resp.Data {
		if !strings.EqualFold(row.S, ticker) || len(row.D) == 0 {
			continue
		}
		last, ok := row.D[0].(float64)
		if !ok || last <= 0 {
			return nil, fmt.Errorf("tradingview %s 收盘价无效: %v", ticker, row.D[0])
		}
		return &model.RateQuote{
			Base:      base,
			Quote:     quote,
			Rate:      last,
			Provider:  c.Name(),
			FetchedAt: c.now().UTC(),
			Metadata:  map[string]interface{}{"ticker": ticker},
		}, nil
	}
	return nil, fmt.Errorf("tradingview没有%s行情", ticker)
}
