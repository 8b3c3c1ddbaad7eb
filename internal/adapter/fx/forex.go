package fx

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"GamePriceSync/internal/config"
	"GamePriceSync/internal/model"
	"GamePriceSync/internal/utils/httpclient"

	"github.com/sirupsen/logrus"
)

// ForexClient exchangerate-api 客户端
// 一次请求拿到某个基础货币的全部报价，按基础货币缓存 ttl，限制调用量
type ForexClient struct {
	cfg    *config.ProviderConfig
	logger *logrus.Logger
	req    *httpclient.Requester
	ttl    time.Duration
	now    func() time.Time

	mu    sync.Mutex
	cache map[string]cachedRates
}

type cachedRates struct {
	rates     map[string]float64
	fetchedAt time.Time
}

type forexResp struct {
	Result          string             `json:"result"`
	ErrorType       string             `json:"error-type"`
	BaseCode        string             `json:"base_code"`
	ConversionRates map[string]float64 `json:"conversion_rates"`
	Rates           map[string]float64 `json:"rates"` // 免key接口字段名
}

func NewForexClient(cfg *config.ProviderConfig, ttl time.Duration, logger *logrus.Logger) *ForexClient {
	return &ForexClient{
		cfg:    cfg,
		logger: logger,
		req:    httpclient.NewRequester(cfg, logger),
		ttl:    ttl,
		now:    time.Now,
		cache:  make(map[string]cachedRates),
	}
}

func (c *ForexClient) Name() string { return model.RateSourceForex }

// FetchAllRates 返回 base 对所有报价货币的汇率
func (c *ForexClient) FetchAllRates(ctx context.Context, base string) (map[string]float64, error) {
	base = strings.ToUpper(base)

	c.mu.Lock()
	if cached, ok := c.cache[base]; ok && c.now().Sub(cached.fetchedAt) < c.ttl {
		c.mu.Unlock()
		return cached.rates, nil
	}
	c.mu.Unlock()

	var endpoint string
	root := strings.TrimRight(c.cfg.BaseURL, "/")
	if c.cfg.APIKey != "" {
		endpoint = fmt.Sprintf("%s/v6/%s/latest/%s", root, c.cfg.APIKey, base)
	} else {
		endpoint = fmt.Sprintf("%s/v6/latest/%s", root, base)
	}

	var resp forexResp
	if err := c.req.GetJSON(ctx, endpoint, &resp); err != nil {
		return nil, fmt.Errorf("exchangerate-api请求失败: %w", err)
	}
	if resp.Result != "" && resp.Result != "success" {
		return nil, fmt.Errorf("exchangerate-api返回错误: %s", resp.ErrorType)
	}
	rates := resp.ConversionRates
	if len(rates) == 0 {
		rates = resp.Rates
	}
	if len(rates) == 0 {
		return nil, fmt.Errorf("exchangerate-api未返回%s的汇率", base)
	}

	c.mu.Lock()
	c.cache[base] = cachedRates{rates: rates, fetchedAt: c.now()}
	c.mu.Unlock()

	c.logger.WithFields(logrus.Fields{"base": base, "quotes": len(rates)}).Debug("exchangerate-api批量汇率已缓存")
	return rates, nil
}

// FetchPairRate 基于批量接口取单个币对
func (c *ForexClient) FetchPairRate(ctx context.Context, base, quote string) (*model.RateQuote, error) {
	rates, err := c.FetchAllRates(ctx, base)
	if err != nil {
		return nil, err
	}
	quote = strings.ToUpper(quote)
	r, ok := rates[quote]
	if !ok || r <= 0 {
		return nil, fmt.Errorf("exchangerate-api没有%s/%s汇率", strings.ToUpper(base), quote)
	}
	return &model.RateQuote{
		Base:      strings.ToUpper(base),
		Quote:     quote,
		Rate:      r,
		Provider:  c.Name(),
		FetchedAt: c.now().UTC(),
	}, nil
}
