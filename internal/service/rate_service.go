package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"GamePriceSync/internal/config"
	"GamePriceSync/internal/interfaces"
	"GamePriceSync/internal/metrics"
	"GamePriceSync/internal/model"
	"GamePriceSync/internal/money"
	"GamePriceSync/internal/repository"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
)

const usd = "USD"

// approxRates 所有实时来源都失败时使用的近似汇率，反向取倒数
var approxRates = map[string]float64{
	"USD/EUR": 0.92,
	"USD/GBP": 0.79,
	"EUR/GBP": 0.86,
	"USD/JPY": 150,
	"USD/CAD": 1.36,
	"USD/AUD": 1.52,
	"USD/CHF": 0.88,
}

// RateProviders 汇率来源链，按顺序尝试
type RateProviders struct {
	Crypto    []interfaces.RateProvider // 加密货币（bybit, tradingview）
	ForexBulk interfaces.BulkRateProvider
	Forex     []interfaces.RateProvider // 批量接口失败后的单币对来源（tradingview）
}

// RateService 汇率解析：缓存 → 实时来源 → USD 桥接 → 静态近似表
type RateService struct {
	repo      repository.RateRepository
	providers RateProviders
	cfg       config.FXConfig
	crypto    map[string]struct{}
	metrics   *metrics.Metrics
	logger    *logrus.Logger
	now       func() time.Time
}

func NewRateService(repo repository.RateRepository, providers RateProviders, cfg config.FXConfig, m *metrics.Metrics, logger *logrus.Logger) *RateService {
	crypto := make(map[string]struct{}, len(cfg.CryptoCodes))
	for _, c := range cfg.CryptoCodes {
		crypto[strings.ToUpper(strings.TrimSpace(c))] = struct{}{}
	}
	if cfg.CryptoTTL <= 0 {
		cfg.CryptoTTL = 5 * time.Minute
	}
	if cfg.FiatTTL <= 0 {
		cfg.FiatTTL = 15 * time.Minute
	}
	if cfg.Retention <= 0 {
		cfg.Retention = 7 * 24 * time.Hour
	}
	if cfg.AlertRatio <= 0 {
		cfg.AlertRatio = 0.2
	}
	return &RateService{
		repo:      repo,
		providers: providers,
		cfg:       cfg,
		crypto:    crypto,
		metrics:   m,
		logger:    logger,
		now:       time.Now,
	}
}

// IsCrypto 是否配置为加密货币
func (s *RateService) IsCrypto(code string) bool {
	_, ok := s.crypto[strings.ToUpper(code)]
	return ok
}

func (s *RateService) ttl(base, quote string) time.Duration {
	if s.IsCrypto(base) || s.IsCrypto(quote) {
		return s.cfg.CryptoTTL
	}
	return s.cfg.FiatTTL
}

// GetRate 1 单位 base 折合多少 quote
func (s *RateService) GetRate(ctx context.Context, base, quote string) (float64, error) {
	base, quote = strings.ToUpper(strings.TrimSpace(base)), strings.ToUpper(strings.TrimSpace(quote))
	if base == "" || quote == "" {
		return 0, fmt.Errorf("%w: empty currency code", ErrRateUnavailable)
	}
	if base == quote {
		return 1, nil
	}
	if r, ok := s.cached(ctx, base, quote); ok {
		return r, nil
	}

	q, err := s.fetchLive(ctx, base, quote)
	if err == nil {
		s.store(ctx, q)
		return q.Rate, nil
	}
	s.logger.WithError(err).WithFields(logrus.Fields{"base": base, "quote": quote}).Warn("实时汇率全部失败，尝试近似汇率")

	if r, ok := approxRate(base, quote); ok {
		s.logger.WithFields(logrus.Fields{"base": base, "quote": quote, "rate": r}).Warn("使用近似汇率（fallback-approx），结果可能过期")
		s.store(ctx, &model.RateQuote{
			Base: base, Quote: quote, Rate: r,
			Provider:  model.RateSourceFallback,
			FetchedAt: s.now().UTC(),
		})
		return r, nil
	}
	return 0, fmt.Errorf("%w: %s/%s: %v", ErrRateUnavailable, base, quote, err)
}

// Convert 按汇率换算最小单位金额；0（免费）与负数（未知）原样返回
func (s *RateService) Convert(ctx context.Context, amountMinor int64, from, to string) (int64, error) {
	if amountMinor <= 0 || strings.EqualFold(from, to) {
		return amountMinor, nil
	}
	r, err := s.GetRate(ctx, from, to)
	if err != nil {
		return 0, err
	}
	major := money.ToMajor(amountMinor, from).Mul(decimal.NewFromFloat(r))
	return money.ToMinor(major, to), nil
}

// cached 先查正向再查反向，只取未过期的行
func (s *RateService) cached(ctx context.Context, base, quote string) (float64, bool) {
	notBefore := s.now().UTC().Add(-s.ttl(base, quote))
	if r, ok := s.pickFresh(ctx, base, quote, notBefore); ok {
		return r, true
	}
	if r, ok := s.pickFresh(ctx, quote, base, notBefore); ok {
		return 1 / r, true
	}
	return 0, false
}

func (s *RateService) pickFresh(ctx context.Context, base, quote string, notBefore time.Time) (float64, bool) {
	rows, err := s.repo.ListFresh(ctx, base, quote, notBefore)
	if err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{"base": base, "quote": quote}).Warn("读取汇率缓存失败")
		return 0, false
	}
	if row := s.byPrecedence(rows); row != nil {
		return row.Rate, true
	}
	return 0, false
}

// byPrecedence 多来源同时有效时按配置优先级，否则取最新（rows 已按时间倒序）
func (s *RateService) byPrecedence(rows []*model.ExchangeRate) *model.ExchangeRate {
	var valid []*model.ExchangeRate
	for _, r := range rows {
		if validRate(r.Rate) {
			valid = append(valid, r)
		}
	}
	if len(valid) == 0 {
		return nil
	}
	for _, p := range s.cfg.ProviderPrecedence {
		for _, r := range valid {
			if strings.EqualFold(r.Provider, p) {
				return r
			}
		}
	}
	return valid[0]
}

// fetchLive 只走实时来源，不读缓存也不用近似表
func (s *RateService) fetchLive(ctx context.Context, base, quote string) (*model.RateQuote, error) {
	switch {
	case s.IsCrypto(base):
		q, err := s.firstOf(ctx, s.providers.Crypto, base, quote)
		if err == nil || quote == usd {
			return q, err
		}
		bq, berr := s.bridge(ctx, base, quote)
		if berr != nil {
			return nil, errors.Join(err, berr)
		}
		return bq, nil
	case s.IsCrypto(quote):
		q, err := s.fetchLive(ctx, quote, base)
		if err != nil {
			return nil, err
		}
		return invert(q), nil
	default:
		q, err := s.fetchForex(ctx, base, quote)
		if err == nil || base == usd || quote == usd {
			return q, err
		}
		bq, berr := s.bridge(ctx, base, quote)
		if berr != nil {
			return nil, errors.Join(err, berr)
		}
		return bq, nil
	}
}

// bridge base→USD × USD→quote；两段各自先查缓存再实时获取
func (s *RateService) bridge(ctx context.Context, base, quote string) (*model.RateQuote, error) {
	first, p1, err := s.leg(ctx, base, usd)
	if err != nil {
		return nil, fmt.Errorf("桥接 %s/USD 失败: %w", base, err)
	}
	second, p2, err := s.leg(ctx, usd, quote)
	if err != nil {
		return nil, fmt.Errorf("桥接 USD/%s 失败: %w", quote, err)
	}
	return &model.RateQuote{
		Base:      base,
		Quote:     quote,
		Rate:      first * second,
		Provider:  model.RateSourceDerived,
		FetchedAt: s.now().UTC(),
		Metadata:  map[string]interface{}{"via": usd, "legs": []string{p1, p2}},
	}, nil
}

func (s *RateService) leg(ctx context.Context, base, quote string) (float64, string, error) {
	if base == quote {
		return 1, "identity", nil
	}
	if r, ok := s.cached(ctx, base, quote); ok {
		return r, "cache", nil
	}
	q, err := s.fetchLive(ctx, base, quote)
	if err != nil {
		return 0, "", err
	}
	s.store(ctx, q)
	return q.Rate, q.Provider, nil
}

func (s *RateService) fetchForex(ctx context.Context, base, quote string) (*model.RateQuote, error) {
	var errs []error
	if bulk := s.providers.ForexBulk; bulk != nil {
		q, err := s.fromBulk(ctx, bulk, base, quote)
		if err == nil {
			return q, nil
		}
		// 反向表：USD 的批量结果同样能给出 X/USD
		if iq, ierr := s.fromBulk(ctx, bulk, quote, base); ierr == nil {
			return invert(iq), nil
		}
		errs = append(errs, err)
		s.logger.WithError(err).WithFields(logrus.Fields{"provider": bulk.Name(), "base": base, "quote": quote}).Warn("批量汇率来源失败")
	}
	q, err := s.firstOf(ctx, s.providers.Forex, base, quote)
	if err != nil {
		errs = append(errs, err)
		return nil, errors.Join(errs...)
	}
	return q, nil
}

func (s *RateService) fromBulk(ctx context.Context, bulk interfaces.BulkRateProvider, base, quote string) (*model.RateQuote, error) {
	rates, err := bulk.FetchAllRates(ctx, base)
	if err != nil {
		return nil, err
	}
	r := rates[quote]
	if !validRate(r) {
		return nil, fmt.Errorf("%s 没有 %s/%s 汇率", bulk.Name(), base, quote)
	}
	return &model.RateQuote{Base: base, Quote: quote, Rate: r, Provider: bulk.Name(), FetchedAt: s.now().UTC()}, nil
}

func (s *RateService) firstOf(ctx context.Context, providers []interfaces.RateProvider, base, quote string) (*model.RateQuote, error) {
	if len(providers) == 0 {
		return nil, fmt.Errorf("没有可用的 %s/%s 汇率来源", base, quote)
	}
	var errs []error
	for _, p := range providers {
		q, err := p.FetchPairRate(ctx, base, quote)
		if err == nil && q != nil && validRate(q.Rate) {
			if q.Provider == "" {
				q.Provider = p.Name()
			}
			return q, nil
		}
		if err == nil {
			err = fmt.Errorf("%s 返回无效汇率", p.Name())
		}
		s.logger.WithError(err).WithFields(logrus.Fields{"provider": p.Name(), "base": base, "quote": quote}).Warn("汇率来源失败，尝试下一个")
		errs = append(errs, err)
	}
	return nil, errors.Join(errs...)
}

// store 写入缓存；写失败只记日志，不影响本次结果
func (s *RateService) store(ctx context.Context, q *model.RateQuote) {
	s.metrics.ObserveRate(q.Provider)
	row := &model.ExchangeRate{
		BaseCurrency:  q.Base,
		QuoteCurrency: q.Quote,
		Provider:      q.Provider,
		Rate:          q.Rate,
		FetchedAt:     q.FetchedAt,
	}
	if row.FetchedAt.IsZero() {
		row.FetchedAt = s.now().UTC()
	}
	if len(q.Metadata) > 0 {
		if b, err := json.Marshal(q.Metadata); err == nil {
			row.Metadata = datatypes.JSON(b)
		}
	}
	if err := s.repo.UpsertRate(ctx, row); err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{"base": q.Base, "quote": q.Quote, "provider": q.Provider}).Warn("保存汇率失败")
	}
}

// RefreshSummary 一轮定时刷新结果
type RefreshSummary struct {
	Attempted int         `json:"attempted"`
	Failed    int         `json:"failed"`
	Refreshed []PairRate  `json:"refreshed"`
	Errors    []PairError `json:"errors"`
	Alert     bool        `json:"alert"`
}

type PairRate struct {
	Base     string  `json:"base"`
	Quote    string  `json:"quote"`
	Rate     float64 `json:"rate"`
	Provider string  `json:"provider"`
}

type PairError struct {
	Pair    string `json:"pair"`
	Message string `json:"message"`
}

// RefreshRates 逐个币对实时刷新（跳过缓存），单个失败不影响其余币对
func (s *RateService) RefreshRates(ctx context.Context) RefreshSummary {
	var sum RefreshSummary
	for _, pair := range s.cfg.RefreshPairs {
		sum.Attempted++
		base, quote, ok := parsePair(pair)
		if !ok {
			sum.Failed++
			sum.Errors = append(sum.Errors, PairError{Pair: pair, Message: "币对格式应为 BASE/QUOTE"})
			s.logger.WithField("pair", pair).Warn("无效的刷新币对")
			continue
		}
		q, err := s.fetchLive(ctx, base, quote)
		if err != nil {
			sum.Failed++
			sum.Errors = append(sum.Errors, PairError{Pair: pair, Message: err.Error()})
			s.logger.WithError(err).WithField("pair", pair).Warn("刷新汇率失败")
			continue
		}
		s.store(ctx, q)
		sum.Refreshed = append(sum.Refreshed, PairRate{Base: q.Base, Quote: q.Quote, Rate: q.Rate, Provider: q.Provider})
	}

	s.metrics.ObserveFXRefresh(sum.Attempted, sum.Failed)
	if sum.Attempted > 0 {
		ratio := float64(sum.Failed) / float64(sum.Attempted)
		if ratio > s.cfg.AlertRatio {
			sum.Alert = true
			s.logger.WithFields(logrus.Fields{
				"attempted": sum.Attempted,
				"failed":    sum.Failed,
				"ratio":     ratio,
			}).Error("汇率刷新失败比例超过告警阈值")
		}
	}
	s.logger.Infof("汇率刷新完成：尝试 %d 个币对，失败 %d 个", sum.Attempted, sum.Failed)
	return sum
}

// SweepRates 清理超过保留期的汇率
func (s *RateService) SweepRates(ctx context.Context) (int64, error) {
	n, err := s.repo.DeleteOlderThan(ctx, s.now().UTC().Add(-s.cfg.Retention))
	if err != nil {
		return 0, fmt.Errorf("清理过期汇率失败: %w", err)
	}
	if n > 0 {
		s.logger.Infof("清理过期汇率 %d 条", n)
	}
	return n, nil
}

func parsePair(pair string) (string, string, bool) {
	parts := strings.Split(pair, "/")
	if len(parts) != 2 {
		return "", "", false
	}
	base, quote := strings.ToUpper(strings.TrimSpace(parts[0])), strings.ToUpper(strings.TrimSpace(parts[1]))
	if base == "" || quote == "" || base == quote {
		return "", "", false
	}
	return base, quote, true
}

func approxRate(base, quote string) (float64, bool) {
	if r, ok := approxRates[base+"/"+quote]; ok {
		return r, true
	}
	if r, ok := approxRates[quote+"/"+base]; ok {
		return 1 / r, true
	}
	return 0, false
}

func invert(q *model.RateQuote) *model.RateQuote {
	meta := map[string]interface{}{"inverted_from": q.Base + "/" + q.Quote}
	for k, v := range q.Metadata {
		meta[k] = v
	}
	return &model.RateQuote{
		Base:      q.Quote,
		Quote:     q.Base,
		Rate:      1 / q.Rate,
		Provider:  q.Provider,
		FetchedAt: q.FetchedAt,
		Metadata:  meta,
	}
}

func validRate(r float64) bool {
	return r > 0 && !math.IsInf(r, 0) && !math.IsNaN(r)
}
