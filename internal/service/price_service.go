package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"GamePriceSync/internal/config"
	"GamePriceSync/internal/interfaces"
	"GamePriceSync/internal/metrics"
	"GamePriceSync/internal/model"
	"GamePriceSync/internal/money"
	"GamePriceSync/internal/repository"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

// RetailerLookup 按零售商名称/slug 取抓取器（adapter.RetailerRegistry 实现）
type RetailerLookup interface {
	Get(name string) (interfaces.PriceFetcher, error)
}

// PriceService 价格刷新与查询
type PriceService struct {
	prices   repository.PriceRepository
	catalog  repository.CatalogRepository
	fetchers RetailerLookup
	fx       CurrencyConverter
	cfg      config.PriceConfig
	metrics  *metrics.Metrics
	logger   *logrus.Logger
	now      func() time.Time
}

func NewPriceService(prices repository.PriceRepository, catalog repository.CatalogRepository, fetchers RetailerLookup, fx CurrencyConverter, cfg config.PriceConfig, m *metrics.Metrics, logger *logrus.Logger) *PriceService {
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = 24 * time.Hour
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 10 * time.Second
	}
	if fx == nil {
		fx = NoopConverter{}
	}
	return &PriceService{
		prices:   prices,
		catalog:  catalog,
		fetchers: fetchers,
		fx:       fx,
		cfg:      cfg,
		metrics:  m,
		logger:   logger,
		now:      time.Now,
	}
}

// PriceView 对外展示的一条价格
type PriceView struct {
	ID          uint64    `json:"id"`
	Retailer    string    `json:"retailer"`
	CountryCode string    `json:"country_code"`
	Currency    string    `json:"currency"`
	AmountMinor int64     `json:"amount_minor"`
	Formatted   string    `json:"formatted"`
	IsFree      bool      `json:"is_free"`
	URL         string    `json:"url,omitempty"`
	RecordedAt  time.Time `json:"recorded_at"`
}

func viewOf(p *model.PriceRecord) PriceView {
	return PriceView{
		ID:          p.ID,
		Retailer:    p.Retailer,
		CountryCode: p.CountryCode,
		Currency:    p.Currency,
		AmountMinor: p.AmountMinor,
		Formatted:   money.FormatPrice(p.AmountMinor, p.Currency),
		IsFree:      p.AmountMinor == 0,
		URL:         p.URL,
		RecordedAt:  p.RecordedAt,
	}
}

type PriceError struct {
	PriceID     uint64 `json:"price_id"`
	Retailer    string `json:"retailer"`
	CountryCode string `json:"country_code"`
	URL         string `json:"url"`
	Message     string `json:"message"`
}

// RefreshResult 部分成功也正常返回，失败行在 Errors 中
type RefreshResult struct {
	GameID uint64       `json:"game_id"`
	Prices []PriceView  `json:"prices"`
	Errors []PriceError `json:"errors"`
}

// RefreshPrices force 时刷新全部有效行，否则只刷新未知(-1)或超过 stale_after 的行
// 每行独立处理，单个零售商失败不影响其他行
func (s *PriceService) RefreshPrices(ctx context.Context, gameID uint64, force bool) (*RefreshResult, error) {
	if _, err := s.catalog.GetGame(ctx, gameID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %d", ErrGameNotFound, gameID)
		}
		return nil, fmt.Errorf("查询游戏 %d 失败: %w", gameID, err)
	}
	rows, err := s.prices.ListRefreshCandidates(ctx, gameID, force, s.now().UTC().Add(-s.cfg.StaleAfter))
	if err != nil {
		return nil, fmt.Errorf("查询待刷新价格失败: %w", err)
	}

	res := &RefreshResult{GameID: gameID, Prices: []PriceView{}, Errors: []PriceError{}}
	for _, row := range rows {
		if err := s.refreshRow(ctx, row); err != nil {
			res.Errors = append(res.Errors, PriceError{
				PriceID:     row.ID,
				Retailer:    row.Retailer,
				CountryCode: row.CountryCode,
				URL:         row.URL,
				Message:     err.Error(),
			})
			s.logger.WithError(err).WithFields(logrus.Fields{
				"game_id":  gameID,
				"price_id": row.ID,
				"retailer": row.Retailer,
				"url":      row.URL,
			}).Warn("刷新价格失败")
			continue
		}
		res.Prices = append(res.Prices, viewOf(row))
	}
	return res, nil
}

func (s *PriceService) refreshRow(ctx context.Context, row *model.PriceRecord) (err error) {
	result := "error"
	defer func() { s.metrics.ObservePriceFetch(row.Retailer, result) }()

	fetcher, err := s.fetchers.Get(row.Retailer)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnknownRetailer, err)
	}
	if strings.TrimSpace(row.URL) == "" {
		return errors.New("价格行缺少 url")
	}

	fctx, cancel := context.WithTimeout(ctx, s.cfg.FetchTimeout)
	defer cancel()
	fp, err := fetcher.FetchPrice(fctx, row.URL, row.CountryCode)
	if err != nil {
		return err
	}
	if fp == nil {
		result = "empty"
		return ErrNoPriceData
	}

	amount := fp.AmountMinor
	if fp.IsFree {
		amount = 0
	}
	if amount < 0 {
		return fmt.Errorf("零售商返回负价格 %d", amount)
	}
	currency := strings.ToUpper(fp.Currency)
	if currency == "" {
		currency = row.Currency
	}

	now := s.now().UTC()
	row.AmountMinor, row.Currency, row.RecordedAt, row.UpdatedAt = amount, currency, now, now
	snap := &model.PriceSnapshot{
		SnapshotID:  uuid.NewString(),
		VideoGameID: row.VideoGameID,
		Retailer:    row.Retailer,
		CountryCode: row.CountryCode,
		Currency:    currency,
		AmountMinor: amount,
		RecordedAt:  now,
	}
	if err := s.prices.ApplyFetched(ctx, row, snap); err != nil {
		return err
	}
	result = "ok"
	return nil
}

type GameError struct {
	GameID  uint64 `json:"game_id"`
	Message string `json:"message"`
}

// BatchRefreshSummary 多个游戏并行刷新的汇总
type BatchRefreshSummary struct {
	Games         int         `json:"games"`
	Succeeded     int         `json:"succeeded"`
	PricesUpdated int         `json:"prices_updated"`
	PriceErrors   int         `json:"price_errors"`
	GameErrors    []GameError `json:"game_errors"`
}

// RefreshStale 并行刷新存在过期价格的游戏（最多 workers 个同时进行），收集全部结果不提前失败
func (s *PriceService) RefreshStale(ctx context.Context, limit int) (*BatchRefreshSummary, error) {
	if limit <= 0 {
		limit = s.cfg.BatchLimit
	}
	ids, err := s.prices.ListStaleGameIDs(ctx, s.now().UTC().Add(-s.cfg.StaleAfter), limit)
	if err != nil {
		return nil, fmt.Errorf("查询过期价格失败: %w", err)
	}

	sum := &BatchRefreshSummary{Games: len(ids), GameErrors: []GameError{}}
	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(s.cfg.Workers)
	for _, id := range ids {
		id := id
		g.Go(func() error {
			res, err := s.RefreshPrices(ctx, id, false)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				sum.GameErrors = append(sum.GameErrors, GameError{GameID: id, Message: err.Error()})
				return nil
			}
			sum.PricesUpdated += len(res.Prices)
			sum.PriceErrors += len(res.Errors)
			if len(res.Errors) == 0 {
				sum.Succeeded++
			} else {
				sum.GameErrors = append(sum.GameErrors, GameError{GameID: id, Message: fmt.Sprintf("%d 个价格刷新失败", len(res.Errors))})
			}
			return nil
		})
	}
	_ = g.Wait()
	sort.Slice(sum.GameErrors, func(i, j int) bool { return sum.GameErrors[i].GameID < sum.GameErrors[j].GameID })

	s.logger.WithFields(logrus.Fields{
		"games":          sum.Games,
		"succeeded":      sum.Succeeded,
		"prices_updated": sum.PricesUpdated,
		"price_errors":   sum.PriceErrors,
	}).Info("过期价格刷新完成")
	return sum, nil
}

// LowestPrice 指定币种下最低的有效正价格；免费与未知价格不参与，没有时返回 nil
func (s *PriceService) LowestPrice(ctx context.Context, gameID uint64, currency string) (*PriceView, error) {
	rows, err := s.prices.QueryPrices(ctx, repository.PriceFilter{
		GameID:       gameID,
		Currency:     strings.ToUpper(currency),
		ActiveOnly:   true,
		PositiveOnly: true,
		Limit:        1,
	})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	v := viewOf(rows[0])
	return &v, nil
}

// PriceComparison 同币种价格升序对比
type PriceComparison struct {
	GameID          uint64      `json:"game_id"`
	Currency        string      `json:"currency"`
	Prices          []PriceView `json:"prices"`
	Lowest          *PriceView  `json:"lowest"`
	Highest         *PriceView  `json:"highest"`
	SpreadMinor     int64       `json:"spread_minor"`
	SpreadFormatted string      `json:"spread_formatted"`
}

func (s *PriceService) ComparePrices(ctx context.Context, gameID uint64, currency string) (*PriceComparison, error) {
	currency = strings.ToUpper(currency)
	rows, err := s.prices.QueryPrices(ctx, repository.PriceFilter{
		GameID:       gameID,
		Currency:     currency,
		ActiveOnly:   true,
		PositiveOnly: true,
	})
	if err != nil {
		return nil, err
	}
	cmp := &PriceComparison{GameID: gameID, Currency: currency, Prices: make([]PriceView, 0, len(rows))}
	for _, r := range rows {
		cmp.Prices = append(cmp.Prices, viewOf(r))
	}
	if n := len(cmp.Prices); n > 0 {
		cmp.Lowest, cmp.Highest = &cmp.Prices[0], &cmp.Prices[n-1]
		cmp.SpreadMinor = cmp.Highest.AmountMinor - cmp.Lowest.AmountMinor
		cmp.SpreadFormatted = money.FormatPrice(cmp.SpreadMinor, currency)
	}
	return cmp, nil
}

type TrendPoint struct {
	RecordedAt  time.Time `json:"recorded_at"`
	Currency    string    `json:"currency"`
	AmountMinor int64     `json:"amount_minor"`
	Formatted   string    `json:"formatted"`
}

// PriceTrend 历史价格与变化统计；统计只用与最新一条同币种的点
type PriceTrend struct {
	GameID        uint64       `json:"game_id"`
	Retailer      string       `json:"retailer"`
	CountryCode   string       `json:"country_code"`
	Currency      string       `json:"currency"`
	Points        []TrendPoint `json:"points"`
	MinMinor      int64        `json:"min_minor"`
	MaxMinor      int64        `json:"max_minor"`
	ChangeMinor   int64        `json:"change_minor"`
	ChangePercent float64      `json:"change_percent"`
}

func (s *PriceService) PriceTrend(ctx context.Context, gameID uint64, retailer, country string, since time.Time) (*PriceTrend, error) {
	if retailer != "" {
		r, ok := model.ParseRetailer(retailer)
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownRetailer, retailer)
		}
		retailer = string(r)
	}
	country = strings.ToUpper(country)
	hist, err := s.prices.ListHistory(ctx, gameID, retailer, country, since)
	if err != nil {
		return nil, err
	}
	trend := &PriceTrend{GameID: gameID, Retailer: retailer, CountryCode: country, Points: make([]TrendPoint, 0, len(hist))}
	for _, h := range hist {
		trend.Points = append(trend.Points, TrendPoint{
			RecordedAt:  h.RecordedAt,
			Currency:    h.Currency,
			AmountMinor: h.AmountMinor,
			Formatted:   money.FormatPrice(h.AmountMinor, h.Currency),
		})
	}
	if len(hist) == 0 {
		return trend, nil
	}

	trend.Currency = hist[len(hist)-1].Currency
	var first *model.PriceSnapshot
	var last *model.PriceSnapshot
	for _, h := range hist {
		if h.Currency != trend.Currency || h.AmountMinor < 0 {
			continue
		}
		if first == nil {
			first = h
			trend.MinMinor, trend.MaxMinor = h.AmountMinor, h.AmountMinor
		}
		last = h
		trend.MinMinor = min(trend.MinMinor, h.AmountMinor)
		trend.MaxMinor = max(trend.MaxMinor, h.AmountMinor)
	}
	if first != nil {
		trend.ChangeMinor = last.AmountMinor - first.AmountMinor
		if first.AmountMinor > 0 {
			trend.ChangePercent = math.Round(float64(trend.ChangeMinor)/float64(first.AmountMinor)*10000) / 100
		}
	}
	return trend, nil
}

type DisplayPrice struct {
	PriceView
	TargetCurrency     string `json:"target_currency"`
	ConvertedMinor     int64  `json:"converted_minor"`
	ConvertedFormatted string `json:"converted_formatted"`
	Error              string `json:"error,omitempty"`
}

// DisplayPrices 所有已知价格（含免费）换算到目标币种；换算失败的行保留原价并标记错误，排在最后
func (s *PriceService) DisplayPrices(ctx context.Context, gameID uint64, target string) ([]DisplayPrice, error) {
	target = strings.ToUpper(strings.TrimSpace(target))
	if target == "" {
		target = "USD"
	}
	rows, err := s.prices.QueryPrices(ctx, repository.PriceFilter{GameID: gameID, ActiveOnly: true, KnownOnly: true})
	if err != nil {
		return nil, err
	}
	out := make([]DisplayPrice, 0, len(rows))
	for _, r := range rows {
		d := DisplayPrice{PriceView: viewOf(r), TargetCurrency: target}
		converted, err := s.fx.Convert(ctx, r.AmountMinor, r.Currency, target)
		if err != nil {
			d.Error = err.Error()
			d.ConvertedMinor = model.PriceUnknown
			s.logger.WithError(err).WithFields(logrus.Fields{"price_id": r.ID, "from": r.Currency, "to": target}).Warn("价格换算失败")
		} else {
			d.ConvertedMinor = converted
		}
		d.ConvertedFormatted = money.FormatPrice(d.ConvertedMinor, target)
		out = append(out, d)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if (out[i].Error == "") != (out[j].Error == "") {
			return out[i].Error == ""
		}
		return out[i].ConvertedMinor < out[j].ConvertedMinor
	})
	return out, nil
}
