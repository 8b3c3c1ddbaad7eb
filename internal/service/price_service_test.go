package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"GamePriceSync/internal/adapter"
	"GamePriceSync/internal/config"
	"GamePriceSync/internal/interfaces"
	"GamePriceSync/internal/metrics"
	"GamePriceSync/internal/model"
	"GamePriceSync/internal/repository"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"gorm.io/gorm"
)

// fakeFetcher 按 url 返回价格；fail 中的 url 返回错误
type fakeFetcher struct {
	retailer model.RetailerType
	prices   map[string]*model.FetchedPrice
	fail     map[string]bool

	mu   sync.Mutex
	urls []string
}

func (f *fakeFetcher) Retailer() model.RetailerType { return f.retailer }

func (f *fakeFetcher) ExtractID(urlOrID string) (string, bool) { return urlOrID, urlOrID != "" }

func (f *fakeFetcher) FetchPrice(_ context.Context, url, _ string) (*model.FetchedPrice, error) {
	f.mu.Lock()
	f.urls = append(f.urls, url)
	f.mu.Unlock()
	if f.fail[url] {
		return nil, fmt.Errorf("%s: 503 service unavailable", f.retailer)
	}
	return f.prices[url], nil
}

type priceFixture struct {
	db      *gorm.DB
	svc     *PriceService
	prices  repository.PriceRepository
	catalog repository.CatalogRepository
	metrics *metrics.Metrics
	now     time.Time
}

func newPriceFixture(t *testing.T, fetchers ...*fakeFetcher) *priceFixture {
	t.Helper()
	db := newTestDB(t)
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatal(err)
	}
	// 内存库：单连接避免并发刷新时锁冲突
	sqlDB.SetMaxOpenConns(1)

	list := make([]interfaces.PriceFetcher, 0, len(fetchers))
	for _, f := range fetchers {
		list = append(list, f)
	}
	reg := adapter.NewRetailerRegistryFrom(quietLogger(), list...)

	f := &priceFixture{
		db:      db,
		prices:  repository.NewPriceRepository(db),
		catalog: repository.NewCatalogRepository(db),
		metrics: metrics.New(prometheus.NewRegistry()),
		now:     time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	f.svc = NewPriceService(f.prices, f.catalog, reg, nil, config.PriceConfig{
		StaleAfter:   24 * time.Hour,
		Workers:      2,
		FetchTimeout: time.Second,
		BatchLimit:   10,
	}, f.metrics, quietLogger())
	f.svc.now = func() time.Time { return f.now }
	return f
}

func (f *priceFixture) game(t *testing.T, ext string) uint64 {
	t.Helper()
	g := &model.VideoGame{Provider: "igdb", ExternalID: ext, Name: "Game " + ext}
	if err := f.catalog.UpsertGame(context.Background(), g); err != nil {
		t.Fatal(err)
	}
	return g.ID
}

func (f *priceFixture) price(t *testing.T, gameID uint64, retailer, currency string, amount int64, url string, updated time.Time) *model.PriceRecord {
	t.Helper()
	p := &model.PriceRecord{
		VideoGameID: gameID,
		Retailer:    retailer,
		CountryCode: "US",
		Currency:    currency,
		AmountMinor: amount,
		URL:         url,
		IsActive:    true,
		RecordedAt:  updated,
		UpdatedAt:   updated,
	}
	if err := f.prices.UpsertPrice(context.Background(), p); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestPriceService_RefreshPrices_PartialFailure(t *testing.T) {
	steam := &fakeFetcher{retailer: model.RetailerSteam, prices: map[string]*model.FetchedPrice{
		"https://store.steampowered.com/app/10": {AmountMinor: 1999, Currency: "usd"},
	}}
	gog := &fakeFetcher{retailer: model.RetailerGOG, fail: map[string]bool{"https://www.gog.com/game/x": true}}
	epic := &fakeFetcher{retailer: model.RetailerEpic, prices: map[string]*model.FetchedPrice{
		"https://store.epicgames.com/p/x": {Currency: "USD", IsFree: true},
	}}
	f := newPriceFixture(t, steam, gog, epic)
	ctx := context.Background()
	old := f.now.Add(-48 * time.Hour)

	gameID := f.game(t, "1")
	f.price(t, gameID, "steam", "USD", model.PriceUnknown, "https://store.steampowered.com/app/10", old)
	gogRow := f.price(t, gameID, "gog", "USD", model.PriceUnknown, "https://www.gog.com/game/x", old)
	f.price(t, gameID, "epic", "USD", model.PriceUnknown, "https://store.epicgames.com/p/x", old)

	res, err := f.svc.RefreshPrices(ctx, gameID, false)
	if err != nil {
		t.Fatalf("RefreshPrices: %v", err)
	}
	if len(res.Prices) != 2 || len(res.Errors) != 1 {
		t.Fatalf("prices=%d errors=%d, want 2/1", len(res.Prices), len(res.Errors))
	}
	if res.Errors[0].PriceID != gogRow.ID || res.Errors[0].Retailer != "gog" {
		t.Fatalf("error entry: %+v", res.Errors[0])
	}
	if res.Prices[0].AmountMinor != 1999 || res.Prices[0].Currency != "USD" {
		t.Fatalf("steam: %+v", res.Prices[0])
	}
	if !res.Prices[1].IsFree || res.Prices[1].AmountMinor != 0 {
		t.Fatalf("epic should be free: %+v", res.Prices[1])
	}

	stillUnknown, err := f.prices.FindActivePrice(ctx, gameID, "gog", "US")
	if err != nil || stillUnknown == nil || stillUnknown.AmountMinor != model.PriceUnknown {
		t.Fatalf("gog row should keep -1: %+v %v", stillUnknown, err)
	}
	var snaps int64
	f.db.Model(&model.PriceSnapshot{}).Where("video_game_id = ?", gameID).Count(&snaps)
	if snaps != 2 {
		t.Fatalf("snapshots = %d, want 2", snaps)
	}
	if got := testutil.ToFloat64(f.metrics.PriceFetchTotal.WithLabelValues("gog", "error")); got != 1 {
		t.Fatalf("gog error metric = %v", got)
	}

	// 非强制刷新：刚更新过的行不再抓取，只剩 gog
	res, err = f.svc.RefreshPrices(ctx, gameID, false)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Prices) != 0 || len(res.Errors) != 1 {
		t.Fatalf("second refresh prices=%d errors=%d", len(res.Prices), len(res.Errors))
	}
	if len(steam.urls) != 1 {
		t.Fatalf("steam fetched %d times", len(steam.urls))
	}

	res, err = f.svc.RefreshPrices(ctx, gameID, true)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Prices)+len(res.Errors) != 3 {
		t.Fatalf("force refresh should touch all rows: %+v", res)
	}
}

func TestPriceService_RefreshPrices_Errors(t *testing.T) {
	f := newPriceFixture(t)
	ctx := context.Background()

	if _, err := f.svc.RefreshPrices(ctx, 999, false); !errors.Is(err, ErrGameNotFound) {
		t.Fatalf("err = %v, want ErrGameNotFound", err)
	}

	gameID := f.game(t, "2")
	f.price(t, gameID, "humble", "USD", model.PriceUnknown, "https://humble/x", f.now)
	f.price(t, gameID, "steam", "USD", model.PriceUnknown, "https://store.steampowered.com/app/1", f.now)
	res, err := f.svc.RefreshPrices(ctx, gameID, false)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Errors) != 2 {
		t.Fatalf("errors = %+v", res.Errors)
	}
}

func TestPriceService_RefreshPrices_EmptyResult(t *testing.T) {
	steam := &fakeFetcher{retailer: model.RetailerSteam}
	f := newPriceFixture(t, steam)
	gameID := f.game(t, "3")
	f.price(t, gameID, "steam", "USD", model.PriceUnknown, "https://store.steampowered.com/app/3", f.now)

	res, err := f.svc.RefreshPrices(context.Background(), gameID, false)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Errors) != 1 || res.Errors[0].Message != ErrNoPriceData.Error() {
		t.Fatalf("errors = %+v", res.Errors)
	}
	if got := testutil.ToFloat64(f.metrics.PriceFetchTotal.WithLabelValues("steam", "empty")); got != 1 {
		t.Fatalf("empty metric = %v", got)
	}
}

func TestPriceService_LowestAndCompare(t *testing.T) {
	f := newPriceFixture(t)
	ctx := context.Background()
	gameID := f.game(t, "4")
	f.price(t, gameID, "steam", "USD", 2999, "s", f.now)
	f.price(t, gameID, "gog", "USD", 1999, "g", f.now)
	f.price(t, gameID, "epic", "USD", 0, "e", f.now)
	f.price(t, gameID, "xbox", "USD", model.PriceUnknown, "x", f.now)
	f.price(t, gameID, "amazon", "EUR", 999, "a", f.now)

	low, err := f.svc.LowestPrice(ctx, gameID, "usd")
	if err != nil {
		t.Fatal(err)
	}
	if low == nil || low.Retailer != "gog" || low.AmountMinor != 1999 {
		t.Fatalf("lowest = %+v", low)
	}

	none, err := f.svc.LowestPrice(ctx, gameID, "GBP")
	if err != nil || none != nil {
		t.Fatalf("GBP lowest = %+v %v", none, err)
	}

	cmp, err := f.svc.ComparePrices(ctx, gameID, "USD")
	if err != nil {
		t.Fatal(err)
	}
	if len(cmp.Prices) != 2 || cmp.Lowest.Retailer != "gog" || cmp.Highest.Retailer != "steam" || cmp.SpreadMinor != 1000 {
		t.Fatalf("compare = %+v", cmp)
	}
}

func TestPriceService_PriceTrend(t *testing.T) {
	f := newPriceFixture(t)
	ctx := context.Background()
	gameID := f.game(t, "5")
	base := f.now.Add(-72 * time.Hour)
	for i, amt := range []int64{2999, 1999, 2499} {
		snap := &model.PriceSnapshot{
			SnapshotID:  fmt.Sprintf("snap-%d", i),
			VideoGameID: gameID,
			Retailer:    "steam",
			CountryCode: "US",
			Currency:    "USD",
			AmountMinor: amt,
			RecordedAt:  base.Add(time.Duration(i) * 24 * time.Hour),
		}
		if err := f.db.Create(snap).Error; err != nil {
			t.Fatal(err)
		}
	}

	trend, err := f.svc.PriceTrend(ctx, gameID, "Steam Store", "us", time.Time{})
	if err != nil {
		t.Fatal(err)
	}
	if len(trend.Points) != 3 || trend.Retailer != "steam" {
		t.Fatalf("trend = %+v", trend)
	}
	if trend.MinMinor != 1999 || trend.MaxMinor != 2999 || trend.ChangeMinor != -500 || trend.ChangePercent != -16.67 {
		t.Fatalf("stats = min %d max %d change %d pct %v", trend.MinMinor, trend.MaxMinor, trend.ChangeMinor, trend.ChangePercent)
	}

	recent, err := f.svc.PriceTrend(ctx, gameID, "", "", base.Add(36*time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if len(recent.Points) != 1 || recent.ChangeMinor != 0 {
		t.Fatalf("recent = %+v", recent)
	}

	if _, err := f.svc.PriceTrend(ctx, gameID, "humble", "", time.Time{}); !errors.Is(err, ErrUnknownRetailer) {
		t.Fatalf("err = %v", err)
	}
}

func TestPriceService_DisplayPrices(t *testing.T) {
	f := newPriceFixture(t)
	ctx := context.Background()
	gameID := f.game(t, "6")
	f.price(t, gameID, "steam", "USD", 1999, "s", f.now)
	f.price(t, gameID, "epic", "USD", 0, "e", f.now)
	f.price(t, gameID, "gog", "EUR", 1799, "g", f.now)
	f.price(t, gameID, "xbox", "USD", model.PriceUnknown, "x", f.now)

	list, err := f.svc.DisplayPrices(ctx, gameID, "usd")
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 3 {
		t.Fatalf("len = %d, want 3 (unknown excluded)", len(list))
	}
	if list[0].Retailer != "epic" || list[1].Retailer != "steam" || list[1].ConvertedMinor != 1999 {
		t.Fatalf("order = %+v", list)
	}
	if list[2].Retailer != "gog" || list[2].Error == "" || list[2].ConvertedFormatted != "N/A" {
		t.Fatalf("unconvertible row = %+v", list[2])
	}
}

func TestPriceService_RefreshStale(t *testing.T) {
	steam := &fakeFetcher{retailer: model.RetailerSteam, prices: map[string]*model.FetchedPrice{
		"s1": {AmountMinor: 999, Currency: "USD"},
	}, fail: map[string]bool{"s2": true}}
	f := newPriceFixture(t, steam)
	ctx := context.Background()

	g1 := f.game(t, "7")
	g2 := f.game(t, "8")
	g3 := f.game(t, "9")
	f.price(t, g1, "steam", "USD", model.PriceUnknown, "s1", f.now)
	f.price(t, g2, "steam", "USD", model.PriceUnknown, "s2", f.now)
	f.price(t, g3, "steam", "USD", 1500, "s3", f.now) // 新鲜，不参与

	sum, err := f.svc.RefreshStale(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	if sum.Games != 2 || sum.Succeeded != 1 || sum.PricesUpdated != 1 || sum.PriceErrors != 1 {
		t.Fatalf("summary = %+v", sum)
	}
	if len(sum.GameErrors) != 1 || sum.GameErrors[0].GameID != g2 {
		t.Fatalf("game errors = %+v", sum.GameErrors)
	}
}
