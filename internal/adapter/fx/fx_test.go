package fx

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"GamePriceSync/internal/config"

	"github.com/sirupsen/logrus"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func TestSelectMostLiquid_KeepsTopThree(t *testing.T) {
	in := []LiquidityCandidate{
		{Symbol: "BTCUSD", Price: 1, Turnover: 10},
		{Symbol: "BTCUSDT", Price: 2, Turnover: 500},
		{Symbol: "BTCUSDC", Price: 3, Turnover: 100},
		{Symbol: "BTCDAI", Price: 4, Turnover: 1},
	}
	best, top, ok := SelectMostLiquid(in, 3)
	if !ok || best.Symbol != "BTCUSDT" {
		t.Fatalf("best = %+v", best)
	}
	if len(top) != 3 || top[1].Symbol != "BTCUSDC" || top[2].Symbol != "BTCUSD" {
		t.Fatalf("top = %+v", top)
	}
	if _, _, ok := SelectMostLiquid(nil, 3); ok {
		t.Fatal("空候选不应成功")
	}
}

func TestBybitClient_FetchPairRate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v5/market/tickers" || r.URL.Query().Get("category") != "spot" {
			t.Errorf("unexpected request %s", r.URL.String())
		}
		_, _ = io.WriteString(w, `{"retCode":0,"retMsg":"OK","result":{"category":"spot","list":[
			{"symbol":"BTCUSDT","lastPrice":"65000.5","turnover24h":"900000000"},
			{"symbol":"BTCUSDC","lastPrice":"65010","turnover24h":"20000000"},
			{"symbol":"ETHUSDT","lastPrice":"3000","turnover24h":"999999999999"},
			{"symbol":"BTCEUR","lastPrice":"60000","turnover24h":"100"}
		]}}`)
	}))
	defer srv.Close()

	c := NewBybitClient(&config.ProviderConfig{BaseURL: srv.URL, Timeout: 2}, quietLogger())
	q, err := c.FetchPairRate(context.Background(), "btc", "usd")
	if err != nil {
		t.Fatalf("FetchPairRate: %v", err)
	}
	if q.Rate != 65000.5 || q.Provider != "bybit" {
		t.Fatalf("quote = %+v", q)
	}
	if q.Metadata["symbol"] != "BTCUSDT" {
		t.Fatalf("metadata = %+v", q.Metadata)
	}
	if top, _ := q.Metadata["candidates"].([]LiquidityCandidate); len(top) != 2 {
		t.Fatalf("candidates = %+v", q.Metadata["candidates"])
	}

	if _, err := c.FetchPairRate(context.Background(), "BTC", "JPY"); err == nil {
		t.Fatal("没有交易对时应返回错误")
	}
}

func TestBybitClient_RetCodeError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"retCode":10001,"retMsg":"params error"}`)
	}))
	defer srv.Close()

	c := NewBybitClient(&config.ProviderConfig{BaseURL: srv.URL}, quietLogger())
	if _, err := c.FetchPairRate(context.Background(), "BTC", "USD"); err == nil || !strings.Contains(err.Error(), "10001") {
		t.Fatalf("err = %v", err)
	}
}

func TestForexClient_CachesPerBase(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		if r.URL.Path != "/v6/k123/latest/USD" {
			t.Errorf("path = %s", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"result":           "success",
			"base_code":        "USD",
			"conversion_rates": map[string]float64{"USD": 1, "EUR": 0.92, "GBP": 0.79},
		})
	}))
	defer srv.Close()

	c := NewForexClient(&config.ProviderConfig{BaseURL: srv.URL, APIKey: "k123"}, time.Minute, quietLogger())
	q, err := c.FetchPairRate(context.Background(), "usd", "eur")
	if err != nil || q.Rate != 0.92 || q.Provider != "exchangerate-api" {
		t.Fatalf("quote = %+v err = %v", q, err)
	}
	if _, err := c.FetchPairRate(context.Background(), "USD", "GBP"); err != nil {
		t.Fatal(err)
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Fatalf("同一基础货币应只请求一次，实际 %d 次", calls)
	}
	if _, err := c.FetchPairRate(context.Background(), "USD", "XYZ"); err == nil {
		t.Fatal("缺失报价货币应返回错误")
	}

	// 过期后重新请求
	c.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	if _, err := c.FetchAllRates(context.Background(), "USD"); err != nil {
		t.Fatal(err)
	}
	if atomic.LoadInt32(&calls) != 2 {
		t.Fatalf("缓存过期后应重新请求，实际 %d 次", calls)
	}
}

func TestForexClient_ErrorResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"result":"error","error-type":"invalid-key"}`)
	}))
	defer srv.Close()

	c := NewForexClient(&config.ProviderConfig{BaseURL: srv.URL, APIKey: "bad"}, time.Minute, quietLogger())
	if _, err := c.FetchAllRates(context.Background(), "USD"); err == nil || !strings.Contains(err.Error(), "invalid-key") {
		t.Fatalf("err = %v", err)
	}
}

func TestTradingViewClient_FetchPairRate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/forex/scan" {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		var body scanRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode body: %v", err)
		}
		if len(body.Symbols.Tickers) != 1 || body.Symbols.Tickers[0] != "FX_IDC:EURGBP" {
			t.Errorf("tickers = %v", body.Symbols.Tickers)
		}
		_, _ = io.WriteString(w, `{"totalCount":1,"data":[{"s":"FX_IDC:EURGBP","d":[0.8571]}]}`)
	}))
	defer srv.Close()

	c := NewTradingViewClient(&config.ProviderConfig{BaseURL: srv.URL}, []string{"BTC"}, quietLogger())
	q, err := c.FetchPairRate(context.Background(), "EUR", "GBP")
	if err != nil || q.Rate != 0.8571 || q.Provider != "tradingview" {
		t.Fatalf("quote = %+v err = %v", q, err)
	}
}

func TestTradingViewClient_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewTradingViewClient(&config.ProviderConfig{BaseURL: srv.URL}, []string{"BTC"}, quietLogger())
	if _, err := c.FetchPairRate(context.Background(), "EUR", "GBP"); err == nil {
		t.Fatal("429 应返回错误")
	}
}

func TestTradingViewClient_CryptoUsesBybitFeed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/crypto/scan" {
			t.Errorf("path = %s", r.URL.Path)
		}
		_, _ = io.WriteString(w, `{"totalCount":1,"data":[{"s":"BYBIT:BTCUSDT","d":[64000.25]}]}`)
	}))
	defer srv.Close()

	c := NewTradingViewClient(&config.ProviderConfig{BaseURL: srv.URL}, []string{"btc"}, quietLogger())
	q, err := c.FetchPairRate(context.Background(), "btc", "usd")
	if err != nil || q.Rate != 64000.25 || q.Metadata["ticker"] != "BYBIT:BTCUSDT" {
		t.Fatalf("quote = %+v err = %v", q, err)
	}
}
