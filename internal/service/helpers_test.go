package service

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"

	"GamePriceSync/internal/model"

	sqlite "github.com/glebarez/sqlite"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(model.AllModels()...); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// fakePairProvider key 形如 "BTC/USD"
type fakePairProvider struct {
	name  string
	rates map[string]float64
	mu    sync.Mutex
	calls int
}

func (f *fakePairProvider) Name() string { return f.name }

func (f *fakePairProvider) FetchPairRate(_ context.Context, base, quote string) (*model.RateQuote, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	r, ok := f.rates[base+"/"+quote]
	if !ok {
		return nil, fmt.Errorf("%s: no %s/%s", f.name, base, quote)
	}
	return &model.RateQuote{Base: base, Quote: quote, Rate: r, Provider: f.name}, nil
}

type fakeBulkProvider struct {
	rates map[string]map[string]float64
	mu    sync.Mutex
	calls int
}

func (f *fakeBulkProvider) Name() string { return model.RateSourceForex }

func (f *fakeBulkProvider) FetchAllRates(_ context.Context, base string) (map[string]float64, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	r, ok := f.rates[base]
	if !ok {
		return nil, fmt.Errorf("forex down for %s", base)
	}
	return r, nil
}
