package retailer

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"GamePriceSync/internal/adapter"
	"GamePriceSync/internal/config"
	"GamePriceSync/internal/interfaces"
	"GamePriceSync/internal/model"
	"GamePriceSync/internal/money"

	"github.com/sirupsen/logrus"
)

var (
	// UP9000-CUSA07408_00-0000000000000000 或 concept 数字ID
	psBareID = regexp.MustCompile(`^(?:[A-Z]{2}\d{4}-[A-Z]{4}\d{5}_\d{2}-[0-9A-Z]{16}|\d+)$`)
	psLink   = regexp.MustCompile(`/(?:product|concept)/([0-9A-Za-z_-]+)`)
)

func init() {
	adapter.Register(model.RetailerPlayStation, NewPlayStationFetcher)
}

type PlayStationFetcher struct {
	fetcherBase
}

func NewPlayStationFetcher(cfg *config.ProviderConfig, logger *logrus.Logger) interfaces.PriceFetcher {
	return &PlayStationFetcher{fetcherBase: newBase(cfg, logger)}
}

func (p *PlayStationFetcher) Retailer() model.RetailerType { return model.RetailerPlayStation }

func (p *PlayStationFetcher) ExtractID(urlOrID string) (string, bool) {
	return extractID(urlOrID, psBareID, psLink)
}

type psContainerResp struct {
	ID         string `json:"id"`
	DefaultSku *struct {
		Price        int64  `json:"price"` // 最小单位
		DisplayPrice string `json:"display_price"`
		IsFree       bool   `json:"is_free"`
	} `json:"default_sku"`
}

// FetchPrice 店面容器接口不返回币种，按地区推导
func (p *PlayStationFetcher) FetchPrice(ctx context.Context, urlOrID, country string) (*model.FetchedPrice, error) {
	id, ok := p.ExtractID(urlOrID)
	if !ok {
		return nil, errNoID("playstation", urlOrID)
	}
	cc := countryOrDefault(country)
	endpoint := p.endpoint("/store/api/chihiro/00_09_000/container/%s/en/999/%s", url.PathEscape(cc), url.PathEscape(id))

	var resp psContainerResp
	if err := p.req.GetJSON(ctx, endpoint, &resp); err != nil {
		return nil, fmt.Errorf("playstation获取价格失败: %w", err)
	}
	if resp.DefaultSku == nil {
		return nil, nil
	}
	code, _ := money.CurrencyForCountry(cc)
	sku := resp.DefaultSku
	return &model.FetchedPrice{
		AmountMinor: sku.Price,
		Currency:    code,
		IsFree:      sku.IsFree || sku.Price == 0 || strings.EqualFold(sku.DisplayPrice, "free"),
		ExternalID:  id,
	}, nil
}
