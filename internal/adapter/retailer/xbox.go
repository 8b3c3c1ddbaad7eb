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

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

var (
	xboxBareID = regexp.MustCompile(`^[0-9A-Za-z]{12}$`)
	xboxLink   = regexp.MustCompile(`/([0-9A-Za-z]{12})(?:[/?#]|$)`)
)

func init() {
	adapter.Register(model.RetailerXbox, NewXboxFetcher)
}

type XboxFetcher struct {
	fetcherBase
}

func NewXboxFetcher(cfg *config.ProviderConfig, logger *logrus.Logger) interfaces.PriceFetcher {
	return &XboxFetcher{fetcherBase: newBase(cfg, logger)}
}

func (x *XboxFetcher) Retailer() model.RetailerType { return model.RetailerXbox }

// ExtractID 商店链接末段的12位 bigId，统一大写
func (x *XboxFetcher) ExtractID(urlOrID string) (string, bool) {
	id, ok := extractID(urlOrID, xboxBareID, xboxLink)
	return strings.ToUpper(id), ok
}

type displayCatalogResp struct {
	Products []struct {
		ProductID                string `json:"ProductId"`
		DisplaySkuAvailabilities []struct {
			Availabilities []struct {
				OrderManagementData struct {
					Price struct {
						CurrencyCode string  `json:"CurrencyCode"`
						ListPrice    float64 `json:"ListPrice"`
						MSRP         float64 `json:"MSRP"`
					} `json:"Price"`
				} `json:"OrderManagementData"`
			} `json:"Availabilities"`
		} `json:"DisplaySkuAvailabilities"`
	} `json:"Products"`
}

func (x *XboxFetcher) FetchPrice(ctx context.Context, urlOrID, country string) (*model.FetchedPrice, error) {
	id, ok := x.ExtractID(urlOrID)
	if !ok {
		return nil, errNoID("xbox", urlOrID)
	}
	endpoint := x.endpoint("/v7.0/products?bigIds=%s&market=%s&languages=en-us", id, url.QueryEscape(countryOrDefault(country)))

	var resp displayCatalogResp
	if err := x.req.GetJSON(ctx, endpoint, &resp); err != nil {
		return nil, fmt.Errorf("xbox获取价格失败: %w", err)
	}
	for _, p := range resp.Products {
		for _, sku := range p.DisplaySkuAvailabilities {
			for _, a := range sku.Availabilities {
				price := a.OrderManagementData.Price
				if price.CurrencyCode == "" {
					continue
				}
				amount := money.ToMinor(decimal.NewFromFloat(price.ListPrice), price.CurrencyCode)
				return &model.FetchedPrice{
					AmountMinor: amount,
					Currency:    strings.ToUpper(price.CurrencyCode),
					IsFree:      amount == 0,
					ExternalID:  id,
				}, nil
			}
		}
	}
	return nil, nil
}
