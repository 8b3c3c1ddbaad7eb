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
	amazonBareID = regexp.MustCompile(`^[0-9A-Z]{10}$`)
	amazonLink   = regexp.MustCompile(`/(?:dp|gp/product)/([0-9A-Z]{10})`)
)

func init() {
	adapter.Register(model.RetailerAmazon, NewAmazonFetcher)
}

type AmazonFetcher struct {
	fetcherBase
}

func NewAmazonFetcher(cfg *config.ProviderConfig, logger *logrus.Logger) interfaces.PriceFetcher {
	f := &AmazonFetcher{fetcherBase: newBase(cfg, logger)}
	if cfg.APIKey != "" {
		f.req.Headers["X-Api-Key"] = cfg.APIKey
	}
	return f
}

func (a *AmazonFetcher) Retailer() model.RetailerType { return model.RetailerAmazon }

// ExtractID ASIN 为10位大写字母数字
func (a *AmazonFetcher) ExtractID(urlOrID string) (string, bool) {
	return extractID(urlOrID, amazonBareID, amazonLink)
}

type amazonItemsResp struct {
	ItemsResult struct {
		Items []struct {
			ASIN   string `json:"ASIN"`
			Offers struct {
				Listings []struct {
					Price struct {
						Amount   float64 `json:"Amount"`
						Currency string  `json:"Currency"`
					} `json:"Price"`
				} `json:"Listings"`
			} `json:"Offers"`
		} `json:"Items"`
	} `json:"ItemsResult"`
}

func (a *AmazonFetcher) FetchPrice(ctx context.Context, urlOrID, country string) (*model.FetchedPrice, error) {
	asin, ok := a.ExtractID(urlOrID)
	if !ok {
		return nil, errNoID("amazon", urlOrID)
	}
	endpoint := a.endpoint("/paapi5/getitems?ItemIds=%s&Marketplace=%s&Resources=Offers.Listings.Price", asin, url.QueryEscape(countryOrDefault(country)))

	var resp amazonItemsResp
	if err := a.req.GetJSON(ctx, endpoint, &resp); err != nil {
		return nil, fmt.Errorf("amazon获取价格失败: %w", err)
	}
	for _, item := range resp.ItemsResult.Items {
		if !strings.EqualFold(item.ASIN, asin) {
			continue
		}
		for _, l := range item.Offers.Listings {
			if l.Price.Currency == "" {
				continue
			}
			amount := money.ToMinor(decimal.NewFromFloat(l.Price.Amount), l.Price.Currency)
			return &model.FetchedPrice{
				AmountMinor: amount,
				Currency:    strings.ToUpper(l.Price.Currency),
				IsFree:      amount == 0,
				ExternalID:  asin,
			}, nil
		}
	}
	return nil, nil
}
