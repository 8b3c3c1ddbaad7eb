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

	"github.com/sirupsen/logrus"
)

var epicLink = regexp.MustCompile(`/p/([a-z0-9][a-z0-9-]*)`)

func init() {
	adapter.Register(model.RetailerEpic, NewEpicFetcher)
}

type EpicFetcher struct {
	fetcherBase
}

func NewEpicFetcher(cfg *config.ProviderConfig, logger *logrus.Logger) interfaces.PriceFetcher {
	return &EpicFetcher{fetcherBase: newBase(cfg, logger)}
}

func (e *EpicFetcher) Retailer() model.RetailerType { return model.RetailerEpic }

// ExtractID 只接受 /p/<slug> 链接，slug 本身没有可区分的格式
func (e *EpicFetcher) ExtractID(urlOrID string) (string, bool) {
	return extractID(strings.ToLower(urlOrID), nil, epicLink)
}

type epicProductResp struct {
	Price *struct {
		TotalPrice struct {
			DiscountPrice int64  `json:"discountPrice"`
			OriginalPrice int64  `json:"originalPrice"`
			CurrencyCode  string `json:"currencyCode"`
		} `json:"totalPrice"`
	} `json:"price"`
}

func (e *EpicFetcher) FetchPrice(ctx context.Context, urlOrID, country string) (*model.FetchedPrice, error) {
	slug, ok := e.ExtractID(urlOrID)
	if !ok {
		return nil, errNoID("epic", urlOrID)
	}
	endpoint := e.endpoint("/api/content/products/%s?country=%s", url.PathEscape(slug), url.QueryEscape(countryOrDefault(country)))

	var resp epicProductResp
	if err := e.req.GetJSON(ctx, endpoint, &resp); err != nil {
		return nil, fmt.Errorf("epic获取价格失败: %w", err)
	}
	if resp.Price == nil || resp.Price.TotalPrice.CurrencyCode == "" {
		return nil, nil
	}
	tp := resp.Price.TotalPrice
	return &model.FetchedPrice{
		AmountMinor: tp.DiscountPrice,
		Currency:    strings.ToUpper(tp.CurrencyCode),
		IsFree:      tp.DiscountPrice == 0,
		ExternalID:  slug,
	}, nil
}
