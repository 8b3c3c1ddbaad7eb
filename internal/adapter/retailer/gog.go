package retailer

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"GamePriceSync/internal/adapter"
	"GamePriceSync/internal/config"
	"GamePriceSync/internal/interfaces"
	"GamePriceSync/internal/model"

	"github.com/sirupsen/logrus"
)

var (
	gogBareID = regexp.MustCompile(`^\d{5,}$`)
	gogLink   = regexp.MustCompile(`(?:/products/|[?&]id=)(\d{5,})`)
)

func init() {
	adapter.Register(model.RetailerGOG, NewGOGFetcher)
}

type GOGFetcher struct {
	fetcherBase
}

func NewGOGFetcher(cfg *config.ProviderConfig, logger *logrus.Logger) interfaces.PriceFetcher {
	return &GOGFetcher{fetcherBase: newBase(cfg, logger)}
}

func (g *GOGFetcher) Retailer() model.RetailerType { return model.RetailerGOG }

func (g *GOGFetcher) ExtractID(urlOrID string) (string, bool) {
	return extractID(urlOrID, gogBareID, gogLink)
}

type gogPricesResp struct {
	Embedded struct {
		Prices []struct {
			Currency struct {
				Code string `json:"code"`
			} `json:"currency"`
			BasePrice  string `json:"basePrice"`
			FinalPrice string `json:"finalPrice"` // "1999 USD"，已是最小单位
		} `json:"prices"`
	} `json:"_embedded"`
}

func (g *GOGFetcher) FetchPrice(ctx context.Context, urlOrID, country string) (*model.FetchedPrice, error) {
	id, ok := g.ExtractID(urlOrID)
	if !ok {
		return nil, errNoID("gog", urlOrID)
	}
	endpoint := g.endpoint("/products/%s/prices?countryCode=%s", id, url.QueryEscape(countryOrDefault(country)))

	var resp gogPricesResp
	if err := g.req.GetJSON(ctx, endpoint, &resp); err != nil {
		return nil, fmt.Errorf("gog获取价格失败: %w", err)
	}
	if len(resp.Embedded.Prices) == 0 {
		return nil, nil
	}
	p := resp.Embedded.Prices[0]
	fields := strings.Fields(p.FinalPrice)
	if len(fields) == 0 {
		return nil, nil
	}
	amount, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("gog价格格式错误 %q: %w", p.FinalPrice, err)
	}
	code := p.Currency.Code
	if code == "" && len(fields) > 1 {
		code = fields[1]
	}
	return &model.FetchedPrice{AmountMinor: amount, Currency: strings.ToUpper(code), IsFree: amount == 0, ExternalID: id}, nil
}
