package retailer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"

	"GamePriceSync/internal/adapter"
	"GamePriceSync/internal/config"
	"GamePriceSync/internal/interfaces"
	"GamePriceSync/internal/model"
	"GamePriceSync/internal/money"

	"github.com/sirupsen/logrus"
)

var (
	steamBareID = regexp.MustCompile(`^\d+$`)
	steamLink   = regexp.MustCompile(`/app/(\d+)`)
)

func init() {
	adapter.Register(model.RetailerSteam, NewSteamFetcher)
}

type SteamFetcher struct {
	fetcherBase
}

func NewSteamFetcher(cfg *config.ProviderConfig, logger *logrus.Logger) interfaces.PriceFetcher {
	return &SteamFetcher{fetcherBase: newBase(cfg, logger)}
}

func (s *SteamFetcher) Retailer() model.RetailerType { return model.RetailerSteam }

func (s *SteamFetcher) ExtractID(urlOrID string) (string, bool) {
	return extractID(urlOrID, steamBareID, steamLink)
}

type steamAppDetails struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
}

type steamAppData struct {
	IsFree        bool `json:"is_free"`
	PriceOverview *struct {
		Currency string `json:"currency"`
		Initial  int64  `json:"initial"`
		Final    int64  `json:"final"`
	} `json:"price_overview"`
}

// FetchPrice appdetails 接口，final 即最小货币单位
func (s *SteamFetcher) FetchPrice(ctx context.Context, urlOrID, country string) (*model.FetchedPrice, error) {
	appID, ok := s.ExtractID(urlOrID)
	if !ok {
		return nil, errNoID("steam", urlOrID)
	}
	cc := countryOrDefault(country)
	endpoint := s.endpoint("/api/appdetails?appids=%s&cc=%s&filters=price_overview", url.QueryEscape(appID), url.QueryEscape(cc))

	var resp map[string]steamAppDetails
	if err := s.req.GetJSON(ctx, endpoint, &resp); err != nil {
		return nil, fmt.Errorf("steam获取价格失败: %w", err)
	}
	details, ok := resp[appID]
	if !ok || !details.Success {
		return nil, nil
	}

	// 免费游戏在 filters=price_overview 时 data 为空数组
	raw := bytes.TrimSpace(details.Data)
	if len(raw) == 0 || bytes.Equal(raw, []byte("[]")) {
		code, _ := money.CurrencyForCountry(cc)
		return &model.FetchedPrice{AmountMinor: 0, Currency: code, IsFree: true, ExternalID: appID}, nil
	}
	var data steamAppData
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("steam解析appdetails失败: %w", err)
	}
	if data.PriceOverview == nil {
		if data.IsFree {
			code, _ := money.CurrencyForCountry(cc)
			return &model.FetchedPrice{AmountMinor: 0, Currency: code, IsFree: true, ExternalID: appID}, nil
		}
		return nil, nil
	}
	return &model.FetchedPrice{
		AmountMinor: data.PriceOverview.Final,
		Currency:    data.PriceOverview.Currency,
		ExternalID:  appID,
	}, nil
}
