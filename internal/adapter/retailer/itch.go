package retailer

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"GamePriceSync/internal/adapter"
	"GamePriceSync/internal/config"
	"GamePriceSync/internal/interfaces"
	"GamePriceSync/internal/model"
	"GamePriceSync/internal/money"

	"github.com/sirupsen/logrus"
)

var itchLink = regexp.MustCompile(`(?i)^(?:https?://)?([a-z0-9_-]+)\.itch\.io/([a-z0-9_-]+)`)

// itch.io 只以美元标价
const itchCurrency = "USD"

func init() {
	adapter.Register(model.RetailerItch, NewItchFetcher)
}

type ItchFetcher struct {
	fetcherBase
}

func NewItchFetcher(cfg *config.ProviderConfig, logger *logrus.Logger) interfaces.PriceFetcher {
	return &ItchFetcher{fetcherBase: newBase(cfg, logger)}
}

func (i *ItchFetcher) Retailer() model.RetailerType { return model.RetailerItch }

// ExtractID 返回 "<user>/<game>"
func (i *ItchFetcher) ExtractID(urlOrID string) (string, bool) {
	m := itchLink.FindStringSubmatch(strings.TrimSpace(urlOrID))
	if m == nil {
		return "", false
	}
	return strings.ToLower(m[1] + "/" + m[2]), true
}

type itchDataResp struct {
	ID            int64  `json:"id"`
	Title         string `json:"title"`
	Price         string `json:"price"` // "$4.99"，免费游戏没有该字段
	OriginalPrice string `json:"original_price"`
}

func (i *ItchFetcher) dataURL(id string) string {
	parts := strings.SplitN(id, "/", 2)
	// 生产环境用子域名；base_url 指向其他地址（自建镜像/测试）时用路径形式
	if strings.Contains(i.cfg.BaseURL, "itch.io") {
		return fmt.Sprintf("https://%s.itch.io/%s/data.json", parts[0], parts[1])
	}
	return i.endpoint("/%s/%s/data.json", parts[0], parts[1])
}

func (i *ItchFetcher) FetchPrice(ctx context.Context, urlOrID, country string) (*model.FetchedPrice, error) {
	id, ok := i.ExtractID(urlOrID)
	if !ok {
		return nil, errNoID("itch", urlOrID)
	}
	var resp itchDataResp
	if err := i.req.GetJSON(ctx, i.dataURL(id), &resp); err != nil {
		return nil, fmt.Errorf("itch获取价格失败: %w", err)
	}
	if resp.Price == "" {
		return &model.FetchedPrice{AmountMinor: 0, Currency: itchCurrency, IsFree: true, ExternalID: id}, nil
	}
	major, err := money.ParseMajor(resp.Price)
	if err != nil {
		return nil, fmt.Errorf("itch价格格式错误: %w", err)
	}
	amount := money.ToMinor(major, itchCurrency)
	return &model.FetchedPrice{AmountMinor: amount, Currency: itchCurrency, IsFree: amount == 0, ExternalID: id}, nil
}
