// Package retailer 各零售商价格抓取器，init 时注册到 adapter 工厂表
package retailer

import (
	"fmt"
	"regexp"
	"strings"

	"GamePriceSync/internal/config"
	"GamePriceSync/internal/utils/httpclient"

	"github.com/sirupsen/logrus"
)

type fetcherBase struct {
	cfg    *config.ProviderConfig
	logger *logrus.Logger
	req    *httpclient.Requester
}

func newBase(cfg *config.ProviderConfig, logger *logrus.Logger) fetcherBase {
	return fetcherBase{cfg: cfg, logger: logger, req: httpclient.NewRequester(cfg, logger)}
}

func (b fetcherBase) endpoint(format string, args ...interface{}) string {
	return strings.TrimRight(b.cfg.BaseURL, "/") + fmt.Sprintf(format, args...)
}

func countryOrDefault(country string) string {
	country = strings.ToUpper(strings.TrimSpace(country))
	if country == "" {
		return "US"
	}
	return country
}

// extractID 裸ID直接返回，否则按链接正则取第一个分组
func extractID(urlOrID string, bare *regexp.Regexp, link *regexp.Regexp) (string, bool) {
	s := strings.TrimSpace(urlOrID)
	if s == "" {
		return "", false
	}
	if bare != nil && bare.MatchString(s) {
		return s, true
	}
	if m := link.FindStringSubmatch(s); m != nil {
		return m[1], true
	}
	return "", false
}

func errNoID(retailer, urlOrID string) error {
	return fmt.Errorf("无法从%q提取%s商品ID", urlOrID, retailer)
}
