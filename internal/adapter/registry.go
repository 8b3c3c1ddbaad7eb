package adapter

import (
	"GamePriceSync/internal/config"
	"GamePriceSync/internal/interfaces"
	"GamePriceSync/internal/model"
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"
)

// RetailerRegistry 零售商类型 → 抓取器实例
type RetailerRegistry struct {
	logger   *logrus.Logger
	fetchers map[model.RetailerType]interfaces.PriceFetcher
}

// NewRetailerRegistry 按配置中的零售商从工厂注册表创建抓取器实例
func NewRetailerRegistry(retailers map[string]config.ProviderConfig, logger *logrus.Logger) *RetailerRegistry {
	r := &RetailerRegistry{
		logger:   logger,
		fetchers: make(map[model.RetailerType]interfaces.PriceFetcher),
	}

	for name, cfg := range retailers {
		retailerType, ok := model.ParseRetailer(name)
		if !ok {
			logger.WithField("retailer", name).Warn("未知零售商配置，跳过")
			continue
		}
		factory, ok := GetFactory(retailerType)
		if !ok {
			logger.WithField("retailer", retailerType).Error("未找到对应的工厂函数（init未注册？）")
			continue
		}
		retailerCfg := cfg
		fetcher := factory(&retailerCfg, logger)
		if fetcher == nil {
			logger.WithField("retailer", retailerType).Error("工厂函数返回nil抓取器")
			continue
		}
		if fetcher.Retailer() != retailerType {
			logger.WithFields(logrus.Fields{
				"config_retailer":  retailerType,
				"fetcher_retailer": fetcher.Retailer(),
			}).Error("抓取器零售商类型与配置不匹配")
			continue
		}
		r.fetchers[retailerType] = fetcher
	}

	logger.WithField("retailers", r.List()).Info("零售商抓取器初始化完成")
	return r
}

// NewRetailerRegistryFrom 直接用已有抓取器构建（测试、自定义装配）
func NewRetailerRegistryFrom(logger *logrus.Logger, fetchers ...interfaces.PriceFetcher) *RetailerRegistry {
	r := &RetailerRegistry{logger: logger, fetchers: make(map[model.RetailerType]interfaces.PriceFetcher)}
	for _, f := range fetchers {
		r.fetchers[f.Retailer()] = f
	}
	return r
}

// Get 按零售商名称/slug精确匹配抓取器
func (r *RetailerRegistry) Get(name string) (interfaces.PriceFetcher, error) {
	retailerType, ok := model.ParseRetailer(name)
	if !ok {
		return nil, fmt.Errorf("未知零售商: %s", name)
	}
	f, ok := r.fetchers[retailerType]
	if !ok {
		return nil, fmt.Errorf("零售商%s未初始化抓取器", retailerType)
	}
	return f, nil
}

// List 已初始化的零售商（有序）
func (r *RetailerRegistry) List() []model.RetailerType {
	out := make([]model.RetailerType, 0, len(r.fetchers))
	for t := range r.fetchers {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
