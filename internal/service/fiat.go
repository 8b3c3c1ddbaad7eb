package service

import (
	"context"
	"strings"
)

// CurrencyConverter 最小单位金额换算，价格展示时使用
type CurrencyConverter interface {
	Convert(ctx context.Context, amountMinor int64, from, to string) (int64, error)
}

var _ CurrencyConverter = (*RateService)(nil)

// NoopConverter 未配置汇率服务时使用：只允许同币种
type NoopConverter struct{}

func (NoopConverter) Convert(_ context.Context, amountMinor int64, from, to string) (int64, error) {
	if strings.EqualFold(from, to) || amountMinor <= 0 {
		return amountMinor, nil
	}
	return 0, ErrRateUnavailable
}
