package service

import "errors"

var (
	// ErrRateUnavailable 所有汇率来源（含静态近似表）都失败
	ErrRateUnavailable = errors.New("exchange rate unavailable")
	ErrUnknownRetailer = errors.New("unknown retailer")
	ErrNoPriceData     = errors.New("no price data")
	ErrGameNotFound    = errors.New("video game not found")
	// ErrNoIdentity 导入行无法确定 (provider, external_id)
	ErrNoIdentity = errors.New("row has no resolvable identity")
)
