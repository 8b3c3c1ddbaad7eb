package service

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"

	"GamePriceSync/internal/model"
	"GamePriceSync/internal/normalize"
	"GamePriceSync/internal/repository"

	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
)

// GameDataAggregator 把 title 的多个数据源 payload 归并为评分、评分人数、IGDB 评分与规范平台列表
type GameDataAggregator struct {
	repo   repository.CatalogRepository
	logger *logrus.Logger
}

func NewGameDataAggregator(repo repository.CatalogRepository, logger *logrus.Logger) *GameDataAggregator {
	return &GameDataAggregator{repo: repo, logger: logger}
}

// TitleSummary 聚合结果；nil 字段表示没有数据源给出可用值
type TitleSummary struct {
	TitleID     uint64             `json:"title_id"`
	Rating      *float64           `json:"rating"`
	RatingCount *uint32            `json:"rating_count"`
	IGDBRating  *float64           `json:"igdb_rating"`
	Platforms   []string           `json:"platforms"`
	Sources     int                `json:"sources"`
	PerSource   map[string]float64 `json:"per_source"`
}

func (a *GameDataAggregator) AggregateTitle(ctx context.Context, titleID uint64) error {
	_, err := a.Aggregate(ctx, titleID)
	return err
}

// Aggregate 评分按评分人数加权平均（无人数的数据源权重为1），平台取并集
func (a *GameDataAggregator) Aggregate(ctx context.Context, titleID uint64) (*TitleSummary, error) {
	if _, err := a.repo.GetTitle(ctx, titleID); err != nil {
		return nil, fmt.Errorf("查询 title %d 失败: %w", titleID, err)
	}
	sources, err := a.repo.ListTitleSources(ctx, titleID)
	if err != nil {
		return nil, fmt.Errorf("查询 title %d 数据源失败: %w", titleID, err)
	}

	sum := &TitleSummary{TitleID: titleID, Sources: len(sources), PerSource: map[string]float64{}}
	var (
		weighted, weights float64
		totalCount        uint64
		hasCount          bool
		rawPlatforms      []string
	)
	for _, ts := range sources {
		payload, err := model.ParsePayload(ts.Payload)
		if err != nil {
			a.logger.WithError(err).WithFields(logrus.Fields{"title_id": titleID, "provider": ts.Provider}).Warn("payload 无法解析，跳过该数据源")
			continue
		}

		count, cok := normalize.ExtractCount(normalize.FieldsFrom(payload, normalize.CountFieldsFor(ts.Provider)...))
		if cok {
			hasCount = true
			totalCount += uint64(count)
		}
		if rating, ok := normalize.NormalizeRating(normalize.FieldsFrom(payload, normalize.RatingFieldsFor(ts.Provider)...)); ok {
			w := 1.0
			if cok && count > 0 {
				w = float64(count)
			}
			weighted += rating * w
			weights += w
			sum.PerSource[ts.Provider] = rating
		}
		if ts.Provider == "igdb" && sum.IGDBRating == nil {
			if pct, ok := normalize.IGDBPercentage(normalize.FieldsFrom(payload, normalize.IGDBPercentFields()...)); ok {
				sum.IGDBRating = &pct
			}
		}
		for _, key := range normalize.PlatformFields() {
			if v, ok := payload.Lookup(key); ok {
				rawPlatforms = append(rawPlatforms, normalize.PlatformNames(v)...)
			}
		}
	}

	if weights > 0 {
		r := math.Round(weighted/weights*100) / 100
		sum.Rating = &r
	}
	if hasCount {
		c := uint32(min(totalCount, math.MaxUint32))
		sum.RatingCount = &c
	}
	sum.Platforms = normalize.NormalizeMany(rawPlatforms)
	sort.Strings(sum.Platforms)

	platforms, err := json.Marshal(sum.Platforms)
	if err != nil {
		return nil, err
	}
	if err := a.repo.UpdateTitleAggregates(ctx, titleID, repository.TitleAggregates{
		Rating:      sum.Rating,
		RatingCount: sum.RatingCount,
		IGDBRating:  sum.IGDBRating,
		Platforms:   datatypes.JSON(platforms),
	}); err != nil {
		return nil, fmt.Errorf("写回 title %d 聚合结果失败: %w", titleID, err)
	}
	a.logger.WithFields(logrus.Fields{
		"title_id":  titleID,
		"sources":   sum.Sources,
		"platforms": len(sum.Platforms),
	}).Debug("title 聚合完成")
	return sum, nil
}
