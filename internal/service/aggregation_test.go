package service

import (
	"context"
	"encoding/json"
	"testing"

	"GamePriceSync/internal/model"
	"GamePriceSync/internal/repository"

	"gorm.io/datatypes"
)

func TestGameDataAggregator_WeightedRatingAndPlatforms(t *testing.T) {
	db := newTestDB(t)
	repo := repository.NewCatalogRepository(db)
	ctx := context.Background()

	title := &model.VideoGameTitle{Provider: "igdb", ExternalID: "1942", Name: "Halo"}
	if err := repo.UpsertTitle(ctx, title); err != nil {
		t.Fatal(err)
	}
	sources := []struct {
		provider string
		payload  string
	}{
		{"igdb", `{"total_rating": 90, "total_rating_count": 300, "platforms": [{"name": "PlayStation 5"}, {"name": "Xbox Series X|S"}]}`},
		{"rawg", `{"rating": 3.75, "ratings_count": 100, "platforms": [{"platform": {"name": "PC"}}]}`},
		{"amazon", `{"product_star_rating": "4.0 out of 5 stars"}`},
		{"tgdb", `not json`},
	}
	for _, s := range sources {
		ts := &model.VideoGameTitleSource{VideoGameTitleID: title.ID, Provider: s.provider, Payload: datatypes.JSON(s.payload)}
		if s.provider == "tgdb" {
			ts.Payload = nil
		}
		if err := repo.UpsertTitleSource(ctx, ts); err != nil {
			t.Fatal(err)
		}
	}

	agg := NewGameDataAggregator(repo, quietLogger())
	sum, err := agg.Aggregate(ctx, title.ID)
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	// (4.5*300 + 3.75*100 + 4.0*1) / 401
	if sum.Rating == nil || *sum.Rating != 4.31 {
		t.Fatalf("rating = %v", sum.Rating)
	}
	if sum.RatingCount == nil || *sum.RatingCount != 400 {
		t.Fatalf("rating_count = %v", sum.RatingCount)
	}
	if sum.IGDBRating == nil || *sum.IGDBRating != 90 {
		t.Fatalf("igdb = %v", sum.IGDBRating)
	}
	if sum.Sources != 4 || len(sum.PerSource) != 3 {
		t.Fatalf("sources = %d per_source = %v", sum.Sources, sum.PerSource)
	}

	got, err := repo.GetTitle(ctx, title.ID)
	if err != nil {
		t.Fatal(err)
	}
	var platforms []string
	if err := json.Unmarshal(got.Platforms, &platforms); err != nil {
		t.Fatal(err)
	}
	if len(platforms) != len(sum.Platforms) || len(platforms) < 3 {
		t.Fatalf("platforms = %v", platforms)
	}
	if got.Rating == nil || *got.Rating != 4.31 {
		t.Fatalf("persisted rating = %v", got.Rating)
	}
}

func TestGameDataAggregator_NoUsableValues(t *testing.T) {
	db := newTestDB(t)
	repo := repository.NewCatalogRepository(db)
	ctx := context.Background()

	title := &model.VideoGameTitle{Provider: "rawg", ExternalID: "1", Name: "Empty"}
	if err := repo.UpsertTitle(ctx, title); err != nil {
		t.Fatal(err)
	}
	ts := &model.VideoGameTitleSource{VideoGameTitleID: title.ID, Provider: "rawg", Payload: datatypes.JSON(`{"rating": null}`)}
	if err := repo.UpsertTitleSource(ctx, ts); err != nil {
		t.Fatal(err)
	}

	sum, err := NewGameDataAggregator(repo, quietLogger()).Aggregate(ctx, title.ID)
	if err != nil {
		t.Fatal(err)
	}
	if sum.Rating != nil || sum.RatingCount != nil || sum.IGDBRating != nil {
		t.Fatalf("缺失值不应默认为0: %+v", sum)
	}
	if len(sum.Platforms) != 0 {
		t.Fatalf("platforms = %v", sum.Platforms)
	}

	if _, err := NewGameDataAggregator(repo, quietLogger()).Aggregate(ctx, 999); err == nil {
		t.Fatal("不存在的 title 应报错")
	}
}
