package service

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"GamePriceSync/internal/config"
	"GamePriceSync/internal/metrics"
	"GamePriceSync/internal/model"
	"GamePriceSync/internal/repository"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"gorm.io/gorm"
)

func writeCSV(t *testing.T, dir, name string, lines ...string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(strings.Join(lines, "\n")+"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
}

func count(t *testing.T, db *gorm.DB, m interface{}) int64 {
	t.Helper()
	var n int64
	if err := db.Model(m).Count(&n).Error; err != nil {
		t.Fatal(err)
	}
	return n
}

type importFixture struct {
	db      *gorm.DB
	repo    repository.CatalogRepository
	svc     *ImportService
	metrics *metrics.Metrics
}

func newImportFixture(t *testing.T, batch int) *importFixture {
	t.Helper()
	db := newTestDB(t)
	repo := repository.NewCatalogRepository(db)
	m := metrics.New(prometheus.NewRegistry())
	agg := NewGameDataAggregator(repo, quietLogger())
	svc := NewImportService(repo, agg, config.ImportConfig{BatchSize: batch, AggregateTitles: true}, m, quietLogger())
	return &importFixture{db: db, repo: repo, svc: svc, metrics: m}
}

func writeCatalogFixture(t *testing.T, dir string) {
	writeCSV(t, dir, "sources.csv",
		"id,provider,name,kind",
		"1,IGDB,IGDB,catalog",
		"2,rawg,RAWG,catalog",
	)
	writeCSV(t, dir, "video_games.csv",
		"id,provider,external_id,name,platform,video_game_title_id",
		"11,igdb,g-1,Halo,PC,5",
		",,,No Identity,PC,",
	)
	writeCSV(t, dir, "video_game_titles.csv",
		"id,name,product_id",
		"5,Halo: Combat Evolved,3",
	)
	writeCSV(t, dir, "video_game_title_sources.csv",
		"id,video_game_title_id,provider,payload",
		`9,5,rawg,"{""id"":77,""rating"":4.2,""ratings_count"":100,""platforms"":[""PC"",""PS4""]}"`,
		`10,5,,"{""total_rating"":80,""total_rating_count"":50}"`,
		`11,99,rawg,"{}"`,
	)
	writeCSV(t, dir, "products.csv",
		"id,name,external_ids",
		`3,Halo,"{""igdb"":1942,""steam"":""""}"`,
	)
	writeCSV(t, dir, "video_game_prices.csv",
		"video_game_id,retailer,country_code,currency,price,url",
		"11,Steam Store,US,USD,19.99,https://store.steampowered.com/app/1",
		"11,gog,GB,,,https://www.gog.com/game/halo",
		"11,humble,US,USD,5,https://humble/x",
		"404,steam,US,USD,1,https://store.steampowered.com/app/2",
	)
	writeCSV(t, dir, "media.csv",
		"id,owner_type,owner_id,url,kind",
		"1,title,5,https://img/cover.png,cover",
	)
	writeCSV(t, dir, "users.csv",
		"id,email,name",
		"1,Alice@Example.COM,Alice",
		"2,not-an-email,Bob",
	)
	writeCSV(t, dir, "currencies.csv",
		"code,decimals,symbol,is_crypto",
		"usd,,,",
		"BTC,8,,true",
		"toolong1,,,",
	)
}

func TestImportService_EndToEnd(t *testing.T) {
	f := newImportFixture(t, 500)
	dir := t.TempDir()
	writeCatalogFixture(t, dir)
	// 主文件中缺 provider 的行会被跳过，igdb 数据由文件名上下文提供
	writeCSV(t, dir, "video_game_title_sources.igdb.csv",
		"id,video_game_title_id,payload",
		`12,5,"{""total_rating"":80,""total_rating_count"":50}"`,
	)

	ctx := context.Background()
	report, err := f.svc.Run(ctx, dir)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	titleID, ok := report.Resolve(model.EntityTitle, "igdb", "1942")
	if !ok {
		t.Fatal("(title, igdb, 1942) 应解析到 title")
	}
	var title model.VideoGameTitle
	if err := f.db.First(&title, titleID).Error; err != nil {
		t.Fatal(err)
	}
	if title.Name != "Halo: Combat Evolved" || title.Slug != "halo-combat-evolved" {
		t.Fatalf("title = %+v", title)
	}
	productID, ok := report.Resolve(model.EntityProduct, "igdb", "1942")
	if !ok || title.ProductID == nil || *title.ProductID != productID {
		t.Fatalf("title.product_id = %v, product = %d", title.ProductID, productID)
	}
	if report.TitlesLinked != 1 || report.GamesLinked != 1 {
		t.Fatalf("linked titles=%d games=%d", report.TitlesLinked, report.GamesLinked)
	}

	gameID, ok := report.Resolve(model.EntityGame, "igdb", "g-1")
	if !ok {
		t.Fatal("game 未登记")
	}
	var game model.VideoGame
	f.db.First(&game, gameID)
	if game.VideoGameTitleID == nil || *game.VideoGameTitleID != titleID {
		t.Fatalf("game.video_game_title_id = %v", game.VideoGameTitleID)
	}

	games := report.Stage(StageGames)
	if games.Imported != 1 || games.Skipped != 1 {
		t.Fatalf("games stage = %+v", games)
	}

	ts := report.Stage(StageTitleSources)
	if ts.Imported != 2 || ts.Skipped != 1 || ts.Failed != 1 || len(ts.Files) != 2 {
		t.Fatalf("title_sources stage = %+v", ts)
	}
	if len(ts.Errors) != 1 || ts.Errors[0].Line != 4 {
		t.Fatalf("row errors = %+v", ts.Errors)
	}

	if report.Aggregated != 1 {
		t.Fatalf("aggregated = %d (%v)", report.Aggregated, report.AggregateErrors)
	}
	if title.Rating == nil || *title.Rating != 4.13 {
		t.Fatalf("rating = %v", title.Rating)
	}
	if title.RatingCount == nil || *title.RatingCount != 150 {
		t.Fatalf("rating_count = %v", title.RatingCount)
	}
	if title.IGDBRating == nil || *title.IGDBRating != 80 {
		t.Fatalf("igdb_rating = %v", title.IGDBRating)
	}
	if !strings.Contains(string(title.Platforms), "PC") || !strings.Contains(string(title.Platforms), "PlayStation 4") {
		t.Fatalf("platforms = %s", title.Platforms)
	}

	prices := report.Stage(StagePrices)
	if prices.Imported != 2 || prices.Failed != 2 {
		t.Fatalf("prices stage = %+v", prices)
	}
	pr := repository.NewPriceRepository(f.db)
	steam, _ := pr.FindActivePrice(ctx, gameID, "steam", "US")
	if steam == nil || steam.AmountMinor != 1999 {
		t.Fatalf("steam price = %+v", steam)
	}
	gog, _ := pr.FindActivePrice(ctx, gameID, "gog", "GB")
	if gog == nil || gog.AmountMinor != model.PriceUnknown || gog.Currency != "GBP" {
		t.Fatalf("gog price = %+v", gog)
	}

	if st := report.Stage(StageUsers); st.Imported != 1 || st.Skipped != 1 {
		t.Fatalf("users stage = %+v", st)
	}
	var user model.User
	f.db.First(&user)
	if user.Email != "alice@example.com" {
		t.Fatalf("email = %q", user.Email)
	}
	var btc model.Currency
	f.db.Where("code = ?", "BTC").First(&btc)
	if btc.Decimals != 8 || !btc.IsCrypto {
		t.Fatalf("btc = %+v", btc)
	}
	if count(t, f.db, &model.Media{}) != 1 {
		t.Fatal("media 应导入1行")
	}
	if got := testutil.ToFloat64(f.metrics.ImportRows.WithLabelValues("prices", "failed")); got != 2 {
		t.Fatalf("import failed metric = %v", got)
	}
}

func TestImportService_RerunIsIdempotent(t *testing.T) {
	f := newImportFixture(t, 2)
	dir := t.TempDir()
	writeCatalogFixture(t, dir)
	ctx := context.Background()

	first, err := f.svc.Run(ctx, dir)
	if err != nil {
		t.Fatal(err)
	}
	counts := func() []int64 {
		return []int64{
			count(t, f.db, &model.VideoGameSource{}),
			count(t, f.db, &model.VideoGame{}),
			count(t, f.db, &model.VideoGameTitle{}),
			count(t, f.db, &model.VideoGameTitleSource{}),
			count(t, f.db, &model.Product{}),
			count(t, f.db, &model.PriceRecord{}),
			count(t, f.db, &model.Media{}),
			count(t, f.db, &model.User{}),
			count(t, f.db, &model.Currency{}),
		}
	}
	before := counts()

	second, err := f.svc.Run(ctx, dir)
	if err != nil {
		t.Fatal(err)
	}
	after := counts()
	for i := range before {
		if before[i] != after[i] {
			t.Fatalf("第二次导入后行数变化: %v → %v", before, after)
		}
	}
	if first.RunID == second.RunID {
		t.Fatal("每次运行的 run_id 应不同")
	}
	a, _ := first.Resolve(model.EntityTitle, "igdb", "1942")
	b, _ := second.Resolve(model.EntityTitle, "igdb", "1942")
	if a == 0 || a != b {
		t.Fatalf("两次导入的 title ID 不一致: %d vs %d", a, b)
	}
}

func TestImportService_MissingFilesAndFileContext(t *testing.T) {
	f := newImportFixture(t, 10)
	dir := t.TempDir()
	writeCSV(t, dir, "video_games.steam.csv",
		"external_id,name",
		"620,Portal 2",
	)

	report, err := f.svc.Run(context.Background(), dir)
	if err != nil {
		t.Fatal(err)
	}
	if st := report.Stage(StageSources); !st.Missing {
		t.Fatalf("sources stage should be missing: %+v", st)
	}
	if st := report.Stage(StageGames); st.Missing || st.Imported != 1 {
		t.Fatalf("games stage = %+v", st)
	}
	if _, ok := report.Resolve(model.EntityGame, "steam", "620"); !ok {
		t.Fatal("文件名上下文 provider 应为 steam")
	}

	if _, err := f.svc.Run(context.Background(), filepath.Join(dir, "nope")); err == nil {
		t.Fatal("不存在的目录应报错")
	}
}

func TestImportService_FileLevelParseErrorKeepsCommittedBatches(t *testing.T) {
	f := newImportFixture(t, 2)
	dir := t.TempDir()
	writeCSV(t, dir, "video_games.csv",
		"id,provider,external_id,name",
		"1,igdb,a,A",
		"2,igdb,b,B",
		"3,igdb,c,C",
		`4,igdb,d,"broken`,
	)
	writeCSV(t, dir, "users.csv",
		"email",
		"x@y.z",
	)

	report, err := f.svc.Run(context.Background(), dir)
	if err != nil {
		t.Fatal(err)
	}
	st := report.Stage(StageGames)
	if st.Imported != 2 || st.Failed != 1 || len(st.FileErrors) != 1 {
		t.Fatalf("games stage = %+v", st)
	}
	if n := count(t, f.db, &model.VideoGame{}); n != 2 {
		t.Fatalf("games rows = %d, want 2", n)
	}
	if _, ok := report.Resolve(model.EntityGame, "igdb", "c"); ok {
		t.Fatal("未提交的行不应登记身份")
	}
	if st := report.Stage(StageUsers); st.Imported != 1 {
		t.Fatalf("后续阶段应继续执行: %+v", st)
	}
}

func TestImportService_RowFailureRollsBackOnlyThatRow(t *testing.T) {
	f := newImportFixture(t, 10)
	dir := t.TempDir()
	writeCSV(t, dir, "video_games.csv",
		"id,provider,external_id,name,video_game_title_id",
		"1,igdb,a,A,",
		"2,igdb,b,B,not-a-number",
		"3,igdb,c,C,",
	)

	report, err := f.svc.Run(context.Background(), dir)
	if err != nil {
		t.Fatal(err)
	}
	st := report.Stage(StageGames)
	if st.Imported != 2 || st.Failed != 1 {
		t.Fatalf("games stage = %+v", st)
	}
	if st.Errors[0].Line != 3 || st.Errors[0].Key != "igdb:b" {
		t.Fatalf("row error = %+v", st.Errors[0])
	}
	if n := count(t, f.db, &model.VideoGame{}); n != 2 {
		t.Fatalf("games rows = %d", n)
	}
}

func TestImportService_ProductLegacyIDDoesNotShadowTitle(t *testing.T) {
	f := newImportFixture(t, 10)
	dir := t.TempDir()
	writeCSV(t, dir, "video_game_titles.csv",
		"id,provider,external_id,name,product_id",
		"1,igdb,t-1,Title One,",
		"5,igdb,t-5,Title Five,1",
	)
	// product 无 external_ids，主身份回落到 legacy_main:1
	writeCSV(t, dir, "products.csv",
		"id,name",
		"1,Product For Title Five",
	)
	writeCSV(t, dir, "media.csv",
		"id,owner_type,owner_id,url,kind",
		"1,title,1,https://img/one.png,cover",
	)

	report, err := f.svc.Run(context.Background(), dir)
	if err != nil {
		t.Fatal(err)
	}
	one, ok1 := report.Resolve(model.EntityTitle, "igdb", "t-1")
	five, ok5 := report.Resolve(model.EntityTitle, "igdb", "t-5")
	if !ok1 || !ok5 || one == five {
		t.Fatalf("titles one=%d five=%d", one, five)
	}
	if got, _ := report.Resolve(model.EntityTitle, model.ProviderLegacyMain, "1"); got != one {
		t.Fatalf("(title, legacy_main, 1) = %d, want %d", got, one)
	}
	var media model.Media
	if err := f.db.First(&media).Error; err != nil {
		t.Fatal(err)
	}
	if media.OwnerID != one {
		t.Fatalf("media owner = %d, want title %d", media.OwnerID, one)
	}
	var titleFive model.VideoGameTitle
	f.db.First(&titleFive, five)
	if titleFive.ProductID == nil {
		t.Fatal("title 5 应关联 product 1")
	}
}
