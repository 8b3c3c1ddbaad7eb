package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"GamePriceSync/internal/config"
	"GamePriceSync/internal/identity"
	"GamePriceSync/internal/metrics"
	"GamePriceSync/internal/model"
	"GamePriceSync/internal/money"
	"GamePriceSync/internal/repository"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
)

// ImportStage 导入阶段，顺序固定：后面的阶段依赖前面阶段登记的身份映射
type ImportStage string

const (
	StageSources      ImportStage = "sources"
	StageGames        ImportStage = "games"
	StageTitles       ImportStage = "titles"
	StageTitleSources ImportStage = "title_sources"
	StageProducts     ImportStage = "products"
	StagePrices       ImportStage = "prices"
	StageMedia        ImportStage = "media"
	StageUsers        ImportStage = "users"
	StageCurrencies   ImportStage = "currencies"
)

// blobProviders external_ids 中按此顺序取第一个非空值作为主身份
var blobProviders = []string{"igdb", "giantbomb", "rawg", "tgdb", "steam", "mobygames", "pricecharting"}

const maxRowErrors = 200

// TitleAggregator 导入 title_sources 后重新聚合 title 的评分与平台
type TitleAggregator interface {
	AggregateTitle(ctx context.Context, titleID uint64) error
}

// ImportService CSV 导入：分阶段、分批事务、每行独立 savepoint
type ImportService struct {
	repo       repository.CatalogRepository
	aggregator TitleAggregator
	cfg        config.ImportConfig
	metrics    *metrics.Metrics
	logger     *logrus.Logger
	now        func() time.Time

	// 同一实例上的导入串行执行，身份映射不跨运行共享
	mu sync.Mutex
}

func NewImportService(repo repository.CatalogRepository, aggregator TitleAggregator, cfg config.ImportConfig, m *metrics.Metrics, logger *logrus.Logger) *ImportService {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 500
	}
	return &ImportService{
		repo:       repo,
		aggregator: aggregator,
		cfg:        cfg,
		metrics:    m,
		logger:     logger,
		now:        time.Now,
	}
}

// RowError 可据此手工重试的行级错误
type RowError struct {
	File    string `json:"file"`
	Line    int    `json:"line"`
	Key     string `json:"key,omitempty"`
	Message string `json:"message"`
}

type StageReport struct {
	Stage      ImportStage `json:"stage"`
	Files      []string    `json:"files"`
	Missing    bool        `json:"missing"`
	Read       int         `json:"read"`
	Imported   int         `json:"imported"`
	Skipped    int         `json:"skipped"`
	Failed     int         `json:"failed"`
	Errors     []RowError  `json:"errors,omitempty"`
	FileErrors []string    `json:"file_errors,omitempty"`
}

func (st *StageReport) addError(e RowError) {
	if len(st.Errors) < maxRowErrors {
		st.Errors = append(st.Errors, e)
	}
}

// ImportReport 一次导入的汇总；身份映射随报告返回，供调用方按外部ID查内部ID
type ImportReport struct {
	RunID           string         `json:"run_id"`
	Dir             string         `json:"dir"`
	StartedAt       time.Time      `json:"started_at"`
	FinishedAt      time.Time      `json:"finished_at"`
	Stages          []*StageReport `json:"stages"`
	GamesLinked     int64          `json:"games_linked"`
	TitlesLinked    int64          `json:"titles_linked"`
	Aggregated      int            `json:"aggregated"`
	AggregateErrors []string       `json:"aggregate_errors,omitempty"`

	ids *identity.Map
}

// Resolve 本次导入登记的 (类型, 数据源, 外部ID) → 内部ID
func (r *ImportReport) Resolve(entity model.EntityType, provider, externalID string) (uint64, bool) {
	if r == nil || r.ids == nil {
		return 0, false
	}
	return r.ids.Get(entity, provider, externalID)
}

func (r *ImportReport) Stage(stage ImportStage) *StageReport {
	for _, st := range r.Stages {
		if st.Stage == stage {
			return st
		}
	}
	return nil
}

// importRun 单次导入的全部状态
type importRun struct {
	id     string
	ids    *identity.Map
	report *ImportReport
	logger *logrus.Entry

	sourceProviders      map[uint64]string // legacy source id → provider
	legacyTitles         map[uint64]uint64 // legacy title id → title id
	legacyProducts       map[uint64]uint64 // legacy product id → product id
	titleByLegacyProduct map[uint64]uint64 // legacy product id → title id
	touchedTitles        map[uint64]struct{}
}

type alias struct {
	provider   string
	externalID string
}

// rowIdentity 一行的主身份、legacy ID 与 external_ids 中的全部别名
type rowIdentity struct {
	provider   string
	externalID string
	legacyID   *uint64
	aliases    []alias
	blob       model.Payload
}

func (id rowIdentity) String() string {
	return id.provider + ":" + id.externalID
}

func (run *importRun) register(entity model.EntityType, ident rowIdentity, internalID uint64) {
	if ident.provider != "" && ident.externalID != "" {
		run.ids.Put(entity, ident.provider, ident.externalID, internalID)
	}
	for _, a := range ident.aliases {
		run.ids.Put(entity, a.provider, a.externalID, internalID)
	}
	if ident.legacyID != nil {
		run.ids.Put(entity, model.ProviderLegacyMain, strconv.FormatUint(*ident.legacyID, 10), internalID)
	}
}

func (run *importRun) lookupLegacy(entity model.EntityType, legacyID uint64) (uint64, bool) {
	return run.ids.Get(entity, model.ProviderLegacyMain, strconv.FormatUint(legacyID, 10))
}

// rowOutcome skip 非空表示跳过；commit 在批次提交成功后更新运行状态
type rowOutcome struct {
	skip   string
	key    string
	commit func()
}

func skipRow(reason string) (rowOutcome, error) {
	return rowOutcome{skip: reason}, nil
}

type rowHandler func(ctx context.Context, tx repository.CatalogRepository, run *importRun, src stageFile, row csvRow) (rowOutcome, error)

type stageDef struct {
	stage  ImportStage
	file   string
	handle rowHandler
	after  func(ctx context.Context, run *importRun)
}

func (s *ImportService) stages() []stageDef {
	return []stageDef{
		{stage: StageSources, file: "sources", handle: s.importSource},
		{stage: StageGames, file: "video_games", handle: s.importGame},
		{stage: StageTitles, file: "video_game_titles", handle: s.importTitle, after: s.linkGames},
		{stage: StageTitleSources, file: "video_game_title_sources", handle: s.importTitleSource, after: s.aggregateTitles},
		{stage: StageProducts, file: "products", handle: s.importProduct, after: s.linkProducts},
		{stage: StagePrices, file: "video_game_prices", handle: s.importPrice},
		{stage: StageMedia, file: "media", handle: s.importMedia},
		{stage: StageUsers, file: "users", handle: s.importUser},
		{stage: StageCurrencies, file: "currencies", handle: s.importCurrency},
	}
}

// Run 按固定阶段顺序导入 dir 下的 CSV；dir 为空时使用配置目录
// 文件级错误只中止该文件，后续文件与阶段照常执行
func (s *ImportService) Run(ctx context.Context, dir string) (*ImportReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if dir == "" {
		dir = s.cfg.Dir
	}
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("导入目录不可用 %s: %w", dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("导入路径不是目录: %s", dir)
	}

	runID := uuid.NewString()
	ids := identity.New()
	ids.Clear()
	run := &importRun{
		id:                   runID,
		ids:                  ids,
		logger:               s.logger.WithField("run_id", runID),
		sourceProviders:      make(map[uint64]string),
		legacyTitles:         make(map[uint64]uint64),
		legacyProducts:       make(map[uint64]uint64),
		titleByLegacyProduct: make(map[uint64]uint64),
		touchedTitles:        make(map[uint64]struct{}),
		report:               &ImportReport{RunID: runID, Dir: dir, StartedAt: s.now().UTC(), ids: ids},
	}
	run.logger.WithField("dir", dir).Info("开始导入")

	for _, def := range s.stages() {
		if err := ctx.Err(); err != nil {
			run.report.FinishedAt = s.now().UTC()
			return run.report, err
		}
		st := &StageReport{Stage: def.stage}
		run.report.Stages = append(run.report.Stages, st)
		log := run.logger.WithField("stage", def.stage)

		files, err := discoverFiles(dir, def.file)
		if err != nil {
			st.FileErrors = append(st.FileErrors, err.Error())
			log.WithError(err).Error("查找导入文件失败")
			continue
		}
		if len(files) == 0 {
			st.Missing = true
			log.WithField("file", def.file+".csv").Info("导入文件不存在，跳过该阶段")
			continue
		}
		for _, f := range files {
			st.Files = append(st.Files, f.name())
			if err := s.importFile(ctx, run, def, f, st); err != nil {
				st.FileErrors = append(st.FileErrors, fmt.Sprintf("%s: %v", f.name(), err))
				log.WithError(err).WithField("file", f.name()).Error("文件导入中止")
			}
		}
		if def.after != nil {
			def.after(ctx, run)
		}
		s.metrics.ObserveImport(string(def.stage), "imported", st.Imported)
		s.metrics.ObserveImport(string(def.stage), "skipped", st.Skipped)
		s.metrics.ObserveImport(string(def.stage), "failed", st.Failed)
		log.WithFields(logrus.Fields{
			"read":     st.Read,
			"imported": st.Imported,
			"skipped":  st.Skipped,
			"failed":   st.Failed,
		}).Info("阶段导入完成")
	}

	run.report.FinishedAt = s.now().UTC()
	run.logger.WithField("identities", ids.Len()).Info("导入完成")
	return run.report, nil
}

// importFile 流式读取，凑满 batch_size 提交一次
func (s *ImportService) importFile(ctx context.Context, run *importRun, def stageDef, f stageFile, st *StageReport) error {
	batch := make([]csvRow, 0, s.cfg.BatchSize)
	err := readCSV(f.path, func(row csvRow) error {
		st.Read++
		batch = append(batch, row)
		if len(batch) < s.cfg.BatchSize {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		s.flush(ctx, run, def, f, st, batch)
		batch = batch[:0]
		return nil
	})
	if err != nil {
		// 未提交的残留行随文件一起放弃
		st.Failed += len(batch)
		return err
	}
	if len(batch) > 0 {
		s.flush(ctx, run, def, f, st, batch)
	}
	return nil
}

// flush 一个批次一个事务，每行嵌套事务（savepoint），单行失败只回滚该行
func (s *ImportService) flush(ctx context.Context, run *importRun, def stageDef, f stageFile, st *StageReport, rows []csvRow) {
	var (
		commits  []func()
		imported int
		skipped  int
		failed   []RowError
	)
	err := s.repo.Transaction(ctx, func(tx repository.CatalogRepository) error {
		for _, row := range rows {
			var out rowOutcome
			rerr := tx.Transaction(ctx, func(rtx repository.CatalogRepository) error {
				var err error
				out, err = def.handle(ctx, rtx, run, f, row)
				return err
			})
			fields := logrus.Fields{"stage": def.stage, "file": row.file, "line": row.line, "legacy_id": row.get("id")}
			switch {
			case rerr != nil:
				failed = append(failed, RowError{File: row.file, Line: row.line, Key: out.key, Message: rerr.Error()})
				run.logger.WithError(rerr).WithFields(fields).Warn("导入行失败，已跳过")
			case out.skip != "":
				skipped++
				run.logger.WithFields(fields).Warn("导入行被跳过: " + out.skip)
			default:
				imported++
				if out.commit != nil {
					commits = append(commits, out.commit)
				}
			}
		}
		return nil
	})
	if err != nil {
		st.Failed += len(rows)
		st.addError(RowError{File: f.name(), Line: rows[0].line, Message: fmt.Sprintf("批次提交失败: %v", err)})
		run.logger.WithError(err).WithFields(logrus.Fields{
			"stage":      def.stage,
			"file":       f.name(),
			"first_line": rows[0].line,
			"rows":       len(rows),
		}).Error("批次事务提交失败，整批回滚")
		return
	}
	for _, c := range commits {
		c()
	}
	st.Imported += imported
	st.Skipped += skipped
	st.Failed += len(failed)
	for _, e := range failed {
		st.addError(e)
	}
}

// resolveIdentity provider+external_id（列或文件名上下文）→ external_ids 首个非空 → legacy_main+id
func resolveIdentity(src stageFile, row csvRow) (rowIdentity, error) {
	legacy, err := row.id("id")
	if err != nil {
		return rowIdentity{}, err
	}
	ident := rowIdentity{legacyID: legacy}
	if raw := row.get("external_ids"); raw != "" {
		blob, err := model.ParsePayload([]byte(raw))
		if err != nil {
			return rowIdentity{}, fmt.Errorf("external_ids: %w", err)
		}
		ident.blob = blob
		for _, p := range blobProviders {
			if v := blob.String(p); v != "" {
				ident.aliases = append(ident.aliases, alias{provider: p, externalID: v})
			}
		}
	}

	provider := strings.ToLower(row.get("provider"))
	if provider == "" {
		provider = src.provider
	}
	if ext := row.get("external_id"); provider != "" && ext != "" {
		ident.provider, ident.externalID = provider, ext
		return ident, nil
	}
	if len(ident.aliases) > 0 {
		ident.provider, ident.externalID = ident.aliases[0].provider, ident.aliases[0].externalID
		return ident, nil
	}
	if legacy != nil {
		ident.provider, ident.externalID = model.ProviderLegacyMain, strconv.FormatUint(*legacy, 10)
		return ident, nil
	}
	return ident, ErrNoIdentity
}

var nonSlug = regexp.MustCompile(`[^a-z0-9]+`)

func slugify(s string) string {
	return strings.Trim(nonSlug.ReplaceAllString(strings.ToLower(s), "-"), "-")
}

func (s *ImportService) importSource(ctx context.Context, tx repository.CatalogRepository, run *importRun, _ stageFile, row csvRow) (rowOutcome, error) {
	legacy, err := row.id("id")
	if err != nil {
		return rowOutcome{}, err
	}
	provider := slugify(row.get("provider"))
	if provider == "" {
		provider = slugify(row.get("name"))
	}
	if provider == "" {
		return skipRow("缺少 provider")
	}
	src := &model.VideoGameSource{
		Provider: provider,
		Name:     row.get("name"),
		Kind:     row.get("kind"),
		BaseURL:  row.get("base_url"),
		LegacyID: legacy,
	}
	if src.Name == "" {
		src.Name = provider
	}
	if err := tx.UpsertSource(ctx, src); err != nil {
		return rowOutcome{key: provider}, err
	}
	ident := rowIdentity{provider: provider, externalID: provider, legacyID: legacy}
	return rowOutcome{key: provider, commit: func() {
		run.register(model.EntitySource, ident, src.ID)
		if legacy != nil {
			run.sourceProviders[*legacy] = provider
		}
	}}, nil
}

func (s *ImportService) importGame(ctx context.Context, tx repository.CatalogRepository, run *importRun, src stageFile, row csvRow) (rowOutcome, error) {
	ident, err := resolveIdentity(src, row)
	if errors.Is(err, ErrNoIdentity) {
		return skipRow("无法确定 game 身份")
	}
	if err != nil {
		return rowOutcome{}, err
	}
	legacyTitle, err := row.id("video_game_title_id")
	if err != nil {
		return rowOutcome{key: ident.String()}, err
	}
	g := &model.VideoGame{
		Provider:      ident.provider,
		ExternalID:    ident.externalID,
		LegacyID:      ident.legacyID,
		LegacyTitleID: legacyTitle,
		Name:          row.get("name"),
		Platform:      row.get("platform"),
		ReleaseDate:   row.timestamp("release_date"),
	}
	if err := tx.UpsertGame(ctx, g); err != nil {
		return rowOutcome{key: ident.String()}, err
	}
	return rowOutcome{key: ident.String(), commit: func() { run.register(model.EntityGame, ident, g.ID) }}, nil
}

func (s *ImportService) importTitle(ctx context.Context, tx repository.CatalogRepository, run *importRun, src stageFile, row csvRow) (rowOutcome, error) {
	ident, err := resolveIdentity(src, row)
	if errors.Is(err, ErrNoIdentity) {
		return skipRow("无法确定 title 身份")
	}
	if err != nil {
		return rowOutcome{}, err
	}
	legacyProduct, err := row.id("product_id")
	if err != nil {
		return rowOutcome{key: ident.String()}, err
	}
	name := row.get("name")
	if name == "" {
		return skipRow("title 缺少 name")
	}
	slug := row.get("slug")
	if slug == "" {
		slug = slugify(name)
	}
	t := &model.VideoGameTitle{
		Provider:        ident.provider,
		ExternalID:      ident.externalID,
		Name:            name,
		Slug:            slug,
		LegacyID:        ident.legacyID,
		LegacyProductID: legacyProduct,
	}
	if err := tx.UpsertTitle(ctx, t); err != nil {
		return rowOutcome{key: ident.String()}, err
	}
	return rowOutcome{key: ident.String(), commit: func() {
		run.register(model.EntityTitle, ident, t.ID)
		if ident.legacyID != nil {
			run.legacyTitles[*ident.legacyID] = t.ID
		}
		if legacyProduct != nil {
			run.titleByLegacyProduct[*legacyProduct] = t.ID
		}
	}}, nil
}

// linkGames games 先于 titles 导入，这里按 legacy_title_id 回填
func (s *ImportService) linkGames(ctx context.Context, run *importRun) {
	if len(run.legacyTitles) == 0 {
		return
	}
	n, err := s.repo.LinkGamesToTitles(ctx, run.legacyTitles)
	run.report.GamesLinked += n
	if err != nil {
		run.logger.WithError(err).Error("回填 games → titles 失败")
		return
	}
	run.logger.Infof("回填 games → titles %d 行", n)
}

func (s *ImportService) importTitleSource(ctx context.Context, tx repository.CatalogRepository, run *importRun, src stageFile, row csvRow) (rowOutcome, error) {
	legacyTitle, err := row.id("video_game_title_id")
	if err != nil {
		return rowOutcome{}, err
	}
	if legacyTitle == nil {
		return skipRow("缺少 video_game_title_id")
	}
	titleID, ok := run.lookupLegacy(model.EntityTitle, *legacyTitle)
	if !ok {
		return rowOutcome{key: fmt.Sprintf("title:%d", *legacyTitle)}, fmt.Errorf("title legacy id %d 未导入", *legacyTitle)
	}

	provider := strings.ToLower(row.get("provider"))
	if provider == "" {
		provider = src.provider
	}
	if provider == "" {
		if sid, err := row.id("source_id"); err == nil && sid != nil {
			provider = run.sourceProviders[*sid]
		}
	}
	if provider == "" {
		return skipRow("无法确定 title source 的数据源")
	}

	payload, err := model.ParsePayload([]byte(row.get("payload")))
	if err != nil {
		return rowOutcome{key: provider}, err
	}
	externalID := row.get("external_id")
	if externalID == "" {
		externalID = payload.String("id")
	}
	legacy, err := row.id("id")
	if err != nil {
		return rowOutcome{key: provider}, err
	}
	ts := &model.VideoGameTitleSource{
		VideoGameTitleID: titleID,
		Provider:         provider,
		ExternalID:       externalID,
		Payload:          payload.JSON(),
		LegacyID:         legacy,
	}
	if err := tx.UpsertTitleSource(ctx, ts); err != nil {
		return rowOutcome{key: provider + ":" + externalID}, err
	}
	return rowOutcome{key: provider + ":" + externalID, commit: func() {
		run.touchedTitles[titleID] = struct{}{}
		if externalID != "" {
			run.ids.Put(model.EntityTitle, provider, externalID, titleID)
		}
	}}, nil
}

func (s *ImportService) aggregateTitles(ctx context.Context, run *importRun) {
	if !s.cfg.AggregateTitles || s.aggregator == nil {
		return
	}
	for titleID := range run.touchedTitles {
		if err := s.aggregator.AggregateTitle(ctx, titleID); err != nil {
			run.report.AggregateErrors = append(run.report.AggregateErrors, fmt.Sprintf("title %d: %v", titleID, err))
			run.logger.WithError(err).WithField("title_id", titleID).Warn("聚合 title 失败")
			continue
		}
		run.report.Aggregated++
	}
}

// importProduct Product 与 Title 一对一，product 的全部身份同时登记为其 title 的别名
func (s *ImportService) importProduct(ctx context.Context, tx repository.CatalogRepository, run *importRun, src stageFile, row csvRow) (rowOutcome, error) {
	ident, err := resolveIdentity(src, row)
	if errors.Is(err, ErrNoIdentity) {
		return skipRow("无法确定 product 身份")
	}
	if err != nil {
		return rowOutcome{}, err
	}
	name := row.get("name")
	if name == "" {
		return skipRow("product 缺少 name")
	}
	slug := row.get("slug")
	if slug == "" {
		slug = slugify(name)
	}
	var externalIDs datatypes.JSON
	if ident.blob != nil {
		externalIDs = ident.blob.JSON()
	}
	p := &model.Product{
		Provider:    ident.provider,
		ExternalID:  ident.externalID,
		Name:        name,
		Slug:        slug,
		ExternalIDs: externalIDs,
		LegacyID:    ident.legacyID,
	}
	if err := tx.UpsertProduct(ctx, p); err != nil {
		return rowOutcome{key: ident.String()}, err
	}
	return rowOutcome{key: ident.String(), commit: func() {
		run.register(model.EntityProduct, ident, p.ID)
		if ident.legacyID == nil {
			return
		}
		run.legacyProducts[*ident.legacyID] = p.ID
		if titleID, ok := run.titleByLegacyProduct[*ident.legacyID]; ok {
			// product 与 title 的 legacy ID 不同空间，legacy_main 主身份不能登记给 title
			titleAlias := ident
			titleAlias.legacyID = nil
			if titleAlias.provider == model.ProviderLegacyMain {
				titleAlias.provider, titleAlias.externalID = "", ""
			}
			run.register(model.EntityTitle, titleAlias, titleID)
		}
	}}, nil
}

func (s *ImportService) linkProducts(ctx context.Context, run *importRun) {
	if len(run.legacyProducts) == 0 {
		return
	}
	n, err := s.repo.LinkTitlesToProducts(ctx, run.legacyProducts)
	run.report.TitlesLinked += n
	if err != nil {
		run.logger.WithError(err).Error("回填 titles → products 失败")
		return
	}
	run.logger.Infof("回填 titles → products %d 行", n)
}

func (s *ImportService) importPrice(ctx context.Context, tx repository.CatalogRepository, run *importRun, _ stageFile, row csvRow) (rowOutcome, error) {
	legacyGame, err := row.id("video_game_id")
	if err != nil {
		return rowOutcome{}, err
	}
	if legacyGame == nil {
		return skipRow("缺少 video_game_id")
	}
	key := fmt.Sprintf("game:%d/%s/%s", *legacyGame, row.get("retailer"), row.get("country_code"))
	gameID, ok := run.lookupLegacy(model.EntityGame, *legacyGame)
	if !ok {
		return rowOutcome{key: key}, fmt.Errorf("%w: legacy id %d 未导入", ErrGameNotFound, *legacyGame)
	}
	retailer, ok := model.ParseRetailer(row.get("retailer"))
	if !ok {
		return rowOutcome{key: key}, fmt.Errorf("%w: %q", ErrUnknownRetailer, row.get("retailer"))
	}
	country := strings.ToUpper(row.get("country_code"))
	if country == "" {
		country = "US"
	}
	currency := strings.ToUpper(row.get("currency"))
	if currency == "" {
		currency, _ = money.CurrencyForCountry(country)
	}
	amount, err := parseAmount(row, currency)
	if err != nil {
		return rowOutcome{key: key}, err
	}

	now := s.now().UTC()
	p := &model.PriceRecord{
		VideoGameID: gameID,
		Retailer:    string(retailer),
		CountryCode: country,
		Currency:    currency,
		AmountMinor: amount,
		URL:         row.get("url"),
		IsActive:    row.boolean("is_active", true),
		RecordedAt:  now,
		UpdatedAt:   now,
	}
	if t := row.timestamp("recorded_at"); t != nil {
		p.RecordedAt = *t
	}
	if t := row.timestamp("updated_at"); t != nil {
		p.UpdatedAt = *t
	}
	if err := tx.Prices().UpsertPrice(ctx, p); err != nil {
		return rowOutcome{key: key}, err
	}
	return rowOutcome{key: key}, nil
}

// parseAmount amount_minor 优先，其次 price（主单位字符串）；都为空记为未知(-1)
func parseAmount(row csvRow, currency string) (int64, error) {
	if v := row.get("amount_minor"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("amount_minor 非法: %q", v)
		}
		if n < model.PriceUnknown {
			return 0, fmt.Errorf("amount_minor 不能为负: %d", n)
		}
		return n, nil
	}
	if v := row.get("price"); v != "" {
		d, err := money.ParseMajor(v)
		if err != nil {
			return 0, fmt.Errorf("price 非法: %w", err)
		}
		if d.IsNegative() {
			return 0, fmt.Errorf("price 不能为负: %s", v)
		}
		return money.ToMinor(d, currency), nil
	}
	return model.PriceUnknown, nil
}

func (s *ImportService) importMedia(ctx context.Context, tx repository.CatalogRepository, run *importRun, _ stageFile, row csvRow) (rowOutcome, error) {
	url := row.get("url")
	if url == "" {
		return skipRow("media 缺少 url")
	}
	var entity model.EntityType
	switch strings.ToLower(row.get("owner_type")) {
	case "title", "video_game_title":
		entity = model.EntityTitle
	case "game", "video_game":
		entity = model.EntityGame
	default:
		return rowOutcome{key: url}, fmt.Errorf("未知 owner_type %q", row.get("owner_type"))
	}
	legacyOwner, err := row.id("owner_id")
	if err != nil {
		return rowOutcome{key: url}, err
	}
	if legacyOwner == nil {
		return skipRow("media 缺少 owner_id")
	}
	ownerID, ok := run.lookupLegacy(entity, *legacyOwner)
	if !ok {
		return rowOutcome{key: url}, fmt.Errorf("%s legacy id %d 未导入", entity, *legacyOwner)
	}
	legacy, err := row.id("id")
	if err != nil {
		return rowOutcome{key: url}, err
	}
	m := &model.Media{OwnerType: string(entity), OwnerID: ownerID, URL: url, Kind: row.get("kind"), LegacyID: legacy}
	if err := tx.UpsertMedia(ctx, m); err != nil {
		return rowOutcome{key: url}, err
	}
	return rowOutcome{key: url, commit: func() {
		run.register(model.EntityMedia, rowIdentity{legacyID: legacy}, m.ID)
	}}, nil
}

func (s *ImportService) importUser(ctx context.Context, tx repository.CatalogRepository, run *importRun, _ stageFile, row csvRow) (rowOutcome, error) {
	email := strings.ToLower(row.get("email"))
	if email == "" || !strings.Contains(email, "@") {
		return skipRow("user 缺少有效 email")
	}
	legacy, err := row.id("id")
	if err != nil {
		return rowOutcome{key: email}, err
	}
	u := &model.User{Email: email, Name: row.get("name"), LegacyID: legacy, IsActive: row.boolean("is_active", true)}
	if err := tx.UpsertUser(ctx, u); err != nil {
		return rowOutcome{key: email}, err
	}
	return rowOutcome{key: email, commit: func() {
		run.register(model.EntityUser, rowIdentity{provider: "email", externalID: email, legacyID: legacy}, u.ID)
	}}, nil
}

var currencyCode = regexp.MustCompile(`^[A-Z]{3,5}$`)

func (s *ImportService) importCurrency(ctx context.Context, tx repository.CatalogRepository, run *importRun, _ stageFile, row csvRow) (rowOutcome, error) {
	code := strings.ToUpper(row.get("code"))
	if !currencyCode.MatchString(code) {
		return skipRow(fmt.Sprintf("非法货币代码 %q", code))
	}
	decimals := int(money.Exponent(code))
	if v := row.get("decimals"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 || n > 18 {
			return rowOutcome{key: code}, fmt.Errorf("decimals 非法: %q", v)
		}
		decimals = n
	}
	symbol := row.get("symbol")
	if symbol == "" {
		symbol, _ = money.Symbol(code)
	}
	name := row.get("name")
	if name == "" {
		name = code
	}
	c := &model.Currency{Code: code, Name: name, Symbol: symbol, Decimals: decimals, IsCrypto: row.boolean("is_crypto", false)}
	if err := tx.UpsertCurrency(ctx, c); err != nil {
		return rowOutcome{key: code}, err
	}
	legacy, _ := row.id("id")
	return rowOutcome{key: code, commit: func() {
		run.register(model.EntityCurrency, rowIdentity{provider: "iso4217", externalID: code, legacyID: legacy}, c.ID)
	}}, nil
}
