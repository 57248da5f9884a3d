//go:build integration

package api

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/budgetlens/budgetlens/internal/ask"
	catalogpostgres "github.com/budgetlens/budgetlens/internal/catalog/postgres"
	"github.com/budgetlens/budgetlens/internal/config"
	"github.com/budgetlens/budgetlens/internal/dataset"
	"github.com/budgetlens/budgetlens/internal/migrations"
	"github.com/budgetlens/budgetlens/internal/nl2q"
	duckdbengine "github.com/budgetlens/budgetlens/internal/query/duckdb"
	"github.com/budgetlens/budgetlens/internal/schema"
	s3store "github.com/budgetlens/budgetlens/internal/storage/s3"
)

func TestAskEndToEndWithPostgresCatalogAndObjectStore(t *testing.T) {
	adminDSN := strings.TrimSpace(os.Getenv("BUDGETLENS_TEST_CATALOG_DSN"))
	if adminDSN == "" {
		t.Skip("BUDGETLENS_TEST_CATALOG_DSN is not set")
	}

	testDSN, cleanup := createTemporaryDatabase(t, adminDSN)
	defer cleanup()

	db, err := sql.Open("pgx", testDSN)
	if err != nil {
		t.Fatalf("sql.Open() error = %v", err)
	}
	defer func() { _ = db.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()
	if _, err := migrations.NewRunner().Up(ctx, db, 0); err != nil {
		t.Fatalf("runner.Up() error = %v", err)
	}

	repo := catalogpostgres.NewRepository(db)
	fields, err := schema.EmbeddedProvider{}.LoadFields(ctx)
	if err != nil {
		t.Fatalf("LoadFields() error = %v", err)
	}
	if err := repo.ReplaceColumns(ctx, testTable, fields); err != nil {
		t.Fatalf("ReplaceColumns() error = %v", err)
	}

	prefix := fmt.Sprintf("api-ask-tests-%d", time.Now().UnixNano())
	store, err := s3store.New(ctx, s3store.Config{
		Endpoint:         envOr("BUDGETLENS_TEST_S3_ENDPOINT", "localhost:9000"),
		Region:           envOr("BUDGETLENS_TEST_S3_REGION", "us-east-1"),
		Bucket:           envOr("BUDGETLENS_TEST_S3_BUCKET", "budgetlens-it"),
		AccessKeyID:      envOr("BUDGETLENS_TEST_S3_ACCESS_KEY", "minio"),
		SecretAccessKey:  envOr("BUDGETLENS_TEST_S3_SECRET_KEY", "miniostorage"),
		UseSSL:           false,
		Prefix:           prefix,
		AutoCreateBucket: true,
	})
	if err != nil {
		t.Fatalf("s3store.New() error = %v", err)
	}

	loader, err := dataset.NewLoader(store, "datasets/budget_transactions", nil)
	if err != nil {
		t.Fatalf("NewLoader() error = %v", err)
	}
	rows := []dataset.Row{
		budgetRow(2021, 1, 40),
		budgetRow(2021, 2, 60.5),
		budgetRow(2022, 1, 120.25),
	}
	if _, err := loader.Load(ctx, rows); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	engine, err := duckdbengine.NewEngine(store, duckdbengine.Config{
		Prefix:   "datasets/budget_transactions",
		Table:    testTable,
		RowLimit: 500,
	}, nil)
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}
	years := dataset.NewYearCache(engine, testTable, nl2q.Backtick.QuoteIdent, time.Minute)

	registry, err := schema.NewRegistry(schema.CatalogProvider{Columns: repo, Table: testTable}, nil)
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}
	pack, err := nl2q.DefaultPack()
	if err != nil {
		t.Fatalf("DefaultPack() error = %v", err)
	}
	model := &replyModel{text: yearlyReply}
	converter, err := nl2q.NewConverter(nl2q.ConverterConfig{Table: testTable}, registry, model, nl2q.NewBuilder(pack, nl2q.Backtick, nil, nil), nil)
	if err != nil {
		t.Fatalf("NewConverter() error = %v", err)
	}
	service, err := ask.NewService(nl2q.PlainStrategy(converter), ask.Config{Table: testTable, RowLimit: 500}, ask.Options{
		Executor: engine,
		History:  repo,
		Years:    years,
	})
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}

	cfg, err := config.Load("budgetlens-api", mapLookup(map[string]string{}))
	if err != nil {
		t.Fatalf("config load failed: %v", err)
	}
	env := &testEnv{handler: NewHandler(cfg, Dependencies{
		Schema:   registry,
		Years:    years,
		Asker:    service,
		Executor: engine,
		History:  repo,
		Table:    testTable,
		RowLimit: 500,
	})}

	rr := env.do(t, http.MethodGet, "/v1/schema", nil, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("schema status = %d, body=%s", rr.Code, rr.Body.String())
	}
	schemaBody := decodeBody(t, rr)
	available, ok := schemaBody["available_years"].(map[string]any)
	if !ok || available["min"] != float64(2021) || available["max"] != float64(2022) {
		t.Fatalf("available_years = %#v", schemaBody["available_years"])
	}

	rr = env.do(t, http.MethodPost, "/v1/ask", map[string]any{"question": "Nettokertymä vuosittain"}, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("ask status = %d, body=%s", rr.Code, rr.Body.String())
	}
	answer := decodeBody(t, rr)
	if answer["row_count"] != float64(2) {
		t.Fatalf("row_count = %v", answer["row_count"])
	}
	if answer["visualization"] != "time_line" {
		t.Fatalf("visualization = %v", answer["visualization"])
	}
	answerRows, ok := answer["rows"].([]any)
	if !ok || len(answerRows) != 2 {
		t.Fatalf("rows = %#v", answer["rows"])
	}
	first, ok := answerRows[0].([]any)
	if !ok || len(first) != 2 || first[1] != 100.5 {
		t.Fatalf("first row = %#v", answerRows[0])
	}

	rr = env.do(t, http.MethodGet, "/v1/history?outcome=success", nil, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("history status = %d, body=%s", rr.Code, rr.Body.String())
	}
	history := decodeBody(t, rr)
	conversions, ok := history["conversions"].([]any)
	if !ok || len(conversions) != 1 {
		t.Fatalf("conversions = %#v", history["conversions"])
	}
	entry := conversions[0].(map[string]any)
	if entry["id"] != answer["id"] {
		t.Fatalf("history id = %v, want %v", entry["id"], answer["id"])
	}
	if entry["row_count"] != float64(2) {
		t.Fatalf("history row_count = %v", entry["row_count"])
	}
}

func budgetRow(year, month int, net float64) dataset.Row {
	return dataset.Row{
		Vuosi:        int32(year),
		Kk:           int32(month),
		YearMonth:    dataset.DaysSinceEpoch(time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)),
		HaTunnus:     "28",
		Hallinnonala: "Valtiovarainministeriön hallinnonala",
		Nettokertyma: net,
	}
}

func createTemporaryDatabase(t *testing.T, adminDSN string) (string, func()) {
	t.Helper()

	parsed, err := url.Parse(adminDSN)
	if err != nil {
		t.Fatalf("url.Parse(adminDSN) error = %v", err)
	}
	adminDBName := strings.TrimPrefix(parsed.Path, "/")
	if adminDBName == "" {
		t.Fatal("admin DSN must include a database name")
	}

	adminDB, err := sql.Open("pgx", adminDSN)
	if err != nil {
		t.Fatalf("sql.Open(adminDSN) error = %v", err)
	}

	name := fmt.Sprintf("budgetlens_it_api_%d", time.Now().UnixNano())
	if _, err := adminDB.Exec(`CREATE DATABASE ` + name); err != nil {
		t.Fatalf("CREATE DATABASE failed: %v", err)
	}

	testURL := *parsed
	testURL.Path = "/" + name
	testDSN := testURL.String()

	cleanup := func() {
		defer func() { _ = adminDB.Close() }()
		if _, err := adminDB.Exec(`SELECT pg_terminate_backend(pid) FROM pg_stat_activity WHERE datname = $1`, name); err != nil {
			t.Fatalf("terminate test db sessions: %v", err)
		}
		if _, err := adminDB.Exec(`DROP DATABASE ` + name); err != nil {
			t.Fatalf("DROP DATABASE failed: %v", err)
		}
	}
	return testDSN, cleanup
}

func envOr(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}
