package duckdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/marcboeker/go-duckdb/v2"

	"github.com/budgetlens/budgetlens/internal/observability"
	"github.com/budgetlens/budgetlens/internal/query"
	"github.com/budgetlens/budgetlens/internal/storage"
)

type Config struct {
	// Prefix is the object store prefix holding the dataset's parquet files.
	Prefix string
	// Table is the canonical identifier the dataset is exposed under.
	Table    string
	RowLimit int
}

// Engine downloads the dataset's parquet files into a scratch directory,
// loads them into a fresh in-memory DuckDB per query and runs the query with
// external access disabled.
type Engine struct {
	Store  storage.ObjectStore
	config Config
	logger *slog.Logger
}

func NewEngine(store storage.ObjectStore, cfg Config, logger *slog.Logger) (*Engine, error) {
	if store == nil {
		return nil, errors.New("object store is required")
	}
	prefix, err := storage.CleanDatasetPrefix(cfg.Prefix)
	if err != nil {
		return nil, err
	}
	cfg.Prefix = prefix
	cfg.Table = strings.TrimSpace(cfg.Table)
	if cfg.Table == "" {
		return nil, errors.New("table is required")
	}
	return &Engine{Store: store, config: cfg, logger: observability.LoggerOrDiscard(logger)}, nil
}

func (e *Engine) Table() string {
	return e.config.Table
}

func (e *Engine) Execute(ctx context.Context, request query.Request) (query.Result, error) {
	start := time.Now()
	result, err := e.execute(ctx, request)
	outcome := "success"
	if err != nil {
		outcome = string(query.KindOf(err))
		e.logger.Warn("query execution failed",
			slog.String("kind", outcome),
			slog.Int64("duration_ms", time.Since(start).Milliseconds()),
			slog.Any("error", err),
		)
	}
	observability.ObserveQueryExecution(outcome, time.Since(start))
	return result, err
}

func (e *Engine) execute(ctx context.Context, request query.Request) (query.Result, error) {
	sqlText := query.StripTrailingSemicolons(request.SQL)
	if sqlText == "" {
		return query.Result{}, &query.ExecutionError{Kind: query.KindMalformedQuery, Message: "sql is required"}
	}
	table := strings.TrimSpace(request.Table)
	if table == "" {
		table = e.config.Table
	}
	if table != e.config.Table {
		return query.Result{}, &query.ExecutionError{Kind: query.KindNotFound, Message: fmt.Sprintf("table %q is not served by this executor", table)}
	}
	rowLimit := request.RowLimit
	if rowLimit <= 0 {
		rowLimit = e.config.RowLimit
	}

	start := time.Now()
	objects, err := e.Store.List(ctx, e.config.Prefix+"/")
	if err != nil {
		return query.Result{}, storageError("list dataset files", err)
	}
	files := make([]storage.ObjectInfo, 0, len(objects))
	for _, object := range objects {
		if storage.IsParquetKey(object.Key) {
			files = append(files, object)
		}
	}
	if len(files) == 0 {
		return query.Result{}, &query.ExecutionError{Kind: query.KindNotFound, Message: fmt.Sprintf("no data files under %q", e.config.Prefix)}
	}

	workDir, err := os.MkdirTemp("", "budgetlens-query-")
	if err != nil {
		return query.Result{}, &query.ExecutionError{Kind: query.KindInternal, Message: "create query temp dir", Cause: err}
	}
	defer func() { _ = os.RemoveAll(workDir) }()

	localPaths := make([]string, 0, len(files))
	var scannedBytes int64
	for index, file := range files {
		localPath := filepath.Join(workDir, fmt.Sprintf("%05d_%s", index, sanitizeFileComponent(path.Base(file.Key))))
		written, err := e.download(ctx, file.Key, localPath)
		if err != nil {
			return query.Result{}, err
		}
		localPaths = append(localPaths, localPath)
		scannedBytes += written
	}

	db, err := sql.Open("duckdb", "")
	if err != nil {
		return query.Result{}, &query.ExecutionError{Kind: query.KindInternal, Message: "open duckdb", Cause: err}
	}
	defer func() { _ = db.Close() }()

	conn, err := db.Conn(ctx)
	if err != nil {
		return query.Result{}, &query.ExecutionError{Kind: query.KindInternal, Message: "open duckdb connection", Cause: err}
	}
	defer func() { _ = conn.Close() }()

	if err := materialize(ctx, conn, table, localPaths); err != nil {
		return query.Result{}, err
	}

	sqlText = RewriteBacktickIdentifiers(sqlText)
	if rowLimit > 0 {
		sqlText = fmt.Sprintf("SELECT * FROM (%s) AS q LIMIT %d", sqlText, rowLimit)
	}

	rows, err := conn.QueryContext(ctx, sqlText)
	if err != nil {
		return query.Result{}, classify(err)
	}
	defer func() { _ = rows.Close() }()

	columns, err := rows.Columns()
	if err != nil {
		return query.Result{}, classify(err)
	}

	resultRows := make([][]any, 0)
	for rows.Next() {
		values := make([]any, len(columns))
		scanTargets := make([]any, len(columns))
		for i := range values {
			scanTargets[i] = &values[i]
		}
		if err := rows.Scan(scanTargets...); err != nil {
			return query.Result{}, classify(err)
		}
		resultRows = append(resultRows, normalizeValues(values))
	}
	if err := rows.Err(); err != nil {
		return query.Result{}, classify(err)
	}

	return query.Result{
		Columns:      columns,
		Rows:         resultRows,
		ScannedFiles: len(files),
		ScannedBytes: scannedBytes,
		Duration:     time.Since(start),
	}, nil
}

func (e *Engine) download(ctx context.Context, key, localPath string) (int64, error) {
	reader, err := e.Store.Get(ctx, key)
	if err != nil {
		return 0, storageError(fmt.Sprintf("get object %q", key), err)
	}
	written, err := writeFile(localPath, reader)
	if err != nil {
		_ = reader.Close()
		return 0, &query.ExecutionError{Kind: query.KindInternal, Message: fmt.Sprintf("write local parquet file %q", localPath), Cause: err}
	}
	if err := reader.Close(); err != nil {
		return 0, storageError(fmt.Sprintf("close object %q", key), err)
	}
	return written, nil
}

// lockdownStatements run after the dataset is loaded. Caller SQL can then
// reach the in-memory tables only, never the host filesystem or network.
var lockdownStatements = []string{
	`SET enable_external_access = false`,
	`SET lock_configuration = true`,
}

// materialize copies the parquet parts into an in-memory table under the
// canonical name, aliases the short name to it and locks the connection down.
func materialize(ctx context.Context, conn *sql.Conn, table string, localPaths []string) error {
	names := viewNames(table)
	tableSQL := fmt.Sprintf(`CREATE TABLE %s AS SELECT * FROM read_parquet(%s)`, quoteIdent(names[0]), quoteStringArray(localPaths))
	if _, err := conn.ExecContext(ctx, tableSQL); err != nil {
		return &query.ExecutionError{Kind: query.KindInternal, Message: fmt.Sprintf("load table %q", names[0]), Cause: err}
	}
	for _, name := range names[1:] {
		viewSQL := fmt.Sprintf(`CREATE VIEW %s AS SELECT * FROM %s`, quoteIdent(name), quoteIdent(names[0]))
		if _, err := conn.ExecContext(ctx, viewSQL); err != nil {
			return &query.ExecutionError{Kind: query.KindInternal, Message: fmt.Sprintf("create view %q", name), Cause: err}
		}
	}
	for _, statement := range lockdownStatements {
		if _, err := conn.ExecContext(ctx, statement); err != nil {
			return &query.ExecutionError{Kind: query.KindInternal, Message: "restrict duckdb access", Cause: err}
		}
	}
	return nil
}

// viewNames returns the canonical table identifier and, when it is
// qualified, its last component.
func viewNames(table string) []string {
	names := []string{table}
	if i := strings.LastIndex(table, "."); i >= 0 && i < len(table)-1 {
		names = append(names, table[i+1:])
	}
	return names
}

func storageError(message string, err error) error {
	kind := query.KindInternal
	switch {
	case errors.Is(err, storage.ErrObjectNotFound):
		kind = query.KindNotFound
	case errors.Is(err, storage.ErrAccessDenied):
		kind = query.KindPermissionDenied
	case errors.Is(err, storage.ErrThrottled):
		kind = query.KindQuotaExceeded
	}
	return &query.ExecutionError{Kind: kind, Message: message, Cause: err}
}

// classify maps DuckDB errors by their message class.
func classify(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return &query.ExecutionError{Kind: query.KindInternal, Message: "query interrupted", Cause: err}
	}
	msg := err.Error()
	kind := query.KindInternal
	switch {
	case strings.Contains(msg, "Permission Error"),
		strings.Contains(msg, "disabled by configuration"),
		strings.Contains(msg, "disabled through configuration"):
		kind = query.KindPermissionDenied
	case strings.Contains(msg, "Catalog Error") && strings.Contains(msg, "does not exist"):
		kind = query.KindNotFound
	case strings.Contains(msg, "Parser Error"),
		strings.Contains(msg, "Binder Error"),
		strings.Contains(msg, "Catalog Error"),
		strings.Contains(msg, "Conversion Error"),
		strings.Contains(msg, "Invalid Input Error"),
		strings.Contains(msg, "Not implemented Error"):
		kind = query.KindMalformedQuery
	case strings.Contains(msg, "Out of Memory Error"):
		kind = query.KindQuotaExceeded
	}
	return &query.ExecutionError{Kind: kind, Message: firstLine(msg), Cause: err}
}

func firstLine(msg string) string {
	if i := strings.IndexByte(msg, '\n'); i >= 0 {
		return strings.TrimSpace(msg[:i])
	}
	return msg
}

// RewriteBacktickIdentifiers turns `ident` into "ident" outside string
// literals so queries written for backtick dialects run on DuckDB.
func RewriteBacktickIdentifiers(sqlText string) string {
	if !strings.Contains(sqlText, "`") {
		return sqlText
	}
	var out strings.Builder
	out.Grow(len(sqlText))
	inString, inIdent := false, false
	for _, r := range sqlText {
		switch {
		case inString:
			out.WriteRune(r)
			if r == '\'' {
				inString = false
			}
		case inIdent:
			switch r {
			case '`':
				out.WriteByte('"')
				inIdent = false
			case '"':
				out.WriteString(`""`)
			default:
				out.WriteRune(r)
			}
		case r == '\'':
			inString = true
			out.WriteRune(r)
		case r == '`':
			inIdent = true
			out.WriteByte('"')
		default:
			out.WriteRune(r)
		}
	}
	return out.String()
}

func normalizeValues(values []any) []any {
	normalized := make([]any, len(values))
	for i, value := range values {
		switch typed := value.(type) {
		case []byte:
			normalized[i] = string(typed)
		default:
			normalized[i] = typed
		}
	}
	return normalized
}

func quoteIdent(value string) string {
	return `"` + strings.ReplaceAll(value, `"`, `""`) + `"`
}

func quoteStringArray(values []string) string {
	quoted := make([]string, 0, len(values))
	for _, value := range values {
		quoted = append(quoted, `'`+strings.ReplaceAll(value, `'`, `''`)+`'`)
	}
	return "[" + strings.Join(quoted, ",") + "]"
}

func sanitizeFileComponent(value string) string {
	value = strings.ReplaceAll(value, "/", "_")
	value = strings.ReplaceAll(value, "..", "_")
	if value == "" {
		return "part.parquet"
	}
	return value
}
