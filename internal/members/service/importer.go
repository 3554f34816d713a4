package service

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"github.com/xuri/excelize/v2"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
	"golang.org/x/time/rate"

	activitydomain "github.com/calybase/calybase-backend/internal/activity/domain"
	"github.com/calybase/calybase-backend/internal/logger"
	"github.com/calybase/calybase-backend/internal/members/domain"
	"github.com/calybase/calybase-backend/internal/metrics"
)

const (
	DefaultImportBatchSize  = 400
	DefaultBatchesPerSecond = 2.0
	maxImportFileSize       = 10 << 20
	importProgressLogEvery  = 5
)

// BatchWriter stores a chunk of imported members.
type BatchWriter interface {
	CreateMany(ctx context.Context, members []domain.Member) error
}

// ImportRecorder writes import outcomes to the audit log.
type ImportRecorder interface {
	LogExcelImport(ctx context.Context, filename string, rowCount int, success bool, details map[string]interface{}) activitydomain.Entry
}

type ImportOptions struct {
	BatchSize        int
	BatchesPerSecond float64
}

// RowError describes a skipped row. Row counts records from 1, header
// included.
type RowError struct {
	Row     int    `json:"row"`
	Message string `json:"message"`
}

type ImportResult struct {
	Imported int        `json:"imported"`
	Skipped  int        `json:"skipped"`
	Errors   []RowError `json:"errors"`
}

type Importer struct {
	store     BatchWriter
	recorder  ImportRecorder
	batchSize int
	limiter   *rate.Limiter
	log       *logger.Logger
	metrics   *metrics.Metrics
	now       func() time.Time
}

func NewImporter(store BatchWriter, recorder ImportRecorder, opts ImportOptions, log *logger.Logger, m *metrics.Metrics) *Importer {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultImportBatchSize
	}
	limit := rate.Inf
	if opts.BatchesPerSecond > 0 {
		limit = rate.Limit(opts.BatchesPerSecond)
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Importer{
		store:     store,
		recorder:  recorder,
		batchSize: opts.BatchSize,
		limiter:   rate.NewLimiter(limit, 1),
		log:       log.WithComponent("member_import"),
		metrics:   m,
		now:       time.Now,
	}
}

// Import parses a .csv or .xlsx file and stores its valid rows. maxRows
// caps the number of data rows; zero means no cap.
func (im *Importer) Import(ctx context.Context, filename string, r io.Reader, maxRows int, createdBy string) (*ImportResult, error) {
	rows, err := readRows(filename, r)
	if err != nil {
		im.recordFailure(ctx, filename, 0, 0, err)
		return nil, err
	}

	members, result, err := im.buildMembers(rows, maxRows, createdBy)
	if err != nil {
		im.recordFailure(ctx, filename, len(rows), 0, err)
		return nil, err
	}

	for start := 0; start < len(members); start += im.batchSize {
		end := min(start+im.batchSize, len(members))
		if err := im.limiter.Wait(ctx); err != nil {
			im.recordFailure(ctx, filename, len(members), result.Imported, err)
			return result, fmt.Errorf("import paused: %w", err)
		}
		if err := im.store.CreateMany(ctx, members[start:end]); err != nil {
			im.recordFailure(ctx, filename, len(members), result.Imported, err)
			return result, fmt.Errorf("import batch at row %d: %w", start, err)
		}
		result.Imported = end
		if (start/im.batchSize+1)%importProgressLogEvery == 0 {
			im.log.Infof("imported %d/%d members from %s", end, len(members), filename)
		}
	}

	im.metrics.MembersImported(result.Imported)
	im.recorder.LogExcelImport(ctx, filename, result.Imported, true, map[string]interface{}{
		"skipped": result.Skipped,
	})
	return result, nil
}

// recordFailure logs a failed import. imported counts rows already stored
// by earlier chunks.
func (im *Importer) recordFailure(ctx context.Context, filename string, rowCount, imported int, err error) {
	im.log.Errorf(err, "import of %s failed", filename)
	im.metrics.MembersImported(imported)
	im.recorder.LogExcelImport(ctx, filename, rowCount, false, map[string]interface{}{
		"error":    err.Error(),
		"imported": imported,
	})
}

func (im *Importer) buildMembers(rows [][]string, maxRows int, createdBy string) ([]domain.Member, *ImportResult, error) {
	headerAt := -1
	for i, row := range rows {
		if !blank(row) {
			headerAt = i
			break
		}
	}
	if headerAt < 0 {
		return nil, nil, domain.ErrEmptyImport
	}

	cols, err := mapColumns(rows[headerAt])
	if err != nil {
		return nil, nil, err
	}

	type dataRow struct {
		line   int
		fields []string
	}
	var data []dataRow
	for i := headerAt + 1; i < len(rows); i++ {
		if !blank(rows[i]) {
			data = append(data, dataRow{line: i + 1, fields: rows[i]})
		}
	}
	if len(data) == 0 {
		return nil, nil, domain.ErrEmptyImport
	}
	if maxRows > 0 && len(data) > maxRows {
		return nil, nil, fmt.Errorf("%w: %d rows, limit is %d", domain.ErrImportTooLarge, len(data), maxRows)
	}

	now := im.now()
	result := &ImportResult{Errors: []RowError{}}
	members := make([]domain.Member, 0, len(data))
	for _, d := range data {
		in := domain.Input{
			Nom:       cols.get(d.fields, colNom),
			Prenom:    cols.get(d.fields, colPrenom),
			Email:     cols.get(d.fields, colEmail),
			Telephone: cols.get(d.fields, colTelephone),
		}
		if err := in.Normalize(); err != nil {
			result.Skipped++
			result.Errors = append(result.Errors, RowError{Row: d.line, Message: err.Error()})
			continue
		}
		members = append(members, domain.Member{
			Nom:       in.Nom,
			Prenom:    in.Prenom,
			Email:     in.Email,
			Telephone: in.Telephone,
			CreatedAt: now,
			UpdatedAt: now,
			CreatedBy: createdBy,
		})
	}
	return members, result, nil
}

func readRows(filename string, r io.Reader) ([][]string, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	if ext != ".csv" && ext != ".xlsx" {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnsupportedFile, filename)
	}

	raw, err := io.ReadAll(io.LimitReader(r, maxImportFileSize+1))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", filename, err)
	}
	if len(raw) > maxImportFileSize {
		return nil, fmt.Errorf("%w: file larger than %d bytes", domain.ErrImportTooLarge, maxImportFileSize)
	}

	if ext == ".xlsx" {
		return readXLSX(raw)
	}
	return readCSV(raw)
}

func readCSV(raw []byte) ([][]string, error) {
	raw = bytes.TrimPrefix(raw, []byte("\xef\xbb\xbf"))

	cr := csv.NewReader(bytes.NewReader(raw))
	cr.Comma = detectDelimiter(raw)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	rows, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrUnsupportedFile, err)
	}
	return rows, nil
}

// detectDelimiter picks ';' when the first line has more semicolons than
// commas, as spreadsheets exported with a French locale do.
func detectDelimiter(raw []byte) rune {
	first := raw
	if i := bytes.IndexByte(raw, '\n'); i >= 0 {
		first = raw[:i]
	}
	if bytes.Count(first, []byte(";")) > bytes.Count(first, []byte(",")) {
		return ';'
	}
	return ','
}

func readXLSX(raw []byte) ([][]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrUnsupportedFile, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, domain.ErrEmptyImport
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet %s: %w", sheets[0], err)
	}
	return rows, nil
}

type column int

const (
	colNom column = iota
	colPrenom
	colEmail
	colTelephone
)

var headerAliases = map[string]column{
	"nom":       colNom,
	"prenom":    colPrenom,
	"email":     colEmail,
	"e-mail":    colEmail,
	"mail":      colEmail,
	"telephone": colTelephone,
	"tel":       colTelephone,
	"phone":     colTelephone,
}

type columnIndex map[column]int

func (ci columnIndex) get(fields []string, c column) string {
	i, ok := ci[c]
	if !ok || i >= len(fields) {
		return ""
	}
	return fields[i]
}

func mapColumns(header []string) (columnIndex, error) {
	cols := columnIndex{}
	for i, h := range header {
		if c, ok := headerAliases[normalizeHeader(h)]; ok {
			if _, seen := cols[c]; !seen {
				cols[c] = i
			}
		}
	}

	var missing []string
	if _, ok := cols[colNom]; !ok {
		missing = append(missing, "nom")
	}
	if _, ok := cols[colPrenom]; !ok {
		missing = append(missing, "prenom")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", domain.ErrMissingColumns, strings.Join(missing, ", "))
	}
	return cols, nil
}

// normalizeHeader lowercases h and strips accents and surrounding spaces,
// so "Prénom " matches "prenom".
func normalizeHeader(h string) string {
	stripAccents := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(stripAccents, h)
	if err != nil {
		out = h
	}
	return strings.ToLower(strings.TrimSpace(out))
}

func blank(row []string) bool {
	for _, f := range row {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}
