// Package watchlist loads the file numbers to watch from a spreadsheet column.
package watchlist

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
	"golang.org/x/text/unicode/norm"

	"github.com/JakeFAU/gazette-watch/internal/gazette"
)

// DefaultColumn is the header of the column holding file numbers.
const DefaultColumn = "NÚMERO DO PROCESSO"

// ErrColumnNotFound is returned when the header row lacks the configured column.
var ErrColumnNotFound = errors.New("column not found")

// Config describes where the watch-list lives.
type Config struct {
	Path      string
	Column    string
	Sheet     string
	Delimiter rune
}

// FileSource implements gazette.WatchlistSource for .xlsx and .csv files.
type FileSource struct {
	cfg    Config
	logger *zap.Logger
}

// NewFileSource builds a FileSource, applying defaults for Column and Delimiter.
func NewFileSource(cfg Config, logger *zap.Logger) *FileSource {
	if cfg.Column == "" {
		cfg.Column = DefaultColumn
	}
	if cfg.Delimiter == 0 {
		cfg.Delimiter = ','
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileSource{cfg: cfg, logger: logger}
}

// Load reads every non-blank cell of the configured column. A missing file,
// unsupported extension or missing column is a *gazette.ConfigurationError.
func (s *FileSource) Load(_ context.Context) ([]string, error) {
	if _, err := os.Stat(s.cfg.Path); err != nil {
		return nil, &gazette.ConfigurationError{Setting: "watchlist.path", Err: fmt.Errorf("list file not found at %s: %w", s.cfg.Path, err)}
	}

	var (
		rows [][]string
		err  error
	)
	switch ext := strings.ToLower(filepath.Ext(s.cfg.Path)); ext {
	case ".xlsx", ".xlsm":
		rows, err = s.readXLSX()
	case ".csv":
		rows, err = s.readCSV()
	default:
		return nil, &gazette.ConfigurationError{Setting: "watchlist.path", Err: fmt.Errorf("unsupported watch-list format %q", ext)}
	}
	if err != nil {
		return nil, &gazette.CollaboratorError{Collaborator: gazette.CollaboratorWatchlist, Err: err}
	}

	numbers, err := columnValues(rows, s.cfg.Column)
	if err != nil {
		return nil, &gazette.ConfigurationError{Setting: "watchlist.column", Err: err}
	}
	s.logger.Info("watch-list loaded", zap.String("path", s.cfg.Path), zap.Int("count", len(numbers)))
	return numbers, nil
}

func (s *FileSource) readXLSX() ([][]string, error) {
	f, err := excelize.OpenFile(s.cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil {
			s.logger.Warn("failed to close workbook", zap.Error(cerr))
		}
	}()

	sheet := s.cfg.Sheet
	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, fmt.Errorf("workbook has no sheets")
		}
		sheet = sheets[0]
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheet, err)
	}
	return rows, nil
}

func (s *FileSource) readCSV() ([][]string, error) {
	file, err := os.Open(s.cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("open csv: %w", err)
	}
	defer file.Close() //nolint:errcheck // read-only

	reader := csv.NewReader(file)
	reader.Comma = s.cfg.Delimiter
	reader.FieldsPerRecord = -1
	var rows [][]string
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv: %w", err)
		}
		rows = append(rows, record)
	}
	return rows, nil
}

// columnValues finds column in the first row and returns its trimmed,
// non-blank values below the header.
func columnValues(rows [][]string, column string) ([]string, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: %q (empty sheet)", ErrColumnNotFound, column)
	}
	want := headerKey(column)
	idx := -1
	for i, header := range rows[0] {
		if headerKey(header) == want {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, fmt.Errorf("%w: %q", ErrColumnNotFound, column)
	}

	var values []string
	for _, row := range rows[1:] {
		if idx >= len(row) {
			continue
		}
		if v := strings.TrimSpace(row[idx]); v != "" {
			values = append(values, v)
		}
	}
	return values, nil
}

func headerKey(s string) string {
	s = strings.TrimPrefix(s, "\ufeff")
	return strings.ToUpper(norm.NFC.String(strings.TrimSpace(s)))
}
