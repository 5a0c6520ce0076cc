package childnutrition

import (
	"context"
	"database/sql"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// Release file suffixes, e.g. CN.2025.05_FDES.csv
const (
	fileCategories     = "CTGNME"
	fileNutrients      = "NUTDES"
	fileFoods          = "FDES"
	fileNutrientValues = "NUTVAL"
	fileWeights        = "WGHT"

	defaultBatchSize = 1000
)

// ImportOptions controls a CSV import
type ImportOptions struct {
	CSVDir string
	// Limit caps the number of foods imported (0 = all). Nutrient values are
	// only imported for foods that made it in.
	Limit         int
	SkipNutrients bool
	// SkipWeights leaves the household measures out. A release without a
	// weights file imports without them either way.
	SkipWeights bool
	BatchSize   int
}

// ImportReport counts what an import wrote
type ImportReport struct {
	Categories     int `json:"categories"`
	Nutrients      int `json:"nutrients"`
	Foods          int `json:"foods"`
	NutrientValues int `json:"nutrientValues"`
	Weights        int `json:"weights"`
	SkippedRows    int `json:"skippedRows"`
}

// Importer loads a Child Nutrition CSV release into a Store
type Importer struct {
	store  *Store
	logger *zap.Logger
}

// NewImporter creates an importer writing into store
func NewImporter(store *Store, logger *zap.Logger) *Importer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Importer{store: store, logger: logger}
}

// Import loads categories, nutrients, foods and (unless skipped) nutrient
// values and weights, in that order. Rows that fail to parse are skipped
// and counted.
func (im *Importer) Import(ctx context.Context, opts ImportOptions) (ImportReport, error) {
	var report ImportReport
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultBatchSize
	}

	want := []string{fileCategories, fileNutrients, fileFoods}
	if !opts.SkipNutrients {
		want = append(want, fileNutrientValues)
	}
	files := make(map[string]string, len(want))
	var missing []string
	for _, suffix := range want {
		path, err := findReleaseFile(opts.CSVDir, suffix)
		if err != nil {
			missing = append(missing, "*_"+suffix+".csv")
			continue
		}
		files[suffix] = path
	}
	if len(missing) > 0 {
		return report, fmt.Errorf("missing CSV files in %s: %s", opts.CSVDir, strings.Join(missing, ", "))
	}
	if !opts.SkipWeights {
		if path, err := findReleaseFile(opts.CSVDir, fileWeights); err == nil {
			files[fileWeights] = path
		} else {
			im.logger.Warn("weights file not found, importing without portions", zap.String("dir", opts.CSVDir))
		}
	}

	im.logger.Info("starting child nutrition import", zap.String("dir", opts.CSVDir), zap.Int("limit", opts.Limit))

	n, skipped, err := im.load(ctx, files[fileCategories], opts.BatchSize,
		`INSERT OR REPLACE INTO cn_food_category (code, description) VALUES (?, ?)`,
		func(r record) ([]interface{}, bool) {
			code, err := r.atoi("Food category code")
			if err != nil {
				return nil, false
			}
			return []interface{}{code, r.str("Category description")}, true
		})
	if err != nil {
		return report, err
	}
	report.Categories, report.SkippedRows = n, report.SkippedRows+skipped

	nutrientCodes := make(map[int]bool)
	n, skipped, err = im.load(ctx, files[fileNutrients], opts.BatchSize,
		`INSERT OR REPLACE INTO cn_nutrient (code, description, description_abbrev, unit) VALUES (?, ?, ?, ?)`,
		func(r record) ([]interface{}, bool) {
			code, err := r.atoi("Nutrient code")
			if err != nil {
				return nil, false
			}
			nutrientCodes[code] = true
			return []interface{}{code, r.str("Nutrient description"), r.str("Nutrient description abbrev"), r.str("Nutrient unit")}, true
		})
	if err != nil {
		return report, err
	}
	report.Nutrients, report.SkippedRows = n, report.SkippedRows+skipped

	foodCodes := make(map[int]bool)
	n, skipped, err = im.load(ctx, files[fileFoods], opts.BatchSize,
		`INSERT OR REPLACE INTO cn_food (cn_code, category_code, descriptor, abbreviated_descriptor, gtin, brand_owner_name, brand_name, fdc_id)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		func(r record) ([]interface{}, bool) {
			if opts.Limit > 0 && len(foodCodes) >= opts.Limit {
				return nil, false
			}
			code, err := r.atoi("Cn code")
			if err != nil || r.str("Descriptor") == "" {
				return nil, false
			}
			foodCodes[code] = true
			return []interface{}{
				code, r.nullInt("Food category code"), r.str("Descriptor"), r.str("Abbreviated descriptor"),
				r.nullStr("Gtin"), r.nullStr("Brand owner name"), r.nullStr("Brand name"), r.nullInt("Fdc id"),
			}, true
		})
	if err != nil {
		return report, err
	}
	report.Foods = n
	if opts.Limit == 0 {
		report.SkippedRows += skipped
	}

	if !opts.SkipNutrients {
		n, skipped, err = im.load(ctx, files[fileNutrientValues], opts.BatchSize,
			`INSERT OR REPLACE INTO cn_nutrient_value (cn_code, nutrient_code, value) VALUES (?, ?, ?)`,
			func(r record) ([]interface{}, bool) {
				code, err := r.atoi("Cn Code", "Cn code")
				if err != nil || !foodCodes[code] {
					return nil, false
				}
				nutrient, err := r.atoi("Nutrient code")
				if err != nil || !nutrientCodes[nutrient] {
					return nil, false
				}
				value, err := strconv.ParseFloat(r.str("Nutrient value"), 64)
				if err != nil {
					return nil, false
				}
				return []interface{}{code, nutrient, value}, true
			})
		if err != nil {
			return report, err
		}
		report.NutrientValues = n
		if opts.Limit == 0 {
			report.SkippedRows += skipped
		}
	}

	if path, ok := files[fileWeights]; ok {
		n, skipped, err = im.load(ctx, path, opts.BatchSize,
			`INSERT OR REPLACE INTO cn_weight (cn_code, sequence_num, amount, measure_description, unit_amount, type_of_unit)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			func(r record) ([]interface{}, bool) {
				code, err := r.atoi("Cn code", "Cn Code")
				if err != nil || !foodCodes[code] {
					return nil, false
				}
				seq, err := r.atoi("Sequence num")
				if err != nil || r.str("Measure description") == "" {
					return nil, false
				}
				unit, err := strconv.ParseFloat(r.str("Unit amount"), 64)
				if err != nil {
					return nil, false
				}
				return []interface{}{code, seq, r.nullFloat("Amount"), r.str("Measure description"), unit, r.nullStr("Type of unit")}, true
			})
		if err != nil {
			return report, err
		}
		report.Weights = n
		if opts.Limit == 0 {
			report.SkippedRows += skipped
		}
	}

	im.logger.Info("child nutrition import complete",
		zap.Int("categories", report.Categories),
		zap.Int("nutrients", report.Nutrients),
		zap.Int("foods", report.Foods),
		zap.Int("nutrient_values", report.NutrientValues),
		zap.Int("weights", report.Weights),
		zap.Int("skipped_rows", report.SkippedRows))

	return report, nil
}

// load streams one CSV file into the database, committing every batchSize rows.
// toArgs returns false for rows that must be skipped.
func (im *Importer) load(ctx context.Context, path string, batchSize int, stmt string, toArgs func(record) ([]interface{}, bool)) (written, skipped int, err error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, fmt.Errorf("opening %s: %w", filepath.Base(path), err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if err != nil {
		return 0, 0, fmt.Errorf("reading header of %s: %w", filepath.Base(path), err)
	}
	columns := headerIndex(header)

	var tx *sql.Tx
	var prepared *sql.Stmt
	pending := 0

	begin := func() error {
		var err error
		tx, err = im.store.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("beginning transaction: %w", err)
		}
		prepared, err = tx.PrepareContext(ctx, stmt)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("preparing statement: %w", err)
		}
		return nil
	}
	commit := func() error {
		prepared.Close()
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing batch: %w", err)
		}
		tx, prepared, pending = nil, nil, 0
		return nil
	}

	for {
		row, readErr := reader.Read()
		if errors.Is(readErr, io.EOF) {
			break
		}
		if readErr != nil {
			skipped++
			continue
		}

		args, ok := toArgs(record{columns: columns, values: row})
		if !ok {
			skipped++
			continue
		}

		if tx == nil {
			if err := begin(); err != nil {
				return written, skipped, err
			}
		}
		if _, err := prepared.ExecContext(ctx, args...); err != nil {
			prepared.Close()
			tx.Rollback()
			return written, skipped, fmt.Errorf("writing row from %s: %w", filepath.Base(path), err)
		}
		written++
		pending++

		if pending >= batchSize {
			if err := commit(); err != nil {
				return written, skipped, err
			}
			im.logger.Debug("batch committed", zap.String("file", filepath.Base(path)), zap.Int("rows", written))
		}
	}

	if tx != nil {
		if err := commit(); err != nil {
			return written, skipped, err
		}
	}
	return written, skipped, nil
}

func findReleaseFile(dir, suffix string) (string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*_"+suffix+".csv"))
	if err != nil {
		return "", err
	}
	if len(matches) == 0 {
		return "", os.ErrNotExist
	}
	// Latest release wins when several are present
	return matches[len(matches)-1], nil
}

func headerIndex(header []string) map[string]int {
	columns := make(map[string]int, len(header))
	for i, name := range header {
		name = strings.TrimPrefix(name, "\ufeff")
		columns[strings.TrimSpace(name)] = i
	}
	return columns
}

// record gives named access to one CSV row
type record struct {
	columns map[string]int
	values  []string
}

// str returns the first present column among names, trimmed
func (r record) str(names ...string) string {
	for _, name := range names {
		if i, ok := r.columns[name]; ok && i < len(r.values) {
			return strings.TrimSpace(r.values[i])
		}
	}
	return ""
}

func (r record) atoi(names ...string) (int, error) {
	return strconv.Atoi(r.str(names...))
}

func (r record) nullStr(name string) interface{} {
	if v := r.str(name); v != "" {
		return v
	}
	return nil
}

func (r record) nullFloat(name string) interface{} {
	if v, err := strconv.ParseFloat(r.str(name), 64); err == nil {
		return v
	}
	return nil
}

func (r record) nullInt(name string) interface{} {
	if v, err := r.atoi(name); err == nil {
		return v
	}
	return nil
}
