// Package childnutrition serves the USDA Child Nutrition database from a
// local SQLite file loaded by the CSV importer.
package childnutrition

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/nutriplan/backend/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS cn_food_category (
	code        INTEGER PRIMARY KEY,
	description TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS cn_nutrient (
	code               INTEGER PRIMARY KEY,
	description        TEXT NOT NULL,
	description_abbrev TEXT,
	unit               TEXT
);

CREATE TABLE IF NOT EXISTS cn_food (
	cn_code                INTEGER PRIMARY KEY,
	category_code          INTEGER,
	descriptor             TEXT NOT NULL,
	abbreviated_descriptor TEXT,
	gtin                   TEXT,
	brand_owner_name       TEXT,
	brand_name             TEXT,
	fdc_id                 INTEGER
);

CREATE INDEX IF NOT EXISTS idx_cn_food_descriptor ON cn_food(descriptor);
CREATE INDEX IF NOT EXISTS idx_cn_food_gtin ON cn_food(gtin);

CREATE TABLE IF NOT EXISTS cn_nutrient_value (
	cn_code       INTEGER NOT NULL,
	nutrient_code INTEGER NOT NULL,
	value         REAL NOT NULL,
	PRIMARY KEY (cn_code, nutrient_code)
);

CREATE TABLE IF NOT EXISTS cn_weight (
	cn_code             INTEGER NOT NULL,
	sequence_num        INTEGER NOT NULL,
	amount              REAL,
	measure_description TEXT NOT NULL,
	unit_amount         REAL NOT NULL,
	type_of_unit        TEXT,
	PRIMARY KEY (cn_code, sequence_num)
);
`

// Food is one row of cn_food with its category and nutrient values
type Food struct {
	Code                  int
	Descriptor            string
	AbbreviatedDescriptor string
	Category              string
	GTIN                  string
	BrandOwner            string
	BrandName             string
	// Nutrients is keyed by Child Nutrition nutrient code
	Nutrients map[int]float64
	// Weights are only loaded for single-food lookups
	Weights []Weight
}

// Weight is one household measure from cn_weight. UnitAmount is in grams
// when TypeOfUnit is "g".
type Weight struct {
	Sequence    int
	Amount      float64
	Description string
	UnitAmount  float64
	TypeOfUnit  string
}

// Store is the SQLite-backed Child Nutrition dataset
type Store struct {
	db   *sql.DB
	path string
}

// Open opens (creating if needed) the database at path and ensures the schema.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("database path is required")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return &Store{db: db, path: path}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

const foodColumns = `
	f.cn_code, f.descriptor, COALESCE(f.abbreviated_descriptor, ''),
	COALESCE(c.description, ''), COALESCE(f.gtin, ''),
	COALESCE(f.brand_owner_name, ''), COALESCE(f.brand_name, '')`

// Search returns up to limit foods whose descriptor contains every word of
// text (case-insensitive), ordered by descriptor then code, plus the total
// number of matches. A non-empty category narrows the search to one
// category, named by code or by description.
func (s *Store) Search(ctx context.Context, text, category string, limit int) ([]Food, int, error) {
	where, args := matchClause(text)
	if cond, arg, ok := categoryClause(category); ok {
		where += " AND " + cond
		args = append(args, arg)
	}

	var total int
	row := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM cn_food f
		LEFT JOIN cn_food_category c ON c.code = f.category_code
		WHERE `+where, args...)
	if err := row.Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting foods: %w", err)
	}
	if total == 0 || limit <= 0 {
		return []Food{}, total, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT`+foodColumns+`
		FROM cn_food f
		LEFT JOIN cn_food_category c ON c.code = f.category_code
		WHERE `+where+`
		ORDER BY f.descriptor, f.cn_code
		LIMIT ?`, append(args, limit)...)
	if err != nil {
		return nil, 0, fmt.Errorf("querying foods: %w", err)
	}
	defer rows.Close()

	var foods []Food //nolint:prealloc // size unknown from query
	for rows.Next() {
		food, err := scanFood(rows)
		if err != nil {
			return nil, 0, err
		}
		foods = append(foods, food)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterating foods: %w", err)
	}

	if err := s.attachNutrients(ctx, foods); err != nil {
		return nil, 0, err
	}
	return foods, total, nil
}

// ByCode returns one food by its CN code, or domain.ErrNotFound.
func (s *Store) ByCode(ctx context.Context, code int) (*Food, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT`+foodColumns+`
		FROM cn_food f
		LEFT JOIN cn_food_category c ON c.code = f.category_code
		WHERE f.cn_code = ?`, code)
	food, err := s.oneFood(ctx, row)
	if err != nil {
		return nil, err
	}
	if food.Weights, err = s.weights(ctx, code); err != nil {
		return nil, err
	}
	return food, nil
}

// weights loads the household measures of one food in sequence order
func (s *Store) weights(ctx context.Context, code int) ([]Weight, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT sequence_num, COALESCE(amount, 0), measure_description, unit_amount, COALESCE(type_of_unit, '')
		FROM cn_weight
		WHERE cn_code = ?
		ORDER BY sequence_num`, code)
	if err != nil {
		return nil, fmt.Errorf("querying weights: %w", err)
	}
	defer rows.Close()

	var weights []Weight
	for rows.Next() {
		var w Weight
		if err := rows.Scan(&w.Sequence, &w.Amount, &w.Description, &w.UnitAmount, &w.TypeOfUnit); err != nil {
			return nil, fmt.Errorf("scanning weight: %w", err)
		}
		weights = append(weights, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating weights: %w", err)
	}
	return weights, nil
}

// ByGTIN returns the food carrying the given GTIN. Leading zeros are not
// significant, so a 12-digit UPC matches its 14-digit GTIN form.
func (s *Store) ByGTIN(ctx context.Context, gtin string) (*Food, error) {
	trimmed := strings.TrimLeft(strings.TrimSpace(gtin), "0")
	if trimmed == "" {
		return nil, domain.ErrNotFound
	}
	row := s.db.QueryRowContext(ctx, `
		SELECT`+foodColumns+`
		FROM cn_food f
		LEFT JOIN cn_food_category c ON c.code = f.category_code
		WHERE f.gtin IS NOT NULL AND f.gtin != '' AND LTRIM(f.gtin, '0') = ?
		ORDER BY f.cn_code
		LIMIT 1`, trimmed)
	return s.oneFood(ctx, row)
}

// Counts returns the number of foods and how many of them are branded.
func (s *Store) Counts(ctx context.Context) (total, branded int, err error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(CASE WHEN COALESCE(brand_name, '') != '' OR COALESCE(brand_owner_name, '') != '' THEN 1 ELSE 0 END), 0)
		FROM cn_food`)
	if err := row.Scan(&total, &branded); err != nil {
		return 0, 0, fmt.Errorf("counting foods: %w", err)
	}
	return total, branded, nil
}

func (s *Store) oneFood(ctx context.Context, row *sql.Row) (*Food, error) {
	food, err := scanFood(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	foods := []Food{food}
	if err := s.attachNutrients(ctx, foods); err != nil {
		return nil, err
	}
	return &foods[0], nil
}

// attachNutrients loads nutrient values for all foods in one query
func (s *Store) attachNutrients(ctx context.Context, foods []Food) error {
	if len(foods) == 0 {
		return nil
	}

	index := make(map[int]int, len(foods))
	placeholders := make([]string, len(foods))
	args := make([]interface{}, len(foods))
	for i, f := range foods {
		index[f.Code] = i
		placeholders[i] = "?"
		args[i] = f.Code
		foods[i].Nutrients = make(map[int]float64)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT cn_code, nutrient_code, value
		FROM cn_nutrient_value
		WHERE cn_code IN (`+strings.Join(placeholders, ",")+`)`, args...)
	if err != nil {
		return fmt.Errorf("querying nutrient values: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var code, nutrient int
		var value float64
		if err := rows.Scan(&code, &nutrient, &value); err != nil {
			return fmt.Errorf("scanning nutrient value: %w", err)
		}
		if i, ok := index[code]; ok {
			foods[i].Nutrients[nutrient] = value
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterating nutrient values: %w", err)
	}
	return nil
}

// matchClause builds an AND of LIKE conditions, one per word
func matchClause(text string) (string, []interface{}) {
	words := strings.Fields(strings.ToLower(text))
	if len(words) == 0 {
		return "1 = 1", nil
	}

	conds := make([]string, 0, len(words))
	args := make([]interface{}, 0, len(words))
	for _, w := range words {
		conds = append(conds, `LOWER(f.descriptor) LIKE ? ESCAPE '\'`)
		args = append(args, "%"+escapeLike(w)+"%")
	}
	return strings.Join(conds, " AND "), args
}

// categoryClause matches a numeric category by code and anything else by
// description, ignoring case
func categoryClause(category string) (string, interface{}, bool) {
	category = strings.TrimSpace(category)
	if category == "" {
		return "", nil, false
	}
	if code, err := strconv.Atoi(category); err == nil {
		return "f.category_code = ?", code, true
	}
	return "LOWER(c.description) = ?", strings.ToLower(category), true
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// rowScanner is satisfied by *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanFood(row rowScanner) (Food, error) {
	var f Food
	err := row.Scan(&f.Code, &f.Descriptor, &f.AbbreviatedDescriptor, &f.Category, &f.GTIN, &f.BrandOwner, &f.BrandName)
	if errors.Is(err, sql.ErrNoRows) {
		return Food{}, err
	}
	if err != nil {
		return Food{}, fmt.Errorf("scanning food: %w", err)
	}
	return f, nil
}
