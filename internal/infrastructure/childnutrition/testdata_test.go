package childnutrition

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const (
	categoriesCSV = "\ufeffFood category code,Category description,Date added,Last modified\n" +
		"5,Poultry Products,01/01/2020,01/01/2024\n" +
		"9,Fruits and Fruit Juices,01/01/2020,01/01/2024\n" +
		"bad,Broken row,,\n"

	nutrientsCSV = "Nutrient code,Nutrient description,Nutrient description abbrev,Nutrient unit\n" +
		"208,Energy,ENERC_KCAL,kcal\n" +
		"203,Protein,PROCNT,g\n" +
		"307,\"Sodium, Na\",NA,mg\n"

	foodsCSV = "Cn code,Food category code,Descriptor,Abbreviated descriptor,Gtin,Brand owner name,Brand name,Fdc id\n" +
		"100001,5,\"Chicken, breast, grilled\",CHKN BRST GRLD,,,,171077\n" +
		"100002,5,\"Chicken nuggets, whole grain breaded\",CHKN NUGGET WG,00012345678905,Tyson Foods,Tyson,\n" +
		"100003,9,\"Apple, raw\",APPLE RAW,,,,\n" +
		"100004,5,,MISSING DESCRIPTOR,,,,\n"

	nutrientValuesCSV = "Cn Code,Nutrient code,Nutrient value,Per unit\n" +
		"100001,208,165,100g\n" +
		"100001,203,31,100g\n" +
		"100002,208,250,100g\n" +
		"100002,307,450,100g\n" +
		"100003,208,52,100g\n" +
		"100003,999,1,100g\n" +
		"999999,208,10,100g\n"

	weightsCSV = "Cn code,Sequence num,Amount,Measure description,Unit amount,Type of unit,Source code,Date added,Last modified\n" +
		"100003,2,1,medium,182,g,1,01/01/2020,01/01/2024\n" +
		"100003,1,1,\"cup, quartered or chopped\",125,g,1,01/01/2020,01/01/2024\n" +
		"100001,1,3,oz,85,g,1,01/01/2020,01/01/2024\n" +
		"100001,2,1,piece,,g,1,01/01/2020,01/01/2024\n" +
		"999999,1,1,cup,10,g,1,01/01/2020,01/01/2024\n"
)

// writeRelease writes a miniature CN release into a temp directory
func writeRelease(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	files := map[string]string{
		"CN.2025.05_CTGNME.csv": categoriesCSV,
		"CN.2025.05_NUTDES.csv": nutrientsCSV,
		"CN.2025.05_FDES.csv":   foodsCSV,
		"CN.2025.05_NUTVAL.csv": nutrientValuesCSV,
		"CN.2025.05_WGHT.csv":   weightsCSV,
	}
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
	return dir
}

// setupTestStore opens a fresh store in a temp directory
func setupTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "cn.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

// setupLoadedStore returns a store with the miniature release imported
func setupLoadedStore(t *testing.T) *Store {
	t.Helper()
	store := setupTestStore(t)
	_, err := NewImporter(store, nil).Import(context.Background(), ImportOptions{CSVDir: writeRelease(t), BatchSize: 2})
	require.NoError(t, err)
	return store
}
