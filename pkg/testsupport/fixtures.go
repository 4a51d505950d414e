package testsupport

import (
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/robby3000/luxicle/internal/models"
)

// FixturePath resolves a file in this package's testdata directory, so tests in
// any package can share the same fixtures.
func FixturePath(filename string) string {
	_, file, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(file), "testdata", filename)
}

// LoadFixture reads a fixture file, failing the test when it is missing.
func LoadFixture(t testing.TB, path string) []byte {
	t.Helper()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to load fixture from %s: %v", path, err)
	}
	return data
}

// LoadFixtureJSON loads a fixture file and unmarshals it into dest.
func LoadFixtureJSON(t testing.TB, path string, dest any) {
	t.Helper()

	if err := json.Unmarshal(LoadFixture(t, path), dest); err != nil {
		t.Fatalf("failed to unmarshal JSON fixture from %s: %v", path, err)
	}
}

// Users returns the profiles in testdata/users.json.
func Users(t testing.TB) []models.UserProfile {
	t.Helper()

	var users []models.UserProfile
	LoadFixtureJSON(t, FixturePath("users.json"), &users)
	return users
}

// Catalog is the category and tag fixture set.
type Catalog struct {
	Categories []models.CreateCategoryInput `json:"categories"`
	Tags       []models.CreateTagInput      `json:"tags"`
}

func LoadCatalog(t testing.TB) Catalog {
	t.Helper()

	var c Catalog
	LoadFixtureJSON(t, FixturePath("catalog.json"), &c)
	return c
}
