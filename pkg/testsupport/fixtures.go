package testsupport

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

// LoadFixture reads a fixture file relative to the test package directory.
func LoadFixture(t testing.TB, path string) []byte {
	t.Helper()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to load fixture from %s: %v", path, err)
	}

	return data
}

// LoadFixtureJSON loads a JSON fixture and unmarshals it into dest.
func LoadFixtureJSON(t testing.TB, path string, dest any) {
	t.Helper()

	decodeJSON(t, path, LoadFixture(t, path), dest)
}

// WriteFixture writes data to a file inside a fresh test directory and returns
// its path. Useful for config files.
func WriteFixture(t testing.TB, name string, data []byte) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("failed to write fixture %s: %v", path, err)
	}
	return path
}

// FixturePath constructs a path to a fixture file in the testdata directory.
func FixturePath(filename string) string {
	return filepath.Join("testdata", filename)
}

func decodeJSON(t testing.TB, name string, data []byte, dest any) {
	t.Helper()

	if err := json.Unmarshal(data, dest); err != nil {
		t.Fatalf("failed to unmarshal JSON fixture from %s: %v", name, err)
	}
}
