package testsupport

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadFixture(t *testing.T) {
	path := WriteFixture(t, "test.txt", []byte("test fixture content"))

	result := LoadFixture(t, path)
	if string(result) != "test fixture content" {
		t.Errorf("expected %q, got %q", "test fixture content", result)
	}
}

func TestLoadFixtureJSON(t *testing.T) {
	path := WriteFixture(t, "test.json", []byte(`{"name":"test","value":42}`))

	var result struct {
		Name  string `json:"name"`
		Value int    `json:"value"`
	}
	LoadFixtureJSON(t, path, &result)

	if result.Name != "test" || result.Value != 42 {
		t.Errorf("unexpected result %+v", result)
	}
}

func TestWriteFixture(t *testing.T) {
	path := WriteFixture(t, "config.yaml", []byte("log:\n  level: debug\n"))

	if filepath.Base(path) != "config.yaml" {
		t.Errorf("expected file name config.yaml, got %s", path)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("expected fixture to exist: %v", err)
	}
}

func TestFixturePath(t *testing.T) {
	if got := FixturePath("library.json"); got != filepath.Join("testdata", "library.json") {
		t.Errorf("unexpected fixture path %s", got)
	}
}

func TestSeedLibrary(t *testing.T) {
	db := OpenSQLite(t)
	lib := SeedLibrary(t, db)

	if len(lib.Genres) != 3 {
		t.Errorf("expected 3 genres, got %d", len(lib.Genres))
	}
	if len(lib.Authors) != 4 {
		t.Errorf("expected 4 authors, got %d", len(lib.Authors))
	}
	if len(lib.Books) != 5 {
		t.Errorf("expected 5 books, got %d", len(lib.Books))
	}
	if len(lib.Lendings) != 8 {
		t.Errorf("expected 8 lendings, got %d", len(lib.Lendings))
	}

	omens := lib.Books["9780060853983"]
	if len(omens.Authors) != 2 || omens.Authors[0].Name != "Terry Pratchett" || omens.Authors[1].Name != "Neil Gaiman" {
		t.Errorf("unexpected Good Omens authors %+v", omens.Authors)
	}

	for username, number := range map[string]string{"ada": "2026/1", "alan": "2026/2", "grace": "2026/3"} {
		if got := lib.Readers[username].Number; got != number {
			t.Errorf("expected %s to be reader %s, got %s", username, number, got)
		}
	}
}

func TestMemoryKV(t *testing.T) {
	kv := NewMemoryKV(t)
	ctx := context.Background()

	if err := kv.Set(ctx, "k", "v", time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, ok, err := kv.Get(ctx, "k")
	if err != nil || !ok || got != "v" {
		t.Errorf("expected v, got %q ok=%v err=%v", got, ok, err)
	}
}

func TestMiniRedisKV(t *testing.T) {
	mr, kv := NewMiniRedisKV(t)
	ctx := context.Background()

	if err := kv.Set(ctx, "k", "v", time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	if got, err := mr.Get("k"); err != nil || got != "v" {
		t.Errorf("expected miniredis to hold v, got %q err=%v", got, err)
	}
}
