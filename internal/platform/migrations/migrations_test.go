package migrations

import (
	"database/sql"
	"io"
	"os"
	"strings"
	"testing"

	_ "github.com/lib/pq"
)

func TestEmbeddedMigrationsAreSequential(t *testing.T) {
	src, err := Source()
	if err != nil {
		t.Fatalf("source: %v", err)
	}
	defer src.Close()

	version, err := src.First()
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	want := uint(1)
	for {
		if version != want {
			t.Fatalf("version = %d, want %d", version, want)
		}
		for _, read := range []func(uint) (io.ReadCloser, string, error){src.ReadUp, src.ReadDown} {
			r, _, err := read(version)
			if err != nil {
				t.Fatalf("read %d: %v", version, err)
			}
			body, _ := io.ReadAll(r)
			r.Close()
			if !strings.Contains(string(body), "TABLE") {
				t.Errorf("migration %d looks empty", version)
			}
		}
		next, err := src.Next(version)
		if err != nil {
			break
		}
		version = next
		want++
	}
	if want != 2 {
		t.Errorf("expected 2 migrations, saw %d", want)
	}
}

func TestApplyIntegration(t *testing.T) {
	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TEST_POSTGRES_DSN not set; skipping postgres integration test")
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer db.Close()

	if err := Apply(db); err != nil {
		t.Fatalf("apply: %v", err)
	}
	// second run is a no-op
	if err := Apply(db); err != nil {
		t.Fatalf("re-apply: %v", err)
	}
}
