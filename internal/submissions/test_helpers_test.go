package submissions

import (
	"context"
	"io"
	"testing"
	"time"

	"picture-backend/internal/shared/storage/db"
	"picture-backend/internal/shared/telemetry"
)

const testPicture = "iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAYAAAAfFcSJAAAADUlEQVR42mNkYPhfDwAChAI9jU77ygAAAABJRU5ErkJggg=="

func validCandidate() Candidate {
	return Candidate{
		Email:           "test@example.com",
		PictureData:     testPicture,
		PictureFilename: "p.png",
		PictureMimeType: "image/png",
	}
}

func quietLogs(t *testing.T) {
	t.Helper()
	t.Cleanup(telemetry.SetOutput(io.Discard))
}

// fixedClock returns successive times one second apart starting at start.
func fixedClock(start time.Time) func() time.Time {
	next := start
	return func() time.Time {
		now := next
		next = next.Add(time.Second)
		return now
	}
}

func newSQLiteRepo(t *testing.T) *SQLRepo {
	t.Helper()
	ctx := context.Background()
	sqlDB, dialect, err := db.Open(ctx, "sqlite://:memory:", db.DefaultMigrateOptions())
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = sqlDB.Close() })
	if err := db.RunMigrations(ctx, sqlDB, dialect); err != nil {
		t.Fatalf("migrate sqlite: %v", err)
	}
	return NewSQLRepo(sqlDB, dialect)
}

// repoFactories runs store contract tests against every Repo implementation.
func repoFactories() map[string]func(t *testing.T) Repo {
	return map[string]func(t *testing.T) Repo{
		"memory": func(t *testing.T) Repo { return NewMemoryRepo() },
		"sqlite": func(t *testing.T) Repo { return newSQLiteRepo(t) },
	}
}
