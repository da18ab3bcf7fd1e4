package db

import (
	"context"
	"io/fs"
	"path/filepath"
	"sync"
	"testing"
)

func TestMigrationsEmbedded(t *testing.T) {
	for _, d := range []Dialect{DialectPostgres, DialectSQLite} {
		ups, err := fs.Glob(migrationFS, "migrations/"+string(d)+"/*.up.sql")
		if err != nil {
			t.Fatalf("%s glob: %v", d, err)
		}
		downs, _ := fs.Glob(migrationFS, "migrations/"+string(d)+"/*.down.sql")
		if len(ups) == 0 || len(ups) != len(downs) {
			t.Fatalf("%s: up %v down %v", d, ups, downs)
		}
	}
}

func TestOpenSQLiteIsRepeatable(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "guild.db")

	for i := 0; i < 2; i++ {
		conn, err := OpenSQLite(ctx, path)
		if err != nil {
			t.Fatalf("open #%d: %v", i+1, err)
		}
		version, dirty, err := SchemaVersion(ctx, conn)
		if err != nil {
			t.Fatalf("open #%d: %v", i+1, err)
		}
		if version != 1 || dirty {
			t.Fatalf("open #%d: got version %d dirty=%v, want 1 clean", i+1, version, dirty)
		}
		var n int
		if err := conn.QueryRowContext(ctx, `SELECT COUNT(1) FROM sessions`).Scan(&n); err != nil {
			t.Fatalf("open #%d: sessions table: %v", i+1, err)
		}
		_ = conn.Close()
	}
}

func TestOpenSQLiteConcurrentStartup(t *testing.T) {
	ctx := context.Background()
	for round := 0; round < 10; round++ {
		path := filepath.Join(t.TempDir(), "guild.db")
		var wg sync.WaitGroup
		errs := make(chan error, 2)
		for i := 0; i < 2; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				conn, err := OpenSQLite(ctx, path)
				if err != nil {
					errs <- err
					return
				}
				_ = conn.Close()
			}()
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			t.Fatalf("round %d: %v", round, err)
		}
	}
}
