package migration

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildDatabaseURL(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "file:/path/to/db.sqlite?mode=rwc&_foreign_keys=on", BuildDatabaseURL("/path/to/db.sqlite"))
}

func TestNewMigrator_InvalidConfig(t *testing.T) {
	t.Parallel()

	_, err := NewMigrator(nil)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "config is required")

	_, err = NewMigrator(&Config{DatabaseURL: ""})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "database URL is required")
}

func TestNewMigratorFromPath_EmptyPath(t *testing.T) {
	t.Parallel()

	_, err := NewMigratorFromPath("")
	assert.Error(t, err)
}

func TestMigrator_SQLiteIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	migrator, err := NewMigratorFromPath(dbPath)
	require.NoError(t, err)
	defer migrator.Close()

	ctx := context.Background()

	version, dirty, err := migrator.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint(0), version)
	assert.False(t, dirty)

	require.NoError(t, migrator.Up(ctx))

	version, dirty, err = migrator.Version(ctx)
	require.NoError(t, err)
	assert.Greater(t, version, uint(0))
	assert.False(t, dirty)

	statuses, err := migrator.Status(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, statuses)

	info, err := migrator.Info(ctx)
	require.NoError(t, err)
	assert.Greater(t, info.CurrentVersion, uint(0))
	assert.Equal(t, info.TotalMigrations, info.AppliedMigrations)
	assert.Equal(t, 0, info.PendingMigrations)

	require.NoError(t, migrator.Down(ctx))

	newVersion, _, err := migrator.Version(ctx)
	require.NoError(t, err)
	assert.Less(t, newVersion, version)
}

func TestMigrator_GetAvailableMigrations(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping test that requires CGO in short mode")
	}

	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	migrator, err := NewMigratorFromPath(dbPath)
	require.NoError(t, err)
	defer migrator.Close()

	migrations, err := migrator.getAvailableMigrations()
	require.NoError(t, err)
	assert.NotEmpty(t, migrations)

	for i := 1; i < len(migrations); i++ {
		assert.Greater(t, migrations[i].version, migrations[i-1].version)
	}
}

func TestCLI_RunVersion_NoneApplied(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping test that requires CGO in short mode")
	}

	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	migrator, err := NewMigratorFromPath(dbPath)
	require.NoError(t, err)
	defer migrator.Close()

	cli := NewCLI(migrator)

	r, w, _ := os.Pipe()
	cli.SetOutput(w)

	require.NoError(t, cli.RunVersion(context.Background()))

	w.Close()
	buf := make([]byte, 1024)
	n, _ := r.Read(buf)
	assert.Contains(t, string(buf[:n]), "No migrations applied yet")
}
