package main

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/cloudvault/internal/server"
	"github.com/dmitrijs2005/cloudvault/internal/server/config"
	"github.com/dmitrijs2005/cloudvault/internal/server/models"
)

const opEmail = "op@example.com"

func runCmd(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

// stubApp builds a real in-memory app and lets the test seed it.
func stubApp(t *testing.T, seed func(*testing.T, *server.App)) *config.Config {
	t.Helper()
	var seen config.Config
	orig := newApp
	newApp = func(ctx context.Context, cfg *config.Config) (*server.App, error) {
		seen = *cfg
		app, err := orig(ctx, cfg)
		if err != nil {
			return nil, err
		}
		seed(t, app)
		return app, nil
	}
	t.Cleanup(func() { newApp = orig })
	return &seen
}

func registerOp(t *testing.T, app *server.App) *models.User {
	t.Helper()
	u, err := app.Engine.Users.Register(context.Background(), models.Registration{Name: "Op", Email: opEmail})
	require.NoError(t, err)
	return u
}

func TestFsck_Consistent(t *testing.T) {
	stubApp(t, func(t *testing.T, app *server.App) {
		u := registerOp(t, app)
		_, err := app.Engine.Folders.CreateFolder(context.Background(), u.ID, u.RootFolderID, "docs")
		require.NoError(t, err)
	})

	out, err := runCmd(t, "fsck", "--owner", opEmail)
	require.NoError(t, err)
	assert.Contains(t, out, "2 folders, 0 files")
	assert.Contains(t, out, "consistent")
}

func TestFsck_ReportsDrift(t *testing.T) {
	var docsID string
	stubApp(t, func(t *testing.T, app *server.App) {
		ctx := context.Background()
		u := registerOp(t, app)
		docs, err := app.Engine.Folders.CreateFolder(ctx, u.ID, u.RootFolderID, "docs")
		require.NoError(t, err)
		docsID = docs.ID
		// a delta with no file behind it
		require.NoError(t, app.Engine.Sizes.ApplyDelta(ctx, docs.ID, 7))
	})

	out, err := runCmd(t, "fsck", "--owner", opEmail)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "2 folders with size drift")
	assert.Contains(t, out, "FOLDER")
	assert.Contains(t, out, docsID)
}

func TestFsck_UnknownOwner(t *testing.T) {
	stubApp(t, func(*testing.T, *server.App) {})

	_, err := runCmd(t, "fsck", "--owner", "ghost@example.com")
	assert.Error(t, err)
}

func TestFsck_RequiresOwner(t *testing.T) {
	_, err := runCmd(t, "fsck")
	assert.ErrorContains(t, err, "owner")
}

func TestSweep_Empty(t *testing.T) {
	stubApp(t, func(*testing.T, *server.App) {})

	out, err := runCmd(t, "sweep")
	require.NoError(t, err)
	assert.Contains(t, out, "expired 0, deleted 0")
}

func TestConfigFileAndDSN(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vault.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"default_quota_bytes": 4096, "database_dsn": "postgres://file"}`), 0o600))

	seen := stubApp(t, func(*testing.T, *server.App) {})
	var gotDSN string
	orig := newApp
	newApp = func(ctx context.Context, cfg *config.Config) (*server.App, error) {
		gotDSN = cfg.DatabaseDSN
		cfg.DatabaseDSN = ""
		return orig(ctx, cfg)
	}
	t.Cleanup(func() { newApp = orig })

	_, err := runCmd(t, "--config", path, "--dsn", "postgres://flag", "sweep")
	require.NoError(t, err)
	assert.Equal(t, "postgres://flag", gotDSN)
	assert.Equal(t, int64(4096), seen.DefaultQuotaBytes)
	assert.Equal(t, "console", seen.LogFormat)
}

func TestConfigFileMissing(t *testing.T) {
	_, err := runCmd(t, "--config", filepath.Join(t.TempDir(), "absent.json"), "sweep")
	assert.ErrorContains(t, err, "read config")
}

func TestMigrate_NeedsDSN(t *testing.T) {
	_, err := runCmd(t, "migrate")
	assert.ErrorContains(t, err, "--dsn")
}

func TestMigrate_OpenError(t *testing.T) {
	orig := openPostgres
	var gotDSN string
	openPostgres = func(_ context.Context, dsn string) (*sql.DB, error) {
		gotDSN = dsn
		return nil, errors.New("db ping error")
	}
	t.Cleanup(func() { openPostgres = orig })

	_, err := runCmd(t, "migrate", "--dsn", "postgres://localhost/vault")
	assert.ErrorContains(t, err, "db ping error")
	assert.Equal(t, "postgres://localhost/vault", gotDSN)
}
