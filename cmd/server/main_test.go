package main

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rpggio/entityhub/internal/config"
	"github.com/rpggio/entityhub/internal/memory"
	"github.com/rpggio/entityhub/internal/sqlite"
)

func TestParseLogLevel(t *testing.T) {
	require.Equal(t, slog.LevelDebug, parseLogLevel("debug"))
	require.Equal(t, slog.LevelWarn, parseLogLevel("warn"))
	require.Equal(t, slog.LevelError, parseLogLevel("error"))
	require.Equal(t, slog.LevelInfo, parseLogLevel("verbose"))
}

func TestOpenBackend(t *testing.T) {
	ctx := context.Background()

	b, err := openBackend(ctx, config.DBConfig{Driver: config.DriverMemory})
	require.NoError(t, err)
	require.IsType(t, &memory.Backend{}, b)

	path := filepath.Join(t.TempDir(), "nested", "entityhub.db")
	b, err = openBackend(ctx, config.DBConfig{Driver: config.DriverSQLite, Path: path})
	require.NoError(t, err)
	require.IsType(t, &sqlite.Backend{}, b)
	require.NoError(t, b.Ping(ctx))
	require.NoError(t, b.Close(ctx))
	require.FileExists(t, path)

	_, err = openBackend(ctx, config.DBConfig{Driver: "postgres"})
	require.ErrorContains(t, err, "unknown driver")
}

func TestDriverNamesMatchConfig(t *testing.T) {
	require.Equal(t, []string{
		config.DriverDynamo, config.DriverMemory, config.DriverMongo, config.DriverSQLite,
	}, driverNames())
}

func TestLogFileWriter_KeepsTail(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "server.log")
	w, file, err := openLogFile(path, 20, 10)
	require.NoError(t, err)
	defer file.Close()

	_, err = w.Write([]byte(strings.Repeat("a", 15)))
	require.NoError(t, err)
	_, err = w.Write([]byte("0123456789"))
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "0123456789", string(data))
}
