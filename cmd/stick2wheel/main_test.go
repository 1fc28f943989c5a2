package main

import (
	"bytes"
	"context"
	"log"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/stick2wheel/internal/db"
	"github.com/banshee-data/stick2wheel/internal/telemetry"
	"github.com/banshee-data/stick2wheel/internal/wheel"
)

func TestRecordSessionFailureIsLogged(t *testing.T) {
	database, err := db.NewDB(filepath.Join(t.TempDir(), "closed.db"))
	require.NoError(t, err)
	require.NoError(t, database.Close())

	var buf bytes.Buffer
	log.SetOutput(&buf)
	t.Cleanup(func() { log.SetOutput(os.Stderr) })

	hub := telemetry.NewHub()
	defer hub.Close()

	err = recordSession(context.Background(), database, hub, "pad", wheel.DefaultParams())
	assert.NoError(t, err, "a failed recording must not stop the filter group")
	assert.Contains(t, buf.String(), "recording stopped")
}
