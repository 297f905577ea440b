package cmd

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yonatan-nyo/Image-Audio-Retrieval/internal/mockapi"
	"github.com/yonatan-nyo/Image-Audio-Retrieval/pkg/logger"
	"github.com/yonatan-nyo/Image-Audio-Retrieval/pkg/retrieval/schedule"
)

// setup isolates the command from the user's config and returns the base
// URL of a mock catalog API.
func setup(t *testing.T, minSimilarity float64) string {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	for _, k := range []string{"RETRIEVAL_API_URL", "RETRIEVAL_PAGE_SIZE", "RETRIEVAL_HISTORY_DB", "RETRIEVAL_INPUT_FORMAT", "RETRIEVAL_INPUT_DEVICE"} {
		t.Setenv(k, "")
	}
	t.Setenv("RETRIEVAL_TEMP_DIR", t.TempDir())
	t.Setenv("LOG_LEVEL", "error")

	cfg := mockapi.DefaultConfig()
	cfg.MinSimilarity = minSimilarity
	srv := httptest.NewServer(mockapi.NewServer(mockapi.DefaultCatalog(2, 10), cfg, logger.Discard()).Handler())
	t.Cleanup(srv.Close)
	return srv.URL + "/api"
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	out := &bytes.Buffer{}
	root.SetOut(out)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestVersionCmd(t *testing.T) {
	out, err := run(t, "version")

	require.NoError(t, err)
	assert.Contains(t, out, "retrieval "+Version)
}

func TestVersionCmd_JSON(t *testing.T) {
	out, err := run(t, "version", "--json")
	require.NoError(t, err)

	var info versionInfo
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.Equal(t, Version, info.Version)
	assert.NotEmpty(t, info.GoVersion)
}

func TestSongsCmd_PrintsPage(t *testing.T) {
	// Given: a catalog of 20 songs
	api := setup(t, 0)

	// When: the second page is requested
	out, err := run(t, "songs", "--api", api, "--page", "2")

	// Then: a table with the page footer is printed
	require.NoError(t, err)
	assert.Contains(t, out, "NAME")
	assert.Contains(t, out, "Track 02-01")
	assert.Contains(t, out, "Page 2/3 · 20 items")
}

func TestAlbumsCmd_JSON(t *testing.T) {
	api := setup(t, 0)

	out, err := run(t, "albums", "--api", api, "--search", "album 02", "--json")
	require.NoError(t, err)

	var v jsonView
	require.NoError(t, json.Unmarshal([]byte(out), &v))
	assert.Equal(t, "browse", v.Mode)
	require.Len(t, v.Items, 1)
	assert.Equal(t, "Album 02", v.Items[0].Name)
	assert.Nil(t, v.Items[0].Similarity)
}

func TestMatchCmd_ReportsEveryFile(t *testing.T) {
	// Given: one readable file and one missing file
	api := setup(t, 0)
	good := writeFile(t, "hum.wav", "RIFF....WAVEdata")
	missing := filepath.Join(t.TempDir(), "missing.wav")

	// When: both are matched
	out, err := run(t, "match", "--api", api, good, missing)

	// Then: the good file has results and the missing one is reported
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 2 files failed")
	assert.Contains(t, out, "== "+good)
	assert.Contains(t, out, "SIMILARITY")
	assert.Contains(t, out, "== "+missing)
	assert.Contains(t, out, "failed:")
}

func TestMatchCmd_NoMatch(t *testing.T) {
	api := setup(t, 2)
	file := writeFile(t, "hum.wav", "RIFF....WAVEdata")

	out, err := run(t, "match", "--api", api, file)

	require.NoError(t, err)
	assert.Contains(t, out, "No similar items found.")
}

func TestMatchCmd_RequiresInput(t *testing.T) {
	api := setup(t, 0)

	_, err := run(t, "match", "--api", api)

	assert.Error(t, err)
}

func TestMatchImageAndHistory(t *testing.T) {
	api := setup(t, 0)
	hist := filepath.Join(t.TempDir(), "history.sqlite3")
	cover := writeFile(t, "cover.png", "\x89PNG fake cover")

	out, err := run(t, "match-image", "--api", api, "--history", hist, "--json", cover)
	require.NoError(t, err)

	var v jsonView
	require.NoError(t, json.Unmarshal([]byte(out), &v))
	assert.Equal(t, "image-match", v.Mode)
	require.NotEmpty(t, v.Items)
	assert.NotNil(t, v.Items[0].Similarity)

	out, err = run(t, "history", "--api", api, "--history", hist)
	require.NoError(t, err)
	assert.Contains(t, out, "cover.png")
	assert.Contains(t, out, "matched")
}

func TestHistoryCmd_RequiresPath(t *testing.T) {
	setup(t, 0)

	_, err := run(t, "history")

	assert.ErrorContains(t, err, "no history file configured")
}

func TestReportCapture(t *testing.T) {
	var buf bytes.Buffer
	waiting := false

	done, err := reportCapture(&buf, schedule.Event{Type: schedule.EventChunk, Seq: 2}, &waiting)
	assert.False(t, done)
	assert.NoError(t, err)
	assert.True(t, waiting)
	assert.Contains(t, buf.String(), "clip 2 recorded")

	done, err = reportCapture(&buf, schedule.Event{Type: schedule.EventError, Err: assert.AnError}, &waiting)
	assert.True(t, done)
	assert.ErrorIs(t, err, assert.AnError)
}
