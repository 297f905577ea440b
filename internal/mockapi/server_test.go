package mockapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yonatan-nyo/Image-Audio-Retrieval/pkg/logger"
	"github.com/yonatan-nyo/Image-Audio-Retrieval/pkg/models"
	"github.com/yonatan-nyo/Image-Audio-Retrieval/pkg/retrieval/catalog"
	"github.com/yonatan-nyo/Image-Audio-Retrieval/pkg/retrieval/dispatch"
)

func newTestServer(t *testing.T, cfg Config) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(NewServer(DefaultCatalog(4, 5), cfg, logger.Discard()).Handler())
	t.Cleanup(srv.Close)
	return srv
}

func TestListPaginatesAndSearches(t *testing.T) {
	srv := newTestServer(t, DefaultConfig())

	resp, err := http.Get(srv.URL + "/api/songs?page=3&page_size=9")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var lr ListResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&lr))
	assert.Equal(t, 20, lr.TotalItems)
	require.Len(t, lr.Data, 2)
	assert.Equal(t, uint(19), lr.Data[0].ID)

	resp2, err := http.Get(srv.URL + "/api/albums?search=album%2003")
	require.NoError(t, err)
	defer resp2.Body.Close()

	var albums ListResponse
	require.NoError(t, json.NewDecoder(resp2.Body).Decode(&albums))
	assert.Equal(t, 1, albums.TotalItems)
	assert.Equal(t, "uploads/albums/3.png", albums.Data[0].PicFilePath)
}

func TestListRejectsBadPage(t *testing.T) {
	srv := newTestServer(t, DefaultConfig())

	resp, err := http.Get(srv.URL + "/api/songs?page=zero")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	var er ErrorResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&er))
	assert.Equal(t, "Bad Request", er.Error)
}

func TestClientsAgainstMockAPI(t *testing.T) {
	// Given: a mock API that accepts every item
	cfg := DefaultConfig()
	cfg.MinSimilarity = 0
	cfg.MaxResults = 3
	srv := newTestServer(t, cfg)

	// When: both clients talk to it
	cat := catalog.New(srv.URL+"/api", catalog.WithLogger(logger.Discard()))
	page, err := cat.Albums(context.Background(), catalog.Request{Page: 1})
	require.NoError(t, err)

	d := dispatch.New(srv.URL+"/api", dispatch.WithLogger(logger.Discard()))
	blob := models.Blob{Data: []byte("some query bytes"), Filename: "cover.png", ContentType: "image/png"}
	resp, err := d.Submit(context.Background(), blob, models.KindImage)
	require.NoError(t, err)

	// Then: pages and ranked results decode into the domain model
	assert.Equal(t, 4, page.TotalItems)
	assert.Len(t, page.Items, 4)

	assert.Equal(t, models.OutcomeMatched, resp.Outcome)
	require.Len(t, resp.Items, 3)
	for i := 1; i < len(resp.Items); i++ {
		assert.GreaterOrEqual(t, *resp.Items[i-1].Similarity, *resp.Items[i].Similarity)
	}
}

func TestSearchWithNoMatchesIsNotFound(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinSimilarity = 2
	srv := newTestServer(t, cfg)

	d := dispatch.New(srv.URL+"/api", dispatch.WithLogger(logger.Discard()))
	blob := models.Blob{Data: []byte("RIFF"), Filename: "audio.wav", ContentType: "audio/wav"}
	resp, err := d.Submit(context.Background(), blob, models.KindAudio)

	require.NoError(t, err)
	assert.True(t, resp.NoMatch())
	assert.Equal(t, models.OutcomeNotFound, resp.Outcome)
}

func TestRankIsDeterministic(t *testing.T) {
	items := DefaultCatalog(1, 8).Songs
	first := rank(items, []byte("clip"), 0, 0)
	second := rank(items, []byte("clip"), 0, 0)

	require.Len(t, first, 8)
	for i := range first {
		assert.Equal(t, first[i].ID, second[i].ID)
	}
}

func TestLoadCatalog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	fixture := `songs:
  - id: 1
    name: Blue
    audioFilePath: uploads/1.mid
    albumId: 1
albums:
  - id: 1
    name: Colors
    picFilePath: uploads/1.png
`
	require.NoError(t, os.WriteFile(path, []byte(fixture), 0o644))

	c, err := LoadCatalog(path)
	require.NoError(t, err)
	require.Len(t, c.Songs, 1)
	assert.Equal(t, "Blue", c.Songs[0].Name)
	assert.Equal(t, uint(1), c.Songs[0].AlbumID)
	assert.Equal(t, "uploads/1.png", c.Albums[0].PicFilePath)

	empty := filepath.Join(t.TempDir(), "empty.yaml")
	require.NoError(t, os.WriteFile(empty, []byte("songs: []\n"), 0o644))
	_, err = LoadCatalog(empty)
	assert.Error(t, err)
}

func TestCORSPreflight(t *testing.T) {
	srv := newTestServer(t, DefaultConfig())

	req, err := http.NewRequest(http.MethodOptions, srv.URL+"/api/songs", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}
