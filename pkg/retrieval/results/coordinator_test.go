package results

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yonatan-nyo/Image-Audio-Retrieval/pkg/models"
)

func score(v float64) *float64 { return &v }

func matched(kind models.Kind, names ...string) *models.MatchResponse {
	resp := &models.MatchResponse{Kind: kind, Elapsed: 120 * time.Millisecond}
	for i, n := range names {
		resp.Items = append(resp.Items, models.Item{ID: uint(i + 1), Name: n, Similarity: score(0.9 - float64(i)*0.1)})
	}
	return resp
}

func songsPage(names ...string) models.Page {
	p := models.Page{Catalog: models.CatalogSongs, Page: 2, PageSize: 9, TotalItems: 20}
	for i, n := range names {
		p.Items = append(p.Items, models.Item{ID: uint(i + 1), Name: n})
	}
	return p
}

func TestLateOlderResponseIsDiscarded(t *testing.T) {
	c := New()
	older := c.Issue()
	newer := c.Issue()

	// Given the newer request resolves first
	require.True(t, c.SetMatchResults(newer, matched(models.KindAudio, "new")))

	// When the older one lands afterwards
	applied := c.SetMatchResults(older, matched(models.KindAudio, "old"))

	// Then it is dropped
	assert.False(t, applied)
	v := c.View()
	assert.Equal(t, newer, v.Epoch)
	assert.Equal(t, "new", v.Items[0].Name)
}

func TestBrowseWinsOverNewerMatch(t *testing.T) {
	c := New()
	browse := c.Issue()
	match := c.Issue()

	// Given a match issued after the page request is already shown
	require.True(t, c.SetMatchResults(match, matched(models.KindImage, "cover")))

	// When the page lands
	applied := c.SetBrowseResults(browse, songsPage("a"))

	// Then it replaces the match rows
	assert.True(t, applied)
	v := c.View()
	assert.Equal(t, ModeBrowse, v.Mode)
	assert.Greater(t, v.Epoch, match)
	assert.Equal(t, "a", v.Items[0].Name)
}

func TestBrowseMakesInFlightMatchesStale(t *testing.T) {
	c := New()
	match := c.Issue()
	browse := c.Issue()
	later := c.Issue()

	require.True(t, c.SetBrowseResults(browse, songsPage("a")))

	assert.False(t, c.SetMatchResults(match, matched(models.KindAudio, "old")))
	assert.False(t, c.SetMatchResults(later, matched(models.KindAudio, "raced")))
	assert.Equal(t, ModeBrowse, c.View().Mode)

	require.True(t, c.SetMatchResults(c.Issue(), matched(models.KindAudio, "next")))
	assert.Equal(t, ModeAudioMatch, c.View().Mode)
}

func TestOlderPageLosesToNewerPage(t *testing.T) {
	c := New()
	page1 := c.Issue()
	page2 := c.Issue()

	require.True(t, c.SetBrowseResults(page2, songsPage("second")))
	assert.False(t, c.SetBrowseResults(page1, songsPage("first")))
	assert.False(t, c.SetBrowseFailure(page1, errors.New("timeout")))

	v := c.View()
	assert.Equal(t, "second", v.Items[0].Name)
	assert.NoError(t, v.Err)
}

func TestBrowseFailureRaisesBanner(t *testing.T) {
	c := New()
	require.True(t, c.SetMatchResults(c.Issue(), matched(models.KindAudio, "hum")))
	page := c.Issue()
	inflight := c.Issue()

	require.True(t, c.SetBrowseFailure(page, errors.New("connection refused")))

	v := c.View()
	assert.EqualError(t, v.Err, "connection refused")
	assert.Equal(t, "hum", v.Items[0].Name)
	assert.False(t, c.SetMatchResults(inflight, matched(models.KindAudio, "late")))
}

func TestInvalidateKeepsViewAndDropsInFlight(t *testing.T) {
	c := New()
	require.True(t, c.SetBrowseResults(c.Issue(), songsPage("a", "b")))
	before := c.View()
	inflight := c.Issue()

	c.Invalidate()

	assert.Equal(t, before, c.View())
	assert.False(t, c.SetMatchResults(inflight, matched(models.KindAudio, "late")))
	assert.False(t, c.SetMatchFailure(inflight, errors.New("late failure")))
	assert.Equal(t, before, c.View())

	require.True(t, c.SetMatchResults(c.Issue(), matched(models.KindAudio, "fresh")))
}

func TestBrowseAfterImageMatchClearsScores(t *testing.T) {
	c := New()
	require.True(t, c.SetMatchResults(c.Issue(), matched(models.KindImage, "cover A", "cover B")))
	assert.Equal(t, "90%", c.View().Annotation(0))

	page := songsPage("x", "y")
	page.Items[0].Similarity = score(0.5) // even if the server sends one
	require.True(t, c.SetBrowseResults(c.Issue(), page))

	v := c.View()
	assert.Equal(t, ModeBrowse, v.Mode)
	for i, it := range v.Items {
		assert.Nil(t, it.Similarity)
		assert.Empty(t, v.Annotation(i))
	}
	assert.Equal(t, 2, v.Page)
	assert.Equal(t, 3, v.TotalPages)
}

func TestNoResultsDiffersFromFailure(t *testing.T) {
	c := New()
	require.True(t, c.SetBrowseResults(c.Issue(), songsPage("a", "b")))

	// Not found: empty list, no banner.
	require.True(t, c.SetMatchResults(c.Issue(), &models.MatchResponse{Kind: models.KindAudio, Outcome: models.OutcomeNotFound}))
	nf := c.View()
	assert.Equal(t, ModeAudioMatch, nf.Mode)
	assert.True(t, nf.NoResults)
	assert.NoError(t, nf.Err)
	assert.Empty(t, nf.Items)

	// Transport error: banner, prior items untouched.
	require.True(t, c.SetBrowseResults(c.Issue(), songsPage("a", "b")))
	require.True(t, c.SetMatchFailure(c.Issue(), errors.New("connection refused")))
	failed := c.View()
	assert.Equal(t, ModeBrowse, failed.Mode)
	assert.False(t, failed.NoResults)
	assert.EqualError(t, failed.Err, "connection refused")
	assert.Len(t, failed.Items, 2)
}

func TestFailureMakesOlderSuccessStale(t *testing.T) {
	c := New()
	older := c.Issue()
	newer := c.Issue()

	require.True(t, c.SetMatchFailure(newer, errors.New("boom")))
	assert.False(t, c.SetMatchResults(older, matched(models.KindAudio, "late")))
}

func TestStaleFailureIsSilent(t *testing.T) {
	c := New()
	older := c.Issue()
	require.True(t, c.SetMatchResults(c.Issue(), matched(models.KindAudio, "fresh")))

	assert.False(t, c.SetMatchFailure(older, errors.New("timeout")))
	assert.NoError(t, c.View().Err)
}

func TestNextSuccessClearsBanner(t *testing.T) {
	c := New()
	require.True(t, c.SetMatchFailure(c.Issue(), errors.New("boom")))
	require.True(t, c.SetMatchResults(c.Issue(), matched(models.KindAudio, "ok")))
	assert.NoError(t, c.View().Err)
}

func TestResetRestoresLastBrowse(t *testing.T) {
	c := New()
	require.True(t, c.SetBrowseResults(c.Issue(), songsPage("a", "b", "c")))
	inflight := c.Issue()
	require.True(t, c.SetMatchResults(c.Issue(), matched(models.KindAudio, "hum")))

	v := c.Reset()
	assert.Equal(t, ModeBrowse, v.Mode)
	assert.Len(t, v.Items, 3)
	assert.Equal(t, 2, v.Page)

	// Requests issued before the reset no longer apply.
	assert.False(t, c.SetMatchResults(inflight, matched(models.KindAudio, "late")))
}

func TestResetWithoutBrowse(t *testing.T) {
	c := New()
	v := c.Reset()
	assert.Equal(t, ModeBrowse, v.Mode)
	assert.Empty(t, v.Items)
	assert.Equal(t, 1, v.Page)
}

func TestViewsAreNotShared(t *testing.T) {
	c := New()
	resp := matched(models.KindAudio, "a")
	require.True(t, c.SetMatchResults(c.Issue(), resp))
	resp.Items[0].Name = "mutated"
	assert.Equal(t, "a", c.View().Items[0].Name)
}

func TestSubscribe(t *testing.T) {
	c := New()
	ch, cancel := c.Subscribe(4)

	c.SetBrowseResults(c.Issue(), songsPage("a"))
	select {
	case v := <-ch:
		assert.Equal(t, ModeBrowse, v.Mode)
	case <-time.After(time.Second):
		t.Fatal("no view delivered")
	}

	cancel()
	cancel()
	_, open := <-ch
	assert.False(t, open)
	c.SetBrowseResults(c.Issue(), songsPage("b")) // must not panic
}

func TestFormatSimilarity(t *testing.T) {
	tests := []struct {
		in   *float64
		want string
	}{
		{nil, ""},
		{score(0.873), "87%"},
		{score(0.875), "88%"},
		{score(1), "100%"},
		{score(0), "0%"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatSimilarity(tt.in))
	}
}
