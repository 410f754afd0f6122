package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/papertrans/papertrans/internal/paper"
)

func TestSearchPapers_Modes(t *testing.T) {
	ts := newTestServer(t)
	ts.papers.results = []*paper.Metadata{{ID: "task0001", Title: "Attention Is All You Need"}}

	cases := []struct {
		url      string
		wantMode string
		wantArg  string
	}{
		{"/api/v1/papers?q=attention", "search", "attention"},
		{"/api/v1/papers?domain=nlp", "domain", "nlp"},
		{"/api/v1/papers?keyword=transformer", "keyword", "transformer"},
		{"/api/v1/papers", "list", ""},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, tc.url, nil)
		resp := httptest.NewRecorder()
		ts.router.ServeHTTP(resp, req)

		require.Equal(t, http.StatusOK, resp.Code, tc.url)

		var body struct {
			Papers []*paper.Metadata `json:"papers"`
		}
		require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
		require.Len(t, body.Papers, 1, tc.url)
		assert.Equal(t, "Attention Is All You Need", body.Papers[0].Title)

		mode, arg := ts.papers.searchMode()
		assert.Equal(t, tc.wantMode, mode, tc.url)
		assert.Equal(t, tc.wantArg, arg, tc.url)
	}
}

func TestSearchPapers_InvalidLimit(t *testing.T) {
	ts := newTestServer(t)

	for _, url := range []string{"/api/v1/papers?limit=abc", "/api/v1/papers?limit=-3"} {
		req := httptest.NewRequest(http.MethodGet, url, nil)
		resp := httptest.NewRecorder()
		ts.router.ServeHTTP(resp, req)
		assert.Equal(t, http.StatusBadRequest, resp.Code, url)
	}
}

func TestGetPaper(t *testing.T) {
	ts := newTestServer(t)

	year := 2017
	require.NoError(t, ts.papers.Upsert(context.Background(), &paper.Metadata{
		ID:      "task0001",
		Title:   "Attention Is All You Need",
		TitleZH: "注意力就是一切",
		Domain:  "nlp",
		Year:    &year,
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/papers/task0001", nil)
	resp := httptest.NewRecorder()
	ts.router.ServeHTTP(resp, req)

	require.Equal(t, http.StatusOK, resp.Code)

	var got paper.Metadata
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &got))
	assert.Equal(t, "注意力就是一切", got.TitleZH)
	require.NotNil(t, got.Year)
	assert.Equal(t, 2017, *got.Year)
}

func TestGetPaper_NotFound(t *testing.T) {
	ts := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/papers/missing1", nil)
	resp := httptest.NewRecorder()
	ts.router.ServeHTTP(resp, req)

	assert.Equal(t, http.StatusNotFound, resp.Code)
}
