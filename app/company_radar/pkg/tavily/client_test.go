package tavily

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iWorld-y/company_radar/app/company_radar/pkg/search"
)

func TestSearchAppliesDefaultsAndMapsAnswer(t *testing.T) {
	var got SearchRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tvly", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		json.NewEncoder(w).Encode(SearchResponse{
			Query:   "acme",
			Answer:  "Acme grows",
			Results: []SearchResult{{Title: "t", URL: "https://x", Content: "c", Score: 0.9}},
		})
	}))
	defer srv.Close()

	resp, err := NewClient("tvly", WithEndpoint(srv.URL)).Search(context.Background(), &search.Request{Query: "acme"})
	require.NoError(t, err)

	assert.Equal(t, "basic", got.SearchDepth)
	assert.Equal(t, "general", got.Topic)
	assert.Equal(t, 5, got.MaxResults)
	require.Len(t, resp.Results, 2)
	assert.Equal(t, search.KindOrganic, resp.Results[0].Kind)
	assert.Equal(t, 1, resp.Results[0].Position)
	assert.Equal(t, search.KindAnswerBox, resp.Results[1].Kind)
	assert.Equal(t, "Acme grows", resp.Results[1].Content)
}

func TestSearchError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := NewClient("bad", WithEndpoint(srv.URL)).Search(context.Background(), &search.Request{Query: "acme"})
	assert.Error(t, err)
}
