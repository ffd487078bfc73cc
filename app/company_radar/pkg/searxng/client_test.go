package searxng

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iWorld-y/company_radar/app/company_radar/pkg/search"
)

func TestSearch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search", r.URL.Path)
		assert.Equal(t, "json", r.URL.Query().Get("format"))
		assert.Equal(t, "news", r.URL.Query().Get("categories"))
		assert.Equal(t, "zh-CN", r.URL.Query().Get("language"))
		w.Write([]byte(`{"query":"acme","results":[
			{"title":"a","url":"https://a","content":"ca"},
			{"title":"b","url":"https://b","content":"cb"},
			{"title":"c","url":"https://c","content":"cc"}],
			"answers":["Acme is big"]}`))
	}))
	defer srv.Close()

	resp, err := NewClient(srv.URL, 5).Search(context.Background(), &search.Request{
		Query: "acme", Topic: "news", MaxResults: 2, Language: "zh-CN",
	})
	require.NoError(t, err)
	require.Len(t, resp.Results, 3)
	assert.Equal(t, "https://b", resp.Results[1].URL)
	assert.Equal(t, 2, resp.Results[1].Position)
	assert.Equal(t, search.KindAnswerBox, resp.Results[2].Kind)
}
