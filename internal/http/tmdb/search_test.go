package tmdb_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kvistgaard/arkive/internal/http/tmdb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSearcherForServer(server *httptest.Server) *tmdb.Config {
	return &tmdb.Config{APIKey: "test-api-key", BaseURL: server.URL, TimeoutSeconds: 5}
}

func Test_SearchMovie_DecodesRankedResults(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search/movie", r.URL.Path)
		assert.Equal(t, "test-api-key", r.URL.Query().Get("api_key"))
		assert.Equal(t, "Inception", r.URL.Query().Get("query"))
		assert.Equal(t, "2010", r.URL.Query().Get("year"))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"results": [
				{"id": 27205, "title": "Inception", "release_date": "2010-07-15", "popularity": 90.2, "vote_count": 34000, "poster_path": "/inception.jpg"},
				{"id": 64956, "title": "Inception: The Cobol Job", "release_date": "2010-12-07"}
			],
			"total_pages": 1,
			"total_results": 2
		}`))
	}))
	defer server.Close()

	searcher := tmdb.NewSearcher(*newSearcherForServer(server))
	year := 2010
	results, err := searcher.SearchMovie(context.Background(), "Inception", &year)
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, "27205", results[0].ID.String())
	assert.Equal(t, "Inception", results[0].Title)
	assert.Equal(t, "2010-07-15", results[0].ReleaseDate)
	assert.Equal(t, 34000, results[0].VoteCount)
}

func Test_SearchMovie_NoResultsIsNotAnError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"results": [], "total_pages": 0, "total_results": 0}`))
	}))
	defer server.Close()

	searcher := tmdb.NewSearcher(*newSearcherForServer(server))
	results, err := searcher.SearchMovie(context.Background(), "Nothing Like This Exists", nil)
	assert.NoError(t, err)
	assert.Empty(t, results)
}

func Test_SearchMovie_ErrorClassification(t *testing.T) {
	t.Parallel()

	tests := []struct {
		summary       string
		statusCode    int
		body          string
		wantRetryable bool
	}{
		{
			summary:       "rate limiting is retryable",
			statusCode:    http.StatusTooManyRequests,
			body:          `{"status_code": 25, "status_message": "rate limit exceeded"}`,
			wantRetryable: true,
		},
		{
			summary:       "server failure is retryable",
			statusCode:    http.StatusInternalServerError,
			body:          `{"status_code": 11, "status_message": "internal error"}`,
			wantRetryable: true,
		},
		{
			summary:       "authentication failure is not retryable",
			statusCode:    http.StatusUnauthorized,
			body:          `{"status_code": 7, "status_message": "invalid api key"}`,
			wantRetryable: false,
		},
	}

	for _, test := range tests {
		test := test
		t.Run(test.summary, func(t *testing.T) {
			t.Parallel()

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(test.statusCode)
				w.Write([]byte(test.body))
			}))
			defer server.Close()

			searcher := tmdb.NewSearcher(*newSearcherForServer(server))
			_, err := searcher.SearchMovie(context.Background(), "Anything", nil)
			require.Error(t, err)

			var failedErr *tmdb.FailedRequestError
			require.ErrorAs(t, err, &failedErr)
			assert.Equal(t, test.statusCode, failedErr.HTTPCode)
			assert.Equal(t, test.wantRetryable, failedErr.Retryable())
		})
	}
}

func Test_GetMovieDetails_DecodesRecord(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/movie/603", r.URL.Path)
		w.Write([]byte(`{"id": 603, "title": "The Matrix", "release_date": "1999-03-30", "popularity": 80.5, "vote_count": 24000, "runtime": 136}`))
	}))
	defer server.Close()

	searcher := tmdb.NewSearcher(*newSearcherForServer(server))
	details, err := searcher.GetMovieDetails(context.Background(), "603")
	require.NoError(t, err)

	assert.Equal(t, "603", details.ID.String())
	assert.Equal(t, "The Matrix", details.Title)
	assert.Equal(t, 136, details.Runtime)
}

func Test_GetMovieDetails_MalformedResponseIsRetryable(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`this is not json`))
	}))
	defer server.Close()

	searcher := tmdb.NewSearcher(*newSearcherForServer(server))
	_, err := searcher.GetMovieDetails(context.Background(), "603")
	require.Error(t, err)

	var unknownErr *tmdb.UnknownRequestError
	require.ErrorAs(t, err, &unknownErr)
	assert.True(t, unknownErr.Retryable())
}
