package tmdb

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

const DefaultBaseURL = "https://api.themoviedb.org/3"

type (
	Config struct {
		APIKey string `yaml:"api_key" env:"TMDB_API_KEY" env-required:"true"`
		// BaseURL is overridable for testing; the production default
		// is applied by NewSearcher when left empty.
		BaseURL        string `yaml:"base_url" env:"TMDB_BASE_URL"`
		TimeoutSeconds int    `yaml:"timeout_seconds" env:"TMDB_TIMEOUT_SECONDS" env-default:"15"`
	}

	searchResult struct {
		Results      []SearchResultItem `json:"results"`
		TotalPages   int                `json:"total_pages"`
		TotalResults int                `json:"total_results"`
	}

	// SearchResultItem is a single ranked stub from the TMDB search
	// endpoint. Only the fields the matcher scores against (plus those
	// the UI wants to display) are retained.
	SearchResultItem struct {
		ID          json.Number `json:"id"`
		Title       string      `json:"title"`
		Overview    string      `json:"overview"`
		ReleaseDate string      `json:"release_date"`
		Popularity  float64     `json:"popularity"`
		VoteCount   int         `json:"vote_count"`
		PosterPath  string      `json:"poster_path"`
	}

	// MovieDetails is the full record for a single movie, fetched by
	// external ID during manual assignment.
	MovieDetails struct {
		ID          json.Number `json:"id"`
		Title       string      `json:"title"`
		Overview    string      `json:"overview"`
		ReleaseDate string      `json:"release_date"`
		Popularity  float64     `json:"popularity"`
		VoteCount   int         `json:"vote_count"`
		PosterPath  string      `json:"poster_path"`
		Tagline     string      `json:"tagline"`
		Runtime     int         `json:"runtime"`
	}

	// tmdbSearcher is the primary catalog lookup client for the ingest
	// service. See https://developer.themoviedb.org/reference/intro/getting-started
	// for information on the TMDB API.
	tmdbSearcher struct {
		config Config
		client *http.Client
	}
)

func NewSearcher(config Config) *tmdbSearcher {
	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}
	if config.TimeoutSeconds <= 0 {
		config.TimeoutSeconds = 15
	}

	return &tmdbSearcher{
		config: config,
		client: &http.Client{Timeout: time.Duration(config.TimeoutSeconds) * time.Second},
	}
}

// SearchMovie queries the TMDB search endpoint with the free-text query
// provided, optionally narrowed by a release year. The results are
// returned in the order TMDB ranked them; an empty slice means the
// catalog found nothing, which is NOT an error.
func (searcher *tmdbSearcher) SearchMovie(ctx context.Context, query string, year *int) ([]SearchResultItem, error) {
	params := url.Values{}
	params.Set("api_key", searcher.config.APIKey)
	params.Set("query", query)
	if year != nil {
		params.Set("year", fmt.Sprintf("%d", *year))
	}

	path := fmt.Sprintf("%s/search/movie?%s", searcher.config.BaseURL, params.Encode())
	var result searchResult
	if err := searcher.getJSONResponse(ctx, path, &result); err != nil {
		return nil, err
	}

	return result.Results, nil
}

// GetMovieDetails queries the TMDB API for the movie with the provided
// external ID. This ID must be a valid TMDB ID, or else an error is returned.
func (searcher *tmdbSearcher) GetMovieDetails(ctx context.Context, externalID string) (*MovieDetails, error) {
	params := url.Values{}
	params.Set("api_key", searcher.config.APIKey)

	path := fmt.Sprintf("%s/movie/%s?%s", searcher.config.BaseURL, url.PathEscape(externalID), params.Encode())
	var details MovieDetails
	if err := searcher.getJSONResponse(ctx, path, &details); err != nil {
		return nil, err
	}

	return &details, nil
}

func (searcher *tmdbSearcher) getJSONResponse(ctx context.Context, urlPath string, target any) error {
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, urlPath, nil)
	if err != nil {
		return &UnknownRequestError{fmt.Sprintf("failed to construct GET(%s) to TMDB: %s", urlPath, err.Error())}
	}

	response, err := searcher.client.Do(request)
	if err != nil {
		return &UnknownRequestError{fmt.Sprintf("failed to perform GET(%s) to TMDB: %s", urlPath, err.Error())}
	}
	defer response.Body.Close()

	body, err := io.ReadAll(response.Body)
	if err != nil {
		return &UnknownRequestError{fmt.Sprintf("failed to read TMDB response body: %s", err.Error())}
	}

	if response.StatusCode != http.StatusOK {
		var tmdbErr tmdbError
		if err := json.Unmarshal(body, &tmdbErr); err != nil {
			return &FailedRequestError{HTTPCode: response.StatusCode, message: "non-OK response could not be unmarshalled", tmdbCode: -1}
		}

		return &FailedRequestError{HTTPCode: response.StatusCode, message: tmdbErr.StatusMessage, tmdbCode: tmdbErr.StatusCode}
	}

	if err := json.Unmarshal(body, target); err != nil {
		return &UnknownRequestError{fmt.Sprintf("response JSON could not be unmarshalled: %s", err.Error())}
	}

	return nil
}

type (
	tmdbError struct {
		StatusCode    int    `json:"status_code"`
		StatusMessage string `json:"status_message"`
	}

	// FailedRequestError is returned when TMDB replied with a non-OK
	// status code; Retryable reports whether the failure class is
	// transient (rate limiting, server-side failure).
	FailedRequestError struct {
		HTTPCode int
		tmdbCode int
		message  string
	}

	// UnknownRequestError covers transport-level failures (timeouts,
	// connection resets, malformed payloads). Always retryable.
	UnknownRequestError struct{ reason string }
)

func (err *FailedRequestError) Error() string {
	return fmt.Sprintf("request failure (HTTP %d): %s", err.HTTPCode, err.message)
}

func (err *FailedRequestError) Retryable() bool {
	return err.HTTPCode == http.StatusTooManyRequests || err.HTTPCode >= http.StatusInternalServerError
}

func (err *UnknownRequestError) Error() string {
	return fmt.Sprintf("unknown error occurred while communicating with TMDB: %s", err.reason)
}

func (err *UnknownRequestError) Retryable() bool { return true }
