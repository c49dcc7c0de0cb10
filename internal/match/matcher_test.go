package match_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/kvistgaard/arkive/internal/http/tmdb"
	"github.com/kvistgaard/arkive/internal/match"
	"github.com/kvistgaard/arkive/internal/media"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var defaultConfig = match.Config{
	AutoMatchThreshold:  60,
	PopularityThreshold: 50,
	VoteCountThreshold:  1000,
}

var errExpected = errors.New("test: expected error")

type fakeSearcher struct {
	searchResults []tmdb.SearchResultItem
	searchErr     error
	details       *tmdb.MovieDetails
	detailsErr    error

	lastQuery string
	lastYear  *int
}

func (fake *fakeSearcher) SearchMovie(_ context.Context, query string, year *int) ([]tmdb.SearchResultItem, error) {
	fake.lastQuery = query
	fake.lastYear = year
	return fake.searchResults, fake.searchErr
}

func (fake *fakeSearcher) GetMovieDetails(_ context.Context, _ string) (*tmdb.MovieDetails, error) {
	return fake.details, fake.detailsErr
}

func intPtr(v int) *int { return &v }

func Test_Resolve_ReturnsHighestRankedResult(t *testing.T) {
	t.Parallel()

	searcher := &fakeSearcher{searchResults: []tmdb.SearchResultItem{
		{ID: json.Number("27205"), Title: "Inception", ReleaseDate: "2010-07-15", Popularity: 90, VoteCount: 34000},
		{ID: json.Number("64956"), Title: "Inception: The Cobol Job", ReleaseDate: "2010-12-07"},
	}}
	matcher := match.New(defaultConfig, searcher)

	result, err := matcher.Resolve(context.Background(), media.ParsedCandidate{Title: "Inception", Year: intPtr(2010)})
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.Equal(t, "27205", result.ExternalID)
	assert.Equal(t, "Inception", result.Title)
	assert.Equal(t, "Inception", searcher.lastQuery)
	assert.Equal(t, 2010, *searcher.lastYear)
}

func Test_Resolve_EmptyCatalogResultIsNotAnError(t *testing.T) {
	t.Parallel()

	matcher := match.New(defaultConfig, &fakeSearcher{})

	result, err := matcher.Resolve(context.Background(), media.ParsedCandidate{Title: "Totally Unknown"})
	assert.NoError(t, err)
	assert.Nil(t, result)
}

func Test_Resolve_PropagatesCatalogFailure(t *testing.T) {
	t.Parallel()

	matcher := match.New(defaultConfig, &fakeSearcher{searchErr: errExpected})

	result, err := matcher.Resolve(context.Background(), media.ParsedCandidate{Title: "Anything"})
	assert.Nil(t, result)
	assert.ErrorIs(t, err, errExpected)
}

func Test_Score_NilMatchScoresZero(t *testing.T) {
	t.Parallel()

	matcher := match.New(defaultConfig, &fakeSearcher{})
	assert.Zero(t, matcher.Score(media.ParsedCandidate{Title: "Inception", Year: intPtr(2010)}, nil))
}

func Test_Score_ComponentContributions(t *testing.T) {
	t.Parallel()

	matcher := match.New(defaultConfig, &fakeSearcher{})

	tests := []struct {
		summary   string
		candidate media.ParsedCandidate
		match     media.CatalogMatch
		expected  int
	}{
		{
			summary:   "exact year and exact title",
			candidate: media.ParsedCandidate{Title: "Inception", Year: intPtr(2010)},
			match:     media.CatalogMatch{Title: "Inception", ReleaseDate: "2010-07-15"},
			expected:  70,
		},
		{
			summary:   "year within one of release",
			candidate: media.ParsedCandidate{Title: "Inception", Year: intPtr(2011)},
			match:     media.CatalogMatch{Title: "Inception", ReleaseDate: "2010-07-15"},
			expected:  50,
		},
		{
			summary:   "year too far from release",
			candidate: media.ParsedCandidate{Title: "Inception", Year: intPtr(2014)},
			match:     media.CatalogMatch{Title: "Inception", ReleaseDate: "2010-07-15"},
			expected:  30,
		},
		{
			summary:   "title differs only in case",
			candidate: media.ParsedCandidate{Title: "INCEPTION", Year: intPtr(2010)},
			match:     media.CatalogMatch{Title: "inception", ReleaseDate: "2010-07-15"},
			expected:  70,
		},
		{
			summary:   "candidate title is a substring of the match",
			candidate: media.ParsedCandidate{Title: "Inception", Year: intPtr(2010)},
			match:     media.CatalogMatch{Title: "Inception: The IMAX Experience", ReleaseDate: "2010-07-15"},
			expected:  60,
		},
		{
			summary:   "popularity and vote count bonuses",
			candidate: media.ParsedCandidate{Title: "Inception", Year: intPtr(2010)},
			match:     media.CatalogMatch{Title: "Inception", ReleaseDate: "2010-07-15", Popularity: 90, VoteCount: 34000},
			expected:  90,
		},
		{
			summary:   "no year on candidate skips the year component",
			candidate: media.ParsedCandidate{Title: "Inception"},
			match:     media.CatalogMatch{Title: "Inception", ReleaseDate: "2010-07-15"},
			expected:  30,
		},
		{
			summary:   "unparseable release date skips the year component",
			candidate: media.ParsedCandidate{Title: "Inception", Year: intPtr(2010)},
			match:     media.CatalogMatch{Title: "Inception", ReleaseDate: ""},
			expected:  30,
		},
		{
			summary:   "empty catalog title earns no title points",
			candidate: media.ParsedCandidate{Title: "Inception", Year: intPtr(2010)},
			match:     media.CatalogMatch{Title: "", ReleaseDate: "2010-07-15"},
			expected:  40,
		},
	}

	for _, test := range tests {
		test := test
		t.Run(test.summary, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, test.expected, matcher.Score(test.candidate, &test.match))
		})
	}
}

func Test_Score_AlwaysWithinBounds(t *testing.T) {
	t.Parallel()

	matcher := match.New(defaultConfig, &fakeSearcher{})

	candidates := []media.ParsedCandidate{
		{Title: "Inception", Year: intPtr(2010)},
		{Title: "", Year: nil},
		{Title: "Qxv Zzkt Prw"},
	}
	matches := []media.CatalogMatch{
		{Title: "Inception", ReleaseDate: "2010-07-15", Popularity: 900, VoteCount: 99999},
		{Title: ""},
		{Title: "A Completely Different Film", ReleaseDate: "1951-01-01"},
	}

	for _, candidate := range candidates {
		for _, catalogMatch := range matches {
			catalogMatch := catalogMatch
			score := matcher.Score(candidate, &catalogMatch)
			assert.GreaterOrEqual(t, score, 0)
			assert.LessOrEqual(t, score, 100)
		}
	}
}

func Test_Score_IsDeterministic(t *testing.T) {
	t.Parallel()

	matcher := match.New(defaultConfig, &fakeSearcher{})
	candidate := media.ParsedCandidate{Title: "The Matrix Reloaded", Year: intPtr(2003)}
	catalogMatch := &media.CatalogMatch{Title: "The Matrix Revolutions", ReleaseDate: "2003-11-05", Popularity: 60, VoteCount: 9000}

	first := matcher.Score(candidate, catalogMatch)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, matcher.Score(candidate, catalogMatch))
	}
}

func Test_GetDetails_ConvertsCatalogRecord(t *testing.T) {
	t.Parallel()

	searcher := &fakeSearcher{details: &tmdb.MovieDetails{
		ID: json.Number("603"), Title: "The Matrix", ReleaseDate: "1999-03-30", Popularity: 80, VoteCount: 24000,
	}}
	matcher := match.New(defaultConfig, searcher)

	result, err := matcher.GetDetails(context.Background(), "603")
	require.NoError(t, err)
	assert.Equal(t, "603", result.ExternalID)
	assert.Equal(t, "The Matrix", result.Title)
	assert.Equal(t, "1999-03-30", result.ReleaseDate)
}
