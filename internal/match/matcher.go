package match

import (
	"context"
	"fmt"
	"strings"

	"github.com/adrg/strutil"
	"github.com/adrg/strutil/metrics"
	"github.com/kvistgaard/arkive/internal/http/tmdb"
	"github.com/kvistgaard/arkive/internal/media"
)

type (
	Config struct {
		// AutoMatchThreshold is the minimum confidence score at which a
		// resolution may commit a record to MATCHED automatically; anything
		// below is left for human review with the best guess attached.
		AutoMatchThreshold  int     `yaml:"auto_match_threshold" env:"MATCH_AUTO_THRESHOLD" env-default:"60"`
		PopularityThreshold float64 `yaml:"popularity_threshold" env:"MATCH_POPULARITY_THRESHOLD" env-default:"50"`
		VoteCountThreshold  int     `yaml:"vote_count_threshold" env:"MATCH_VOTE_COUNT_THRESHOLD" env-default:"1000"`
	}

	searcher interface {
		SearchMovie(ctx context.Context, query string, year *int) ([]tmdb.SearchResultItem, error)
		GetMovieDetails(ctx context.Context, externalID string) (*tmdb.MovieDetails, error)
	}

	// Matcher reconciles a parsed filename candidate against the external
	// catalog, producing a best-guess CatalogMatch and a bounded confidence
	// score describing how likely the two refer to the same work.
	Matcher struct {
		config   Config
		searcher searcher
	}
)

// The title contribution falls back to a character-set Jaccard
// similarity; 1-grams make the metric operate on characters rather
// than the library's default bigrams.
var jaccard = &metrics.Jaccard{CaseSensitive: false, NgramSize: 1}

func New(config Config, searcher searcher) *Matcher {
	return &Matcher{config: config, searcher: searcher}
}

func (matcher *Matcher) AutoMatchThreshold() int { return matcher.config.AutoMatchThreshold }

// Resolve performs a single catalog title search for the candidate
// provided and returns the result the catalog ranked highest. A nil
// match with a nil error means the catalog found nothing, which is a
// normal outcome; a non-nil error indicates a catalog/transport failure
// that the caller may retry.
func (matcher *Matcher) Resolve(ctx context.Context, candidate media.ParsedCandidate) (*media.CatalogMatch, error) {
	results, err := matcher.searcher.SearchMovie(ctx, candidate.Title, candidate.Year)
	if err != nil {
		return nil, fmt.Errorf("catalog search for %q failed: %w", candidate.Title, err)
	}

	if len(results) == 0 {
		return nil, nil
	}

	return searchResultToMatch(&results[0]), nil
}

// GetDetails fetches the full catalog record for the external ID
// provided; used by manual assignment where the human has already
// chosen the match.
func (matcher *Matcher) GetDetails(ctx context.Context, externalID string) (*media.CatalogMatch, error) {
	details, err := matcher.searcher.GetMovieDetails(ctx, externalID)
	if err != nil {
		return nil, fmt.Errorf("catalog details lookup for %q failed: %w", externalID, err)
	}

	return movieDetailsToMatch(details), nil
}

// Score computes a confidence score in [0,100] from the candidate and
// match provided. The score is a pure function of its inputs: the year
// agreement contributes up to 40, title agreement up to 30 and the
// catalog popularity signals up to 20. The result is always clamped
// to [0,100] before being returned.
func (matcher *Matcher) Score(candidate media.ParsedCandidate, match *media.CatalogMatch) int {
	if match == nil {
		return 0
	}

	score := 0

	if candidate.Year != nil {
		if matchYear, ok := match.ReleaseYear(); ok {
			diff := *candidate.Year - matchYear
			if diff < 0 {
				diff = -diff
			}

			switch {
			case diff == 0:
				score += 40
			case diff <= 1:
				score += 20
			}
		}
	}

	// An empty title on either side earns nothing; `strings.Contains`
	// treats the empty string as a substring of everything.
	candidateTitle := normalizeForComparison(candidate.Title)
	matchTitle := normalizeForComparison(match.Title)
	if candidateTitle != "" && matchTitle != "" {
		switch {
		case candidateTitle == matchTitle:
			score += 30
		case strings.Contains(matchTitle, candidateTitle) || strings.Contains(candidateTitle, matchTitle):
			score += 20
		default:
			score += int(strutil.Similarity(candidateTitle, matchTitle, jaccard) * 25)
		}
	}

	if match.Popularity > matcher.config.PopularityThreshold {
		score += 10
	}
	if match.VoteCount > matcher.config.VoteCountThreshold {
		score += 10
	}

	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}

	return score
}

func normalizeForComparison(title string) string {
	return strings.Join(strings.Fields(strings.ToLower(title)), " ")
}

func searchResultToMatch(item *tmdb.SearchResultItem) *media.CatalogMatch {
	return &media.CatalogMatch{
		ExternalID:  item.ID.String(),
		Title:       item.Title,
		ReleaseDate: item.ReleaseDate,
		Popularity:  item.Popularity,
		VoteCount:   item.VoteCount,
		Overview:    item.Overview,
		PosterPath:  item.PosterPath,
	}
}

func movieDetailsToMatch(details *tmdb.MovieDetails) *media.CatalogMatch {
	return &media.CatalogMatch{
		ExternalID:  details.ID.String(),
		Title:       details.Title,
		ReleaseDate: details.ReleaseDate,
		Popularity:  details.Popularity,
		VoteCount:   details.VoteCount,
		Overview:    details.Overview,
		PosterPath:  details.PosterPath,
	}
}
