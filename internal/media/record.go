package media

import (
	"strconv"
	"time"

	"github.com/google/uuid"
)

type (
	// RecordStatus is the lifecycle state of a MediaRecord. A record is
	// PENDING until a resolution attempt completes, MATCHED when automatic
	// resolution produced a confident catalog match, MANUAL when a human
	// assigned the match (automatic resolution must never override it), and
	// ERROR when the last resolution attempt failed in a retryable way.
	RecordStatus string

	// ParsedCandidate holds the attributes derived purely from a raw
	// filename. It is an immutable value with no identity of its own;
	// it is always embedded in a MediaRecord.
	ParsedCandidate struct {
		Title   string `json:"title"`
		Year    *int   `json:"year,omitempty"`
		Quality string `json:"quality,omitempty"`
		Source  string `json:"source,omitempty"`
		Codec   string `json:"codec,omitempty"`
		Group   string `json:"group,omitempty"`
	}

	// CatalogMatch is a candidate record returned by the external catalog
	// lookup service. ReleaseDate uses the catalog's YYYY-MM-DD form.
	CatalogMatch struct {
		ExternalID  string  `json:"external_id"`
		Title       string  `json:"title"`
		ReleaseDate string  `json:"release_date"`
		Popularity  float64 `json:"popularity"`
		VoteCount   int     `json:"vote_count"`
		Overview    string  `json:"overview,omitempty"`
		PosterPath  string  `json:"poster_path,omitempty"`
	}

	// MediaRecord is the durable, queryable representation of one ingested
	// file plus its resolved metadata and lifecycle status. Records are
	// created only once an upload session completes, and are mutated only
	// by the ingest service (automatic resolution or manual assignment).
	MediaRecord struct {
		ID               uuid.UUID
		StorageKey       string
		OriginalFilename string
		FileSize         int64
		Category         string
		Parsed           ParsedCandidate
		Match            *CatalogMatch
		Confidence       int
		Status           RecordStatus
		CreatedAt        time.Time
		UpdatedAt        time.Time
	}
)

const (
	PENDING RecordStatus = "PENDING"
	MATCHED RecordStatus = "MATCHED"
	MANUAL  RecordStatus = "MANUAL"
	ERROR   RecordStatus = "ERROR"
)

// ReleaseYear extracts the year component from the matches release
// date. The boolean return is false when the date is absent or not
// in the catalog's YYYY-MM-DD form.
func (match *CatalogMatch) ReleaseYear() (int, bool) {
	if len(match.ReleaseDate) < 4 {
		return 0, false
	}

	year, err := strconv.Atoi(match.ReleaseDate[:4])
	if err != nil {
		return 0, false
	}

	return year, true
}
