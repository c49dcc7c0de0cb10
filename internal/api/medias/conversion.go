package medias

import (
	"time"

	"github.com/google/uuid"
	"github.com/kvistgaard/arkive/internal/media"
)

type (
	RecordStateDto string

	// Dto is the response used by endpoints that return media
	// records (e.g., list, get, resolve, assign).
	Dto struct {
		Id               uuid.UUID      `json:"id"`
		StorageKey       string         `json:"storage_key"`
		OriginalFilename string         `json:"original_filename"`
		FileSize         int64          `json:"file_size"`
		Category         string         `json:"category"`
		Parsed           ParsedDto      `json:"parsed"`
		Match            *MatchDto      `json:"match"`
		Confidence       int            `json:"confidence"`
		State            RecordStateDto `json:"state"`
		CreatedAt        time.Time      `json:"created_at"`
		UpdatedAt        time.Time      `json:"updated_at"`
	}

	ParsedDto struct {
		Title   string `json:"title"`
		Year    *int   `json:"year"`
		Quality string `json:"quality,omitempty"`
		Source  string `json:"source,omitempty"`
		Codec   string `json:"codec,omitempty"`
		Group   string `json:"group,omitempty"`
	}

	MatchDto struct {
		ExternalID  string  `json:"external_id"`
		Title       string  `json:"title"`
		ReleaseDate string  `json:"release_date"`
		Popularity  float64 `json:"popularity"`
		VoteCount   int     `json:"vote_count"`
		Overview    string  `json:"overview,omitempty"`
		PosterPath  string  `json:"poster_url_path,omitempty"`
	}
)

const (
	PENDING RecordStateDto = "PENDING"
	MATCHED RecordStateDto = "MATCHED"
	MANUAL  RecordStateDto = "MANUAL"
	ERROR   RecordStateDto = "ERROR"
)

// NewDto creates a media record Dto from the record model.
func NewDto(record *media.MediaRecord) *Dto {
	var match *MatchDto
	if record.Match != nil {
		match = &MatchDto{
			ExternalID:  record.Match.ExternalID,
			Title:       record.Match.Title,
			ReleaseDate: record.Match.ReleaseDate,
			Popularity:  record.Match.Popularity,
			VoteCount:   record.Match.VoteCount,
			Overview:    record.Match.Overview,
			PosterPath:  record.Match.PosterPath,
		}
	}

	return &Dto{
		Id:               record.ID,
		StorageKey:       record.StorageKey,
		OriginalFilename: record.OriginalFilename,
		FileSize:         record.FileSize,
		Category:         record.Category,
		Parsed: ParsedDto{
			Title:   record.Parsed.Title,
			Year:    record.Parsed.Year,
			Quality: record.Parsed.Quality,
			Source:  record.Parsed.Source,
			Codec:   record.Parsed.Codec,
			Group:   record.Parsed.Group,
		},
		Match:      match,
		Confidence: record.Confidence,
		State:      RecordStateModelToDto(record.Status),
		CreatedAt:  record.CreatedAt,
		UpdatedAt:  record.UpdatedAt,
	}
}

func RecordStateModelToDto(status media.RecordStatus) RecordStateDto {
	switch status {
	case media.PENDING:
		return PENDING
	case media.MATCHED:
		return MATCHED
	case media.MANUAL:
		return MANUAL
	case media.ERROR:
		return ERROR
	}

	return RecordStateDto(status)
}
