package uploads

import (
	"github.com/google/uuid"
	"github.com/kvistgaard/arkive/internal/upload"
)

type (
	UploadStateDto string

	// Dto is the response used by endpoints that return upload
	// sessions (e.g., list, get).
	Dto struct {
		Id            uuid.UUID      `json:"id"`
		StorageKey    string         `json:"storage_key"`
		Filename      string         `json:"filename"`
		Category      string         `json:"category"`
		FileSize      int64          `json:"file_size"`
		State         UploadStateDto `json:"state"`
		FailureReason string         `json:"failure_reason,omitempty"`
		Progress      ProgressDto    `json:"progress"`
	}

	ProgressDto struct {
		BytesTransferred   int64   `json:"bytes_transferred"`
		TotalBytes         int64   `json:"total_bytes"`
		BytesPerSecond     float64 `json:"bytes_per_second"`
		EstimatedRemaining float64 `json:"estimated_remaining_seconds"`
	}
)

const (
	ACTIVE    UploadStateDto = "ACTIVE"
	COMPLETED UploadStateDto = "COMPLETED"
	CANCELLED UploadStateDto = "CANCELLED"
	FAILED    UploadStateDto = "FAILED"
)

// NewDto creates an upload session Dto from the session model.
func NewDto(session *upload.Session) *Dto {
	return &Dto{
		Id:            session.ID(),
		StorageKey:    session.StorageKey(),
		Filename:      session.Filename(),
		Category:      session.Category(),
		FileSize:      session.FileSize(),
		State:         UploadStateModelToDto(session.Status()),
		FailureReason: session.FailureReason(),
		Progress:      NewProgressDto(session.Progress()),
	}
}

func NewProgressDto(progress upload.Progress) ProgressDto {
	return ProgressDto{
		BytesTransferred:   progress.BytesTransferred,
		TotalBytes:         progress.TotalBytes,
		BytesPerSecond:     progress.Rate,
		EstimatedRemaining: progress.Remaining.Seconds(),
	}
}

func UploadStateModelToDto(status upload.SessionStatus) UploadStateDto {
	switch status {
	case upload.ACTIVE:
		return ACTIVE
	case upload.COMPLETED:
		return COMPLETED
	case upload.CANCELLED:
		return CANCELLED
	case upload.FAILED:
		return FAILED
	}

	return UploadStateDto(status)
}
