package api

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/kvistgaard/arkive/internal/api/medias"
	"github.com/kvistgaard/arkive/internal/api/uploads"
	"github.com/kvistgaard/arkive/internal/http/websocket"
)

const (
	TitleUploadUpdate   = "UPLOAD_UPDATE"
	TitleUploadProgress = "UPLOAD_PROGRESS_UPDATE"
	TitleRecordUpdate   = "RECORD_UPDATE"
	TitleRecordResolved = "RECORD_RESOLVED"
)

type (
	UploadUpdate struct {
		UploadId uuid.UUID    `json:"upload_id"`
		Upload   *uploads.Dto `json:"upload"`
	}

	UploadProgressUpdate struct {
		UploadId uuid.UUID           `json:"upload_id"`
		Progress uploads.ProgressDto `json:"progress"`
	}

	RecordUpdate struct {
		RecordId uuid.UUID   `json:"record_id"`
		Record   *medias.Dto `json:"record"`
	}

	// broadcaster pushes state snapshots to every connected websocket
	// client. It re-fetches the resource named by the event so clients
	// always see current state rather than the state at dispatch time.
	broadcaster struct {
		socketHub     *websocket.SocketHub
		uploadService uploads.Service
		mediaService  medias.Service
	}
)

func newBroadcaster(socketHub *websocket.SocketHub, uploadService uploads.Service, mediaService medias.Service) *broadcaster {
	return &broadcaster{socketHub, uploadService, mediaService}
}

func (hub *broadcaster) BroadcastUploadUpdate(id uuid.UUID) error {
	session := hub.uploadService.Session(id)
	if session == nil {
		return fmt.Errorf("cannot broadcast update for upload %s: session not found", id)
	}

	hub.broadcast(TitleUploadUpdate, UploadUpdate{UploadId: id, Upload: uploads.NewDto(session)})
	return nil
}

func (hub *broadcaster) BroadcastUploadProgressUpdate(id uuid.UUID) error {
	session := hub.uploadService.Session(id)
	if session == nil {
		return fmt.Errorf("cannot broadcast progress for upload %s: session not found", id)
	}

	hub.broadcast(TitleUploadProgress, UploadProgressUpdate{UploadId: id, Progress: uploads.NewProgressDto(session.Progress())})
	return nil
}

func (hub *broadcaster) BroadcastRecordUpdate(id uuid.UUID) error {
	return hub.broadcastRecord(TitleRecordUpdate, id)
}

func (hub *broadcaster) BroadcastRecordResolved(id uuid.UUID) error {
	return hub.broadcastRecord(TitleRecordResolved, id)
}

func (hub *broadcaster) broadcastRecord(title string, id uuid.UUID) error {
	record, err := hub.mediaService.GetRecord(id)
	if err != nil {
		return fmt.Errorf("cannot broadcast update for record %s: %w", id, err)
	}

	hub.broadcast(title, RecordUpdate{RecordId: id, Record: medias.NewDto(record)})
	return nil
}

func (hub *broadcaster) broadcast(title string, update any) {
	hub.socketHub.Send(&websocket.SocketMessage{
		Title: title,
		Body:  map[string]any{"arguments": update},
		Type:  websocket.Update,
	})
}
