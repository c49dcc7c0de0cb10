package api

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/kvistgaard/arkive/internal/api/medias"
	"github.com/kvistgaard/arkive/internal/api/uploads"
	"github.com/kvistgaard/arkive/internal/api/util"
	"github.com/kvistgaard/arkive/internal/http/websocket"
	"github.com/kvistgaard/arkive/pkg/logger"
)

// Socket command titles. Commands give connected clients a way to
// interrogate current state over the same connection that delivers
// activity updates, without falling back to REST polling.
const (
	CommandUploadIndex  = "UPLOAD_INDEX"
	CommandUploadStatus = "UPLOAD_STATUS"
	CommandRecordIndex  = "RECORD_INDEX"
	CommandRecordStatus = "RECORD_STATUS"
)

// socketGateway services the client-initiated websocket commands,
// answering them from the same services that back the REST controllers.
type socketGateway struct {
	uploadService uploads.Service
	mediaService  medias.Service
}

func newSocketGateway(uploadService uploads.Service, mediaService medias.Service) *socketGateway {
	return &socketGateway{uploadService: uploadService, mediaService: mediaService}
}

// bind attaches the gateways command handlers and its connection
// callback to the hub provided. Must be called before the hub starts.
func (gateway *socketGateway) bind(hub *websocket.SocketHub) {
	hub.BindCommand(CommandUploadIndex, gateway.uploadIndex).
		BindCommand(CommandUploadStatus, gateway.uploadStatus).
		BindCommand(CommandRecordIndex, gateway.recordIndex).
		BindCommand(CommandRecordStatus, gateway.recordStatus)

	hub.WithConnectionCallback(gateway.connectionPayload)
}

// connectionPayload furnishes the welcome message with the state a new
// client needs before the first update arrives.
func (gateway *socketGateway) connectionPayload() map[string]any {
	payload := map[string]any{
		"uploads": util.ApplyConversion(gateway.uploadService.AllSessions(), uploads.NewDto),
	}

	if records, err := gateway.mediaService.ListRecords(); err == nil {
		payload["records"] = util.ApplyConversion(records, medias.NewDto)
	} else {
		log.Emit(logger.ERROR, "Failed to include records in welcome payload: %v\n", err)
	}

	return payload
}

func (gateway *socketGateway) uploadIndex(hub *websocket.SocketHub, message *websocket.SocketMessage) error {
	dtos := util.ApplyConversion(gateway.uploadService.AllSessions(), uploads.NewDto)
	hub.Send(message.FormReply("COMMAND_SUCCESS", map[string]any{"payload": dtos}, websocket.Response))
	return nil
}

func (gateway *socketGateway) uploadStatus(hub *websocket.SocketHub, message *websocket.SocketMessage) error {
	id, err := extractIdArgument(message)
	if err != nil {
		return err
	}

	session := gateway.uploadService.Session(id)
	if session == nil {
		return fmt.Errorf("no upload session with ID %s", id)
	}

	hub.Send(message.FormReply("COMMAND_SUCCESS", map[string]any{"payload": uploads.NewDto(session)}, websocket.Response))
	return nil
}

func (gateway *socketGateway) recordIndex(hub *websocket.SocketHub, message *websocket.SocketMessage) error {
	records, err := gateway.mediaService.ListRecords()
	if err != nil {
		return err
	}

	hub.Send(message.FormReply("COMMAND_SUCCESS", map[string]any{"payload": util.ApplyConversion(records, medias.NewDto)}, websocket.Response))
	return nil
}

func (gateway *socketGateway) recordStatus(hub *websocket.SocketHub, message *websocket.SocketMessage) error {
	id, err := extractIdArgument(message)
	if err != nil {
		return err
	}

	record, err := gateway.mediaService.GetRecord(id)
	if err != nil {
		return err
	}

	hub.Send(message.FormReply("COMMAND_SUCCESS", map[string]any{"payload": medias.NewDto(record)}, websocket.Response))
	return nil
}

func extractIdArgument(message *websocket.SocketMessage) (uuid.UUID, error) {
	if err := message.ValidateArguments(map[string]string{"id": "string"}); err != nil {
		return uuid.Nil, err
	}

	id, err := uuid.Parse(message.Body["id"].(string))
	if err != nil {
		return uuid.Nil, fmt.Errorf("argument 'id' is not a valid UUID: %w", err)
	}

	return id, nil
}
