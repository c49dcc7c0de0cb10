package websocket

import (
	"fmt"

	"github.com/google/uuid"
)

type socketMessageType int

const (
	Update socketMessageType = iota
	Command
	Response
	ErrorResponse
	Welcome
)

// SocketMessage is one frame exchanged with a connected UI client. The
// Id field is echoed back on replies so the client can correlate them;
// Origin identifies the sending client, and Target (when set) restricts
// delivery to a single client rather than a broadcast.
type SocketMessage struct {
	Title  string         `json:"title"`
	Body   map[string]any `json:"arguments"`
	Id     int            `json:"id"`
	Type   socketMessageType `json:"type"`
	Origin *uuid.UUID     `json:"-"`
	Target *uuid.UUID     `json:"-"`
}

// ValidateArguments checks that the message body carries every key in
// the required map with the primitive type named ("string", "int" or
// "number"). JSON numbers arrive as float64.
func (message *SocketMessage) ValidateArguments(required map[string]string) error {
	const errFmt = "failed to validate key '%v' with type '%v' - %#v"

	for key, expectedType := range required {
		value, ok := message.Body[key]
		if !ok {
			return fmt.Errorf("failed to validate key '%v' - key is missing", key)
		}

		switch expectedType {
		case "number", "int":
			if _, ok := value.(float64); !ok {
				return fmt.Errorf(errFmt, key, expectedType, value)
			}
		case "string":
			str, ok := value.(string)
			if !ok || str == "" {
				return fmt.Errorf(errFmt, key, expectedType, value)
			}
		default:
			return fmt.Errorf(errFmt, key, expectedType, "unknown type")
		}
	}

	return nil
}

// FormReply returns a new message with the same id as this one, targeted
// back at its origin. The original body is embedded under "command" so
// the client can see which request the reply concerns.
func (message *SocketMessage) FormReply(replyTitle string, replyBody map[string]any, replyType socketMessageType) *SocketMessage {
	if replyBody != nil {
		replyBody["command"] = message.Body
	}

	return &SocketMessage{
		Title:  replyTitle,
		Body:   replyBody,
		Type:   replyType,
		Id:     message.Id,
		Target: message.Origin,
	}
}
