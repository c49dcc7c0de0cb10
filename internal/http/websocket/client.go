package websocket

import (
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/kvistgaard/arkive/pkg/logger"
)

// socketClient wraps a single upgraded websocket connection. Writes are
// serialized by the clients mutex as gorilla connections permit only
// one concurrent writer.
type socketClient struct {
	id      *uuid.UUID
	socket  *websocket.Conn
	writeMu sync.Mutex
}

// SendMessage marshals the message provided and writes it to the
// underlying connection as a single text frame.
func (client *socketClient) SendMessage(message *SocketMessage) error {
	client.writeMu.Lock()
	defer client.writeMu.Unlock()

	return client.socket.WriteJSON(message)
}

// Read consumes frames from the connection until it closes, forwarding
// each decoded message (stamped with this clients ID as origin) on the
// channel provided. Frames that fail to decode are dropped with a log.
func (client *socketClient) Read(receiveCh chan *SocketMessage) error {
	for {
		_, data, err := client.socket.ReadMessage()
		if err != nil {
			return err
		}

		var message SocketMessage
		if err := json.Unmarshal(data, &message); err != nil {
			socketLogger.Emit(logger.WARNING, "Discarding malformed frame from client {%v}: %v\n", client.id, err)
			continue
		}

		message.Origin = client.id
		receiveCh <- &message
	}
}

// Close closes the underlying connection. Any blocked Read returns.
func (client *socketClient) Close() error {
	return client.socket.Close()
}
