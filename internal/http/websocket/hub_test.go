package websocket_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	gorilla "github.com/gorilla/websocket"
	"github.com/kvistgaard/arkive/internal/http/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// frame mirrors the wire shape of SocketMessage for client-side decoding.
type frame struct {
	Title string         `json:"title"`
	Body  map[string]any `json:"arguments"`
	Id    int            `json:"id"`
	Type  int            `json:"type"`
}

// startHub runs the hub provided and serves it over a test HTTP server,
// returning the ws:// URL clients should dial. Commands must already be
// bound.
func startHub(t *testing.T, hub *websocket.SocketHub) string {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		hub.Start(ctx)
	}()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.UpgradeToSocket(w, r)
	}))

	t.Cleanup(func() {
		server.Close()
		cancel()
		<-done
	})

	return "ws" + strings.TrimPrefix(server.URL, "http")
}

// dialHub connects to the hub, retrying until its event loop is up.
func dialHub(t *testing.T, wsURL string) *gorilla.Conn {
	t.Helper()

	var conn *gorilla.Conn
	require.Eventually(t, func() bool {
		c, _, err := gorilla.DefaultDialer.Dial(wsURL, nil)
		if err != nil {
			return false
		}

		conn = c
		return true
	}, 5*time.Second, 10*time.Millisecond)

	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *gorilla.Conn) frame {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var received frame
	require.NoError(t, conn.ReadJSON(&received))
	return received
}

func Test_Hub_WelcomeCarriesConnectionPayload(t *testing.T) {
	t.Parallel()

	hub := websocket.NewSocketHub()
	hub.WithConnectionCallback(func() map[string]any {
		return map[string]any{"greeting": "hello"}
	})

	conn := dialHub(t, startHub(t, hub))
	welcome := readFrame(t, conn)

	assert.Equal(t, "CONNECTION_ESTABLISHED", welcome.Title)
	assert.Equal(t, int(websocket.Welcome), welcome.Type)
	assert.Equal(t, "hello", welcome.Body["greeting"])
	assert.NotEmpty(t, welcome.Body["client"])
}

func Test_Hub_BoundCommandReceivesReply(t *testing.T) {
	t.Parallel()

	hub := websocket.NewSocketHub()
	hub.BindCommand("PING", func(hub *websocket.SocketHub, message *websocket.SocketMessage) error {
		hub.Send(message.FormReply("COMMAND_SUCCESS", map[string]any{"pong": true}, websocket.Response))
		return nil
	})

	conn := dialHub(t, startHub(t, hub))
	readFrame(t, conn) // welcome

	require.NoError(t, conn.WriteJSON(frame{Title: "PING", Id: 42, Type: int(websocket.Command)}))

	reply := readFrame(t, conn)
	assert.Equal(t, "COMMAND_SUCCESS", reply.Title)
	assert.Equal(t, 42, reply.Id)
	assert.Equal(t, int(websocket.Response), reply.Type)
	assert.Equal(t, true, reply.Body["pong"])
}

func Test_Hub_UnknownCommandReceivesFailure(t *testing.T) {
	t.Parallel()

	hub := websocket.NewSocketHub()
	conn := dialHub(t, startHub(t, hub))
	readFrame(t, conn) // welcome

	require.NoError(t, conn.WriteJSON(frame{Title: "NO_SUCH_COMMAND", Id: 7, Type: int(websocket.Command)}))

	reply := readFrame(t, conn)
	assert.Equal(t, "COMMAND_FAILURE", reply.Title)
	assert.Equal(t, 7, reply.Id)
	assert.Equal(t, int(websocket.ErrorResponse), reply.Type)
	assert.Equal(t, "Unknown command", reply.Body["error"])
}

func Test_ValidateArguments(t *testing.T) {
	t.Parallel()

	tests := []struct {
		summary   string
		body      map[string]any
		required  map[string]string
		expectErr bool
	}{
		{
			summary:  "string and number present",
			body:     map[string]any{"id": "abc", "count": float64(3)},
			required: map[string]string{"id": "string", "count": "number"},
		},
		{
			summary:   "missing key",
			body:      map[string]any{},
			required:  map[string]string{"id": "string"},
			expectErr: true,
		},
		{
			summary:   "empty string rejected",
			body:      map[string]any{"id": ""},
			required:  map[string]string{"id": "string"},
			expectErr: true,
		},
		{
			summary:   "wrong type rejected",
			body:      map[string]any{"id": float64(4)},
			required:  map[string]string{"id": "string"},
			expectErr: true,
		},
	}

	for _, test := range tests {
		test := test
		t.Run(test.summary, func(t *testing.T) {
			t.Parallel()

			message := &websocket.SocketMessage{Body: test.body}
			err := message.ValidateArguments(test.required)
			if test.expectErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func Test_FormReply_TargetsOriginAndEchoesId(t *testing.T) {
	t.Parallel()

	origin := uuid.New()
	message := &websocket.SocketMessage{
		Title:  "RECORD_STATUS",
		Body:   map[string]any{"id": "abc"},
		Id:     13,
		Origin: &origin,
	}

	reply := message.FormReply("COMMAND_SUCCESS", map[string]any{"payload": "ok"}, websocket.Response)
	assert.Equal(t, 13, reply.Id)
	assert.Equal(t, &origin, reply.Target)
	assert.Equal(t, message.Body, reply.Body["command"])
}
