package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	gorilla "github.com/gorilla/websocket"
	"github.com/kvistgaard/arkive/internal/http/websocket"
	"github.com/kvistgaard/arkive/internal/media"
	"github.com/kvistgaard/arkive/internal/upload"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type (
	frame struct {
		Title string         `json:"title"`
		Body  map[string]any `json:"arguments"`
		Id    int            `json:"id"`
		Type  int            `json:"type"`
	}

	stubUploadService struct{}

	stubMediaService struct {
		records map[uuid.UUID]*media.MediaRecord
	}
)

func (stubUploadService) StartUpload(upload.Request) (*upload.Session, error) {
	return nil, errors.New("not supported")
}
func (stubUploadService) Session(uuid.UUID) *upload.Session { return nil }
func (stubUploadService) AllSessions() []*upload.Session    { return []*upload.Session{} }
func (stubUploadService) CancelUpload(uuid.UUID) error      { return nil }

func (service *stubMediaService) GetRecord(id uuid.UUID) (*media.MediaRecord, error) {
	record, ok := service.records[id]
	if !ok {
		return nil, media.ErrRecordNotFound
	}

	return record, nil
}

func (service *stubMediaService) ListRecords(...media.RecordStatus) ([]*media.MediaRecord, error) {
	out := make([]*media.MediaRecord, 0, len(service.records))
	for _, record := range service.records {
		out = append(out, record)
	}

	return out, nil
}

func (service *stubMediaService) AutoResolve(context.Context, uuid.UUID) error { return nil }
func (service *stubMediaService) ManualAssign(context.Context, uuid.UUID, string) (*media.MediaRecord, error) {
	return nil, errors.New("not supported")
}

// newSocketConn stands up a hub with the gateways commands bound and
// returns a connected client.
func newSocketConn(t *testing.T, mediaService *stubMediaService) *gorilla.Conn {
	t.Helper()

	hub := websocket.NewSocketHub()
	newSocketGateway(stubUploadService{}, mediaService).bind(hub)

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

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
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

func Test_Socket_WelcomeContainsUploadsAndRecords(t *testing.T) {
	t.Parallel()

	record := &media.MediaRecord{ID: uuid.New(), Status: media.PENDING, Parsed: media.ParsedCandidate{Title: "Home Movie"}}
	mediaService := &stubMediaService{records: map[uuid.UUID]*media.MediaRecord{record.ID: record}}

	conn := newSocketConn(t, mediaService)
	welcome := readFrame(t, conn)

	require.Equal(t, "CONNECTION_ESTABLISHED", welcome.Title)
	assert.NotEmpty(t, welcome.Body["client"])

	uploads, ok := welcome.Body["uploads"].([]any)
	require.True(t, ok)
	assert.Empty(t, uploads)

	records, ok := welcome.Body["records"].([]any)
	require.True(t, ok)
	require.Len(t, records, 1)
	recordBody, ok := records[0].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, record.ID.String(), recordBody["id"])
}

func Test_Socket_RecordStatusCommand(t *testing.T) {
	t.Parallel()

	record := &media.MediaRecord{ID: uuid.New(), Status: media.PENDING, Parsed: media.ParsedCandidate{Title: "Home Movie"}}
	mediaService := &stubMediaService{records: map[uuid.UUID]*media.MediaRecord{record.ID: record}}

	conn := newSocketConn(t, mediaService)
	readFrame(t, conn) // welcome

	require.NoError(t, conn.WriteJSON(frame{
		Title: CommandRecordStatus,
		Id:    3,
		Type:  int(websocket.Command),
		Body:  map[string]any{"id": record.ID.String()},
	}))

	reply := readFrame(t, conn)
	require.Equal(t, "COMMAND_SUCCESS", reply.Title)
	assert.Equal(t, 3, reply.Id)

	payload, ok := reply.Body["payload"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, record.ID.String(), payload["id"])
	assert.Equal(t, "PENDING", payload["state"])
}

func Test_Socket_UnknownUploadSessionFailsCommand(t *testing.T) {
	t.Parallel()

	conn := newSocketConn(t, &stubMediaService{})
	readFrame(t, conn) // welcome

	require.NoError(t, conn.WriteJSON(frame{
		Title: CommandUploadStatus,
		Id:    9,
		Type:  int(websocket.Command),
		Body:  map[string]any{"id": uuid.NewString()},
	}))

	reply := readFrame(t, conn)
	require.Equal(t, "COMMAND_FAILURE", reply.Title)
	assert.Equal(t, 9, reply.Id)
	assert.Contains(t, reply.Body["error"], "no upload session")
}

func Test_Socket_RecordStatusRequiresIdArgument(t *testing.T) {
	t.Parallel()

	conn := newSocketConn(t, &stubMediaService{})
	readFrame(t, conn) // welcome

	require.NoError(t, conn.WriteJSON(frame{
		Title: CommandRecordStatus,
		Id:    4,
		Type:  int(websocket.Command),
	}))

	reply := readFrame(t, conn)
	require.Equal(t, "COMMAND_FAILURE", reply.Title)
	assert.Equal(t, 4, reply.Id)
}
