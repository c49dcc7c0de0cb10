package upload

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

type (
	SessionStatus string
	ChunkStatus   int

	// chunk is one contiguous byte range of the source file, transmitted
	// as a single unit. Chunk state is guarded by the owning session.
	chunk struct {
		partNumber int
		offset     int64
		length     int64
		status     ChunkStatus
		etag       string
	}

	// Progress is a point-in-time snapshot of a sessions transfer state,
	// emitted after every successfully transmitted chunk.
	Progress struct {
		SessionID        uuid.UUID     `json:"session_id"`
		BytesTransferred int64         `json:"bytes_transferred"`
		TotalBytes       int64         `json:"total_bytes"`
		Rate             float64       `json:"rate_bytes_per_second"`
		Remaining        time.Duration `json:"estimated_remaining"`
	}

	// Session tracks one in-flight transfer. It is owned exclusively by
	// the coordinator for its lifetime and is safe for concurrent use by
	// the chunk workers.
	Session struct {
		mu sync.Mutex

		id               uuid.UUID
		storageKey       string
		filename         string
		contentType      string
		category         string
		fileSize         int64
		chunkSize        int64
		chunks           []*chunk
		status           SessionStatus
		bytesTransferred int64
		rate             float64
		startedAt        time.Time
		failureReason    string

		cancel func()
	}
)

const (
	ACTIVE    SessionStatus = "ACTIVE"
	COMPLETED SessionStatus = "COMPLETED"
	CANCELLED SessionStatus = "CANCELLED"
	FAILED    SessionStatus = "FAILED"

	CHUNK_PENDING ChunkStatus = iota
	CHUNK_UPLOADED
	CHUNK_FAILED
)

// rateSmoothing is the weight given to the most recent chunks transfer
// rate when updating the sessions moving average.
const rateSmoothing = 0.3

func newSession(storageKey, filename, contentType, category string, fileSize, chunkSize int64) *Session {
	session := &Session{
		id:          uuid.New(),
		storageKey:  storageKey,
		filename:    filename,
		contentType: contentType,
		category:    category,
		fileSize:    fileSize,
		chunkSize:   chunkSize,
		status:      ACTIVE,
		startedAt:   time.Now(),
	}

	part := 1
	for offset := int64(0); offset < fileSize; offset += chunkSize {
		length := chunkSize
		if remaining := fileSize - offset; remaining < length {
			length = remaining
		}

		session.chunks = append(session.chunks, &chunk{partNumber: part, offset: offset, length: length})
		part++
	}

	return session
}

func (session *Session) ID() uuid.UUID      { return session.id }
func (session *Session) StorageKey() string { return session.storageKey }
func (session *Session) Filename() string   { return session.filename }
func (session *Session) Category() string   { return session.category }
func (session *Session) FileSize() int64    { return session.fileSize }

func (session *Session) Status() SessionStatus {
	session.mu.Lock()
	defer session.mu.Unlock()

	return session.status
}

// FailureReason returns the reason string recorded when the session
// transitioned to FAILED, or an empty string otherwise.
func (session *Session) FailureReason() string {
	session.mu.Lock()
	defer session.mu.Unlock()

	return session.failureReason
}

// markChunkUploaded transitions the chunk provided to CHUNK_UPLOADED and
// accounts its bytes toward the progress counter exactly once: a chunk
// which was already counted (e.g. a retransmission of a chunk that had
// in fact completed on the wire) reports false and leaves the counter
// untouched. The counter never exceeds the file size and never decreases.
func (session *Session) markChunkUploaded(c *chunk, etag string, elapsed time.Duration) bool {
	session.mu.Lock()
	defer session.mu.Unlock()

	if c.status == CHUNK_UPLOADED {
		return false
	}

	c.status = CHUNK_UPLOADED
	c.etag = etag
	session.bytesTransferred += c.length

	if elapsed > 0 {
		instantaneous := float64(c.length) / elapsed.Seconds()
		if session.rate == 0 {
			session.rate = instantaneous
		} else {
			session.rate = rateSmoothing*instantaneous + (1-rateSmoothing)*session.rate
		}
	}

	return true
}

func (session *Session) markChunkFailed(c *chunk) {
	session.mu.Lock()
	defer session.mu.Unlock()

	c.status = CHUNK_FAILED
}

// completedChunks returns the part descriptors for every uploaded chunk,
// in part order, for the storage finalize call.
func (session *Session) completedChunks() []CompletedChunk {
	session.mu.Lock()
	defer session.mu.Unlock()

	parts := make([]CompletedChunk, 0, len(session.chunks))
	for _, c := range session.chunks {
		if c.status == CHUNK_UPLOADED {
			parts = append(parts, CompletedChunk{PartNumber: c.partNumber, ETag: c.etag})
		}
	}

	return parts
}

func (session *Session) transitionTo(status SessionStatus, reason string) {
	session.mu.Lock()
	defer session.mu.Unlock()

	// Terminal states are sticky; a late worker error cannot
	// reverse a completion and vice versa.
	if session.status != ACTIVE {
		return
	}

	session.status = status
	session.failureReason = reason
}

// Progress reports the sessions cumulative transfer state, including the
// moving-average rate and the estimated time remaining derived from it.
func (session *Session) Progress() Progress {
	session.mu.Lock()
	defer session.mu.Unlock()

	progress := Progress{
		SessionID:        session.id,
		BytesTransferred: session.bytesTransferred,
		TotalBytes:       session.fileSize,
		Rate:             session.rate,
	}

	if session.rate > 0 {
		remaining := float64(session.fileSize-session.bytesTransferred) / session.rate
		progress.Remaining = time.Duration(remaining * float64(time.Second))
	}

	return progress
}

// Cancel signals the sessions transfer to stop. Cancellation is
// cooperative: in-flight chunk transmissions are aborted at the
// transport level, but a chunk whose transmission already completed
// on the wire may still be counted.
func (session *Session) Cancel() {
	if session.cancel != nil {
		session.cancel()
	}
}

// syncSessionMap is the coordinators session registry, keyed by session
// ID. Sessions are never evicted; completed and failed sessions remain
// queryable for status reporting.
type syncSessionMap struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]*Session
}

func (m *syncSessionMap) store(session *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.sessions == nil {
		m.sessions = make(map[uuid.UUID]*Session)
	}
	m.sessions[session.id] = session
}

func (m *syncSessionMap) load(id uuid.UUID) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.sessions[id]
}

func (m *syncSessionMap) all() []*Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	sessions := make([]*Session, 0, len(m.sessions))
	for _, session := range m.sessions {
		sessions = append(sessions, session)
	}

	return sessions
}
