package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/kvistgaard/arkive/internal/event"
	"github.com/kvistgaard/arkive/pkg/logger"
	"golang.org/x/sync/errgroup"
)

var log = logger.Get("UploadCoord")

type (
	Config struct {
		// ChunkSize is a tunable, not a constant the algorithm depends
		// on; the default is 32MiB.
		ChunkSize           int64 `yaml:"chunk_size_bytes" env:"UPLOAD_CHUNK_SIZE" env-default:"33554432"`
		MaxChunkAttempts    int   `yaml:"max_chunk_attempts" env:"UPLOAD_MAX_CHUNK_ATTEMPTS" env-default:"3"`
		Parallelism         int   `yaml:"parallelism" env:"UPLOAD_PARALLELISM" env-default:"3"`
		ChunkTimeoutSeconds int   `yaml:"chunk_timeout_seconds" env:"UPLOAD_CHUNK_TIMEOUT_SECONDS" env-default:"120"`
		RetryDelayMillis    int   `yaml:"retry_delay_ms" env:"UPLOAD_RETRY_DELAY_MS" env-default:"500"`
		MaxFileSize         int64 `yaml:"max_file_size_bytes" env:"UPLOAD_MAX_FILE_SIZE" env-default:"53687091200"`
	}

	// Request describes one file to transfer to durable storage. The
	// content type whitelist reflects the media containers the library
	// can serve.
	Request struct {
		SourcePath  string `json:"source_path" validate:"required"`
		ContentType string `json:"content_type" validate:"required,oneof=video/mp4 video/x-matroska video/quicktime video/x-msvideo video/webm"`
		Category    string `json:"category" validate:"omitempty,oneof=movie tv other"`
	}

	// WriteTarget is an opaque, time-limited write location issued by the
	// external credential collaborator. The coordinator never inspects it
	// beyond using the URL to transmit one chunk.
	WriteTarget struct {
		URL string
	}

	CompletedChunk struct {
		PartNumber int    `json:"part_number"`
		ETag       string `json:"etag"`
	}

	// TargetIssuer is the external collaborator responsible for issuing
	// per-chunk write credentials and for assembling/tearing down the
	// multipart object. Issuance mechanics are entirely opaque here.
	TargetIssuer interface {
		IssueChunkTarget(ctx context.Context, storageKey string, partNumber int, contentType string) (WriteTarget, error)
		Finalize(ctx context.Context, storageKey string, parts []CompletedChunk) error
		Abort(ctx context.Context, storageKey string) error
	}

	// Coordinator drives the transfer of files to durable object storage
	// as bounded-concurrency chunk sequences, owning retry, progress
	// reporting and cancellation for each session it starts. Sessions for
	// different files run independently; the only shared collaborator is
	// the target issuer.
	Coordinator struct {
		config   Config
		issuer   TargetIssuer
		client   *http.Client
		eventBus event.EventDispatcher
		validate *validator.Validate

		sessions syncSessionMap
	}
)

func New(config Config, issuer TargetIssuer, eventBus event.EventDispatcher) *Coordinator {
	if config.Parallelism <= 0 {
		config.Parallelism = 1
	}
	if config.MaxChunkAttempts <= 0 {
		config.MaxChunkAttempts = 1
	}

	return &Coordinator{
		config:   config,
		issuer:   issuer,
		client:   &http.Client{},
		eventBus: eventBus,
		validate: validator.New(),
	}
}

// StartUpload validates the request provided and, if acceptable, begins
// transferring the source file in the background, returning the session
// which tracks the transfer. Validation failure is fatal immediately;
// no chunk is sent.
func (coord *Coordinator) StartUpload(request Request) (*Session, error) {
	if err := coord.validate.Struct(request); err != nil {
		return nil, &ValidationError{reason: err.Error()}
	}

	info, err := os.Stat(request.SourcePath)
	if err != nil {
		return nil, &ValidationError{reason: fmt.Sprintf("source file could not be accessed: %s", err)}
	}
	if info.IsDir() {
		return nil, &ValidationError{reason: "source path is a directory"}
	}
	if info.Size() == 0 {
		return nil, &ValidationError{reason: "source file is empty"}
	}
	if info.Size() > coord.config.MaxFileSize {
		return nil, &ValidationError{reason: fmt.Sprintf("source file size %d exceeds limit %d", info.Size(), coord.config.MaxFileSize)}
	}

	category := request.Category
	if category == "" {
		category = "movie"
	}

	storageKey := fmt.Sprintf("uploads/%d-%s", time.Now().UnixMilli(), filepath.Base(request.SourcePath))
	session := newSession(storageKey, filepath.Base(request.SourcePath), request.ContentType, category, info.Size(), coord.config.ChunkSize)

	// The transfer deliberately outlives the request that started it;
	// only an explicit Cancel (or terminal failure) stops it.
	transferCtx, cancel := context.WithCancel(context.Background())
	session.cancel = cancel

	coord.sessions.store(session)

	log.Emit(logger.NEW, "Starting upload session %s for %s (%d bytes over %d chunks)\n",
		session.id, session.filename, session.fileSize, len(session.chunks))
	go coord.runTransfer(transferCtx, session, request.SourcePath)

	return session, nil
}

// Session returns the session with the ID provided, or nil
// if the coordinator does not know of it.
func (coord *Coordinator) Session(id uuid.UUID) *Session {
	return coord.sessions.load(id)
}

func (coord *Coordinator) AllSessions() []*Session {
	return coord.sessions.all()
}

// CancelUpload requests cooperative cancellation of the session with the
// ID provided. Chunks already fully uploaded are not rolled back here;
// multipart cleanup is the storage collaborators responsibility.
func (coord *Coordinator) CancelUpload(id uuid.UUID) error {
	session := coord.sessions.load(id)
	if session == nil {
		return fmt.Errorf("no upload session with ID %s", id)
	}

	session.Cancel()
	return nil
}

// runTransfer executes the chunk queue for the session provided with
// bounded concurrency and settles the session into a terminal state.
func (coord *Coordinator) runTransfer(ctx context.Context, session *Session, sourcePath string) {
	file, err := os.Open(sourcePath)
	if err != nil {
		coord.failSession(session, fmt.Sprintf("source file could not be opened: %s", err))
		return
	}
	defer file.Close()

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(coord.config.Parallelism)
	for _, c := range session.chunks {
		c := c
		group.Go(func() error {
			return coord.transferChunk(groupCtx, session, file, c)
		})
	}

	err = group.Wait()
	switch {
	case ctx.Err() != nil:
		// Cancelled via the session, not failed by a chunk.
		session.transitionTo(CANCELLED, "")
		coord.abortRemote(session)
		log.Emit(logger.STOP, "Upload session %s cancelled after %d bytes\n", session.id, session.Progress().BytesTransferred)
		coord.eventBus.Dispatch(event.UPLOAD_UPDATE, session.id)
	case err != nil:
		coord.failSession(session, err.Error())
		coord.abortRemote(session)
	default:
		coord.finalizeSession(ctx, session)
	}
}

// transferChunk attempts transmission of a single chunk, retrying
// transient failures up to the configured attempt budget. Retries for
// this chunk never restart chunks that already uploaded. A hard
// rejection from the write target aborts immediately.
func (coord *Coordinator) transferChunk(ctx context.Context, session *Session, source io.ReaderAt, c *chunk) error {
	var lastErr error
	for attempt := 1; attempt <= coord.config.MaxChunkAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		started := time.Now()
		etag, err := coord.sendChunk(ctx, session, source, c)
		if err == nil {
			if session.markChunkUploaded(c, etag, time.Since(started)) {
				coord.eventBus.Dispatch(event.UPLOAD_PROGRESS, session.id)
			}
			return nil
		}

		var rejected *TargetRejectedError
		if errors.As(err, &rejected) {
			session.markChunkFailed(c)
			return err
		}

		lastErr = err
		log.Emit(logger.WARNING, "Chunk %d of session %s failed attempt %d/%d: %v\n",
			c.partNumber, session.id, attempt, coord.config.MaxChunkAttempts, err)

		if attempt < coord.config.MaxChunkAttempts {
			delay := time.Duration(coord.config.RetryDelayMillis*attempt) * time.Millisecond
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}

	session.markChunkFailed(c)
	return &RetriesExhaustedError{PartNumber: c.partNumber, Attempts: coord.config.MaxChunkAttempts, LastErr: lastErr}
}

// sendChunk performs one transmission attempt: obtain a write target
// for the chunk, then PUT the chunk body to it with a bounded timeout.
func (coord *Coordinator) sendChunk(ctx context.Context, session *Session, source io.ReaderAt, c *chunk) (string, error) {
	target, err := coord.issuer.IssueChunkTarget(ctx, session.storageKey, c.partNumber, session.contentType)
	if err != nil {
		return "", &TransientTransferError{cause: fmt.Errorf("write target issuance failed: %w", err)}
	}

	attemptCtx, cancelAttempt := context.WithTimeout(ctx, time.Duration(coord.config.ChunkTimeoutSeconds)*time.Second)
	defer cancelAttempt()

	body := io.NewSectionReader(source, c.offset, c.length)
	request, err := http.NewRequestWithContext(attemptCtx, http.MethodPut, target.URL, body)
	if err != nil {
		return "", &TransientTransferError{cause: err}
	}
	request.ContentLength = c.length
	request.Header.Set("Content-Type", session.contentType)

	response, err := coord.client.Do(request)
	if err != nil {
		return "", &TransientTransferError{cause: err}
	}
	defer response.Body.Close()
	io.Copy(io.Discard, response.Body)

	switch {
	case response.StatusCode >= 200 && response.StatusCode < 300:
		return response.Header.Get("ETag"), nil
	case response.StatusCode == http.StatusTooManyRequests || response.StatusCode >= 500:
		return "", &TransientTransferError{cause: fmt.Errorf("write target replied HTTP %d", response.StatusCode)}
	default:
		return "", &TargetRejectedError{StatusCode: response.StatusCode}
	}
}

// finalizeSession issues the storage finalize call; only then does the
// object become visible to consumers expecting a validated key. Finalize
// rejection fails the session so that no record is ever created for a
// file that never finished transferring.
func (coord *Coordinator) finalizeSession(ctx context.Context, session *Session) {
	if err := coord.issuer.Finalize(ctx, session.storageKey, session.completedChunks()); err != nil {
		coord.failSession(session, fmt.Sprintf("storage finalize rejected: %s", err))
		return
	}

	session.transitionTo(COMPLETED, "")
	log.Emit(logger.SUCCESS, "Upload session %s completed (%s)\n", session.id, session.storageKey)
	coord.eventBus.Dispatch(event.UPLOAD_COMPLETE, session.id)
}

func (coord *Coordinator) failSession(session *Session, reason string) {
	session.transitionTo(FAILED, reason)
	progress := session.Progress()
	log.Emit(logger.ERROR, "Upload session %s FAILED after %d/%d bytes: %s\n",
		session.id, progress.BytesTransferred, progress.TotalBytes, reason)
	coord.eventBus.Dispatch(event.UPLOAD_UPDATE, session.id)
}

// abortRemote asks the storage collaborator to tear down any partially
// uploaded multipart state. Best effort; the session is already terminal.
func (coord *Coordinator) abortRemote(session *Session) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := coord.issuer.Abort(ctx, session.storageKey); err != nil {
		log.Emit(logger.WARNING, "Failed to abort multipart state for session %s: %v\n", session.id, err)
	}
}
