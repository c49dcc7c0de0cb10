package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/kvistgaard/arkive/internal/event"
	"github.com/kvistgaard/arkive/internal/media"
	"github.com/kvistgaard/arkive/pkg/logger"
	"github.com/kvistgaard/arkive/pkg/worker"
	"golang.org/x/sync/singleflight"
)

var log = logger.Get("IngestServ")

// ErrManuallyAssigned is returned when automatic resolution is requested
// for a record that an operator has already assigned by hand. Manual
// assignment always wins; it is never silently overwritten.
var ErrManuallyAssigned = errors.New("record has been manually assigned and cannot be automatically resolved")

type (
	matcher interface {
		Resolve(ctx context.Context, candidate media.ParsedCandidate) (*media.CatalogMatch, error)
		GetDetails(ctx context.Context, externalID string) (*media.CatalogMatch, error)
		Score(candidate media.ParsedCandidate, match *media.CatalogMatch) int
		AutoMatchThreshold() int
	}

	recordStore interface {
		CreateRecord(record *media.MediaRecord) error
		GetRecord(id uuid.UUID) (*media.MediaRecord, error)
		ListRecordsByStatus(statuses ...media.RecordStatus) ([]*media.MediaRecord, error)
		UpdateRecordResolution(id uuid.UUID, match *media.CatalogMatch, confidence int, status media.RecordStatus) error
	}

	// UploadSession is the view of a completed upload the ingest service
	// needs to mint a record.
	UploadSession interface {
		StorageKey() string
		Filename() string
		Category() string
		FileSize() int64
	}

	uploads interface {
		Session(id uuid.UUID) UploadSession
	}

	// ingestService turns completed uploads into persisted media records
	// and drives their resolution against the external catalog. Each
	// completed upload should be:
	// - Parsed for title/year/quality hints embedded in its filename
	// - Persisted as a PENDING record keyed by its storage key
	// - Resolved against the catalog and scored, moving to MATCHED when
	//   the confidence clears the configured threshold
	ingestService struct {
		mu sync.Mutex

		matcher  matcher
		store    recordStore
		uploads  uploads
		eventBus event.EventCoordinator
		config   Config

		queue        []uuid.UUID
		queued       map[uuid.UUID]bool
		workerPool   *worker.WorkerPool
		uploadEvents event.HandlerChannel

		// resolutions collapses concurrent automatic resolutions of the
		// same record into one catalog round-trip. recordLocks serializes
		// automatic and manual resolution of the same record; entries are
		// refcounted and evicted once no resolution holds them.
		resolutions singleflight.Group
		recordLocks map[uuid.UUID]*recordLock
	}

	recordLock struct {
		mu   sync.Mutex
		refs int
	}
)

func New(config Config, matcher matcher, store recordStore, uploads uploads, eventBus event.EventCoordinator) (*ingestService, error) {
	if config.ResolutionParallelism <= 0 {
		return nil, fmt.Errorf("ingest service requires a resolution parallelism of at least 1, got %d", config.ResolutionParallelism)
	}

	service := &ingestService{
		matcher:      matcher,
		store:        store,
		uploads:      uploads,
		eventBus:     eventBus,
		config:       config,
		queued:       make(map[uuid.UUID]bool),
		workerPool:   worker.NewWorkerPool(),
		uploadEvents: make(event.HandlerChannel, 32),
		recordLocks:  make(map[uuid.UUID]*recordLock),
	}

	// Subscribing at construction time means completions dispatched
	// before Run starts are buffered rather than lost.
	eventBus.RegisterHandlerChannel(service.uploadEvents, event.UPLOAD_COMPLETE)

	for i := 0; i < config.ResolutionParallelism; i++ {
		label := fmt.Sprintf("resolution-worker-%d", i)
		service.workerPool.PushWorker(worker.NewWorker(label, service.performRecordResolution))
	}

	return service, nil
}

// Run is the main entry point of this service. It re-queues any records
// whose resolution did not finish in a previous run, starts the
// resolution workers, and reacts to upload completions from the event
// bus until the context provided is cancelled.
func (service *ingestService) Run(ctx context.Context) error {
	if err := service.requeueUnresolvedRecords(); err != nil {
		return fmt.Errorf("failed to requeue unresolved records: %w", err)
	}

	if err := service.workerPool.Start(); err != nil {
		return err
	}
	defer service.workerPool.Close()

	for {
		select {
		case message := <-service.uploadEvents:
			sessionID, ok := message.Payload.(uuid.UUID)
			if !ok {
				log.Emit(logger.ERROR, "Illegal payload on %s event, expected session ID\n", message.Event)
				continue
			}

			if err := service.ingestCompletedUpload(sessionID); err != nil {
				log.Emit(logger.ERROR, "Failed to ingest completed upload %s: %v\n", sessionID, err)
			}
		case <-ctx.Done():
			return nil
		}
	}
}

// ingestCompletedUpload persists a PENDING record for the completed
// upload session provided and queues it for automatic resolution. The
// filename is parsed eagerly so the record always carries a candidate,
// even if resolution never succeeds.
func (service *ingestService) ingestCompletedUpload(sessionID uuid.UUID) error {
	session := service.uploads.Session(sessionID)
	if session == nil {
		return fmt.Errorf("no upload session with ID %s", sessionID)
	}

	record := &media.MediaRecord{
		ID:               uuid.New(),
		StorageKey:       session.StorageKey(),
		OriginalFilename: session.Filename(),
		FileSize:         session.FileSize(),
		Category:         session.Category(),
		Parsed:           media.Parse(session.Filename()),
		Status:           media.PENDING,
	}

	if err := service.store.CreateRecord(record); err != nil {
		return fmt.Errorf("failed to persist record for %s: %w", record.StorageKey, err)
	}

	log.Emit(logger.NEW, "Created record %s for upload %s (parsed title %q)\n", record.ID, sessionID, record.Parsed.Title)
	service.eventBus.Dispatch(event.RECORD_UPDATE, record.ID)

	service.QueueResolution(record.ID)
	return nil
}

// QueueResolution schedules the record with the ID provided for
// automatic resolution by the services worker pool. Queueing the same
// record twice before a worker claims it is a no-op.
func (service *ingestService) QueueResolution(recordID uuid.UUID) {
	service.mu.Lock()
	if !service.queued[recordID] {
		service.queued[recordID] = true
		service.queue = append(service.queue, recordID)
	}
	service.mu.Unlock()

	service.workerPool.WakeupWorkers()
}

// performRecordResolution is the worker function for the ingest service,
// called by the services WorkerPool. It claims the oldest queued record
// and resolves it, reporting whether any work was available.
func (service *ingestService) performRecordResolution(w worker.Worker) (bool, error) {
	recordID, ok := service.claimQueuedRecord()
	if !ok {
		return false, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), service.config.ResolutionTimeout())
	defer cancel()

	if err := service.AutoResolve(ctx, recordID); err != nil && !errors.Is(err, ErrManuallyAssigned) {
		log.Emit(logger.ERROR, "Automatic resolution of record %s failed: %v\n", recordID, err)
	}

	return true, nil
}

// claimQueuedRecord pops the oldest queued record ID, if any. The
// queued set is cleared on claim so a record can be re-queued if its
// resolution leaves it PENDING.
func (service *ingestService) claimQueuedRecord() (uuid.UUID, bool) {
	service.mu.Lock()
	defer service.mu.Unlock()

	if len(service.queue) == 0 {
		return uuid.Nil, false
	}

	recordID := service.queue[0]
	service.queue = service.queue[1:]
	delete(service.queued, recordID)
	return recordID, true
}

// AutoResolve resolves the record with the ID provided against the
// external catalog and persists the outcome. Concurrent automatic
// resolutions of the same record share a single execution.
//
// A record an operator has manually assigned is refused outright, and a
// record that already reached MATCHED is left untouched. A catalog
// communication failure moves the record to ERROR; an empty catalog
// result, or a confidence below the auto-match threshold, records the
// best guess but leaves the record PENDING for manual review.
func (service *ingestService) AutoResolve(ctx context.Context, recordID uuid.UUID) error {
	_, err, _ := service.resolutions.Do(recordID.String(), func() (any, error) {
		unlock := service.lockRecord(recordID)
		defer unlock()

		return nil, service.autoResolveLocked(ctx, recordID)
	})

	return err
}

func (service *ingestService) autoResolveLocked(ctx context.Context, recordID uuid.UUID) error {
	record, err := service.store.GetRecord(recordID)
	if err != nil {
		return err
	}

	switch record.Status {
	case media.MANUAL:
		return ErrManuallyAssigned
	case media.MATCHED:
		return nil
	}

	match, err := service.matcher.Resolve(ctx, record.Parsed)
	if err != nil {
		log.Emit(logger.ERROR, "Catalog resolution for record %s FAILED: %v\n", recordID, err)
		if updateErr := service.store.UpdateRecordResolution(recordID, nil, 0, media.ERROR); updateErr != nil {
			return updateErr
		}

		service.eventBus.Dispatch(event.RECORD_UPDATE, recordID)
		return err
	}

	if match == nil {
		// Nothing in the catalog resembles this candidate. The record
		// stays PENDING so an operator can assign it by hand.
		if err := service.store.UpdateRecordResolution(recordID, nil, 0, media.PENDING); err != nil {
			return err
		}

		log.Emit(logger.INFO, "No catalog results for record %s (title %q), awaiting manual review\n", recordID, record.Parsed.Title)
		service.eventBus.Dispatch(event.RECORD_UPDATE, recordID)
		return nil
	}

	confidence := service.matcher.Score(record.Parsed, match)
	status := media.PENDING
	if confidence >= service.matcher.AutoMatchThreshold() {
		status = media.MATCHED
	}

	if err := service.store.UpdateRecordResolution(recordID, match, confidence, status); err != nil {
		return err
	}

	if status == media.MATCHED {
		log.Emit(logger.SUCCESS, "Record %s matched to %q (confidence %d)\n", recordID, match.Title, confidence)
		service.eventBus.Dispatch(event.RECORD_RESOLVED, recordID)
	} else {
		log.Emit(logger.INFO, "Record %s best guess %q scored %d, below threshold %d\n", recordID, match.Title, confidence, service.matcher.AutoMatchThreshold())
		service.eventBus.Dispatch(event.RECORD_UPDATE, recordID)
	}

	return nil
}

// ManualAssign pins the record with the ID provided to the catalog
// entry with the external ID given, regardless of the confidence the
// pairing scores. The record moves to MANUAL, which excludes it from
// any future automatic resolution.
func (service *ingestService) ManualAssign(ctx context.Context, recordID uuid.UUID, externalID string) (*media.MediaRecord, error) {
	unlock := service.lockRecord(recordID)
	defer unlock()

	record, err := service.store.GetRecord(recordID)
	if err != nil {
		return nil, err
	}

	match, err := service.matcher.GetDetails(ctx, externalID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch catalog entry %s: %w", externalID, err)
	}

	confidence := service.matcher.Score(record.Parsed, match)
	if err := service.store.UpdateRecordResolution(recordID, match, confidence, media.MANUAL); err != nil {
		return nil, err
	}

	log.Emit(logger.SUCCESS, "Record %s manually assigned to %q (confidence %d)\n", recordID, match.Title, confidence)
	service.eventBus.Dispatch(event.RECORD_RESOLVED, recordID)

	return service.store.GetRecord(recordID)
}

// GetRecord returns the record with the ID provided.
func (service *ingestService) GetRecord(recordID uuid.UUID) (*media.MediaRecord, error) {
	return service.store.GetRecord(recordID)
}

// ListRecords returns records filtered by the statuses provided, or all
// records when no statuses are given, newest first.
func (service *ingestService) ListRecords(statuses ...media.RecordStatus) ([]*media.MediaRecord, error) {
	return service.store.ListRecordsByStatus(statuses...)
}

// requeueUnresolvedRecords schedules resolution for every record left
// PENDING by a previous run, so a restart never strands records.
func (service *ingestService) requeueUnresolvedRecords() error {
	records, err := service.store.ListRecordsByStatus(media.PENDING)
	if err != nil {
		return err
	}

	for _, record := range records {
		service.QueueResolution(record.ID)
	}

	if len(records) > 0 {
		log.Emit(logger.INFO, "Requeued %d unresolved records from previous run\n", len(records))
	}

	return nil
}

// lockRecord takes the per-record resolution lock, returning the func
// which releases it. The lock entry is refcounted: once the last holder
// releases it the entry is evicted, keeping the map bounded by the
// number of in-flight resolutions rather than every record ever seen.
func (service *ingestService) lockRecord(recordID uuid.UUID) func() {
	service.mu.Lock()
	lock, ok := service.recordLocks[recordID]
	if !ok {
		lock = &recordLock{}
		service.recordLocks[recordID] = lock
	}
	lock.refs++
	service.mu.Unlock()

	lock.mu.Lock()
	return func() {
		lock.mu.Unlock()

		service.mu.Lock()
		defer service.mu.Unlock()
		lock.refs--
		if lock.refs == 0 {
			delete(service.recordLocks, recordID)
		}
	}
}
