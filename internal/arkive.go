package internal

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/kvistgaard/arkive/internal/api"
	"github.com/kvistgaard/arkive/internal/database"
	"github.com/kvistgaard/arkive/internal/event"
	"github.com/kvistgaard/arkive/internal/http/tmdb"
	"github.com/kvistgaard/arkive/internal/ingest"
	"github.com/kvistgaard/arkive/internal/match"
	"github.com/kvistgaard/arkive/internal/media"
	"github.com/kvistgaard/arkive/internal/upload"
	"github.com/kvistgaard/arkive/pkg/logger"
)

var log = logger.Get("Core")

type (
	RunnableService interface {
		Run(context.Context) error
	}

	IngestService interface {
		RunnableService
		GetRecord(uuid.UUID) (*media.MediaRecord, error)
		ListRecords(...media.RecordStatus) ([]*media.MediaRecord, error)
		AutoResolve(context.Context, uuid.UUID) error
		ManualAssign(context.Context, uuid.UUID, string) (*media.MediaRecord, error)
		QueueResolution(uuid.UUID)
	}

	RestGateway interface {
		RunnableService
		BroadcastUploadUpdate(uuid.UUID) error
		BroadcastUploadProgressUpdate(uuid.UUID) error
		BroadcastRecordUpdate(uuid.UUID) error
		BroadcastRecordResolved(uuid.UUID) error
	}
)

// Arkive represents the top-level object for the server, and is
// responsible for initialising its services, stores, database
// connection and event handling.
type arkiveImpl struct {
	eventBus        event.EventCoordinator
	activityService *activityService
	config          ArkiveConfig

	db          database.Manager
	recordStore *recordStoreAdapter

	restGateway       RestGateway
	ingestService     IngestService
	uploadCoordinator *upload.Coordinator
}

func New(config ArkiveConfig) *arkiveImpl {
	log.Emit(logger.DEBUG, "Bootstrapping Arkive services using config: %#v\n", config)
	arkive := &arkiveImpl{
		eventBus: event.New(),
		config:   config,
		db:       database.New(),
	}
	arkive.recordStore = &recordStoreAdapter{db: arkive.db, store: media.NewStore()}

	searcher := tmdb.NewSearcher(config.Tmdb)
	matcher := match.New(config.Match, searcher)

	arkive.uploadCoordinator = upload.New(
		config.Upload,
		upload.NewHTTPTargetIssuer(config.StorageIssuer),
		arkive.eventBus,
	)

	if serv, err := ingest.New(config.Ingest, matcher, arkive.recordStore, uploadSessionProvider{arkive.uploadCoordinator}, arkive.eventBus); err == nil {
		arkive.ingestService = serv
	} else {
		panic(fmt.Sprintf("failed to construct ingestion service due to error: %s", err.Error()))
	}

	arkive.restGateway = api.NewRestGateway(&config.RestConfig, arkive.uploadCoordinator, arkive.ingestService)
	arkive.activityService = newActivityService(arkive.restGateway, arkive.eventBus)

	return arkive
}

// Run will start all of Arkive by bringing up all required services and
// connections: the database connection (including schema migrations),
// the ingest service, the activity service, and the REST gateway.
//
// This function will not return until Arkive is stopped. To stop Arkive,
// the provided context must be cancelled. Errors from which Arkive
// cannot recover will also cause it to stop.
func (arkive *arkiveImpl) Run(parent context.Context) error {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	crashHandler := func(label string, err error) {
		log.Emit(logger.FATAL, "Service crash (%s)! %s\n", label, err.Error())
		cancel()
	}

	log.Emit(logger.NEW, "Connecting to database...\n")
	if err := arkive.db.Connect(arkive.config.Database); err != nil {
		return err
	}

	wg := &sync.WaitGroup{}
	arkive.spawnAsyncService(ctx, wg, arkive.ingestService, "ingest-service", crashHandler)
	arkive.spawnAsyncService(ctx, wg, arkive.activityService, "activity-service", crashHandler)
	arkive.spawnAsyncService(ctx, wg, arkive.restGateway, "rest-gateway", crashHandler)
	log.Emit(logger.SUCCESS, "Arkive services spawned!\n")

	wg.Wait()
	return nil
}

// spawnAsyncService will run the provided function/service as its own
// go-routine, ensuring that the Arkive service waitgroup is updated correctly.
func (arkive *arkiveImpl) spawnAsyncService(ctx context.Context, wg *sync.WaitGroup, service RunnableService, serviceLabel string, crashHandler func(string, error)) {
	log.Emit(logger.NEW, "Spawning %s\n", serviceLabel)
	wg.Add(1)

	go func(wg *sync.WaitGroup, label string, crash func(string, error)) {
		defer func() {
			if r := recover(); r != nil {
				crash(label, fmt.Errorf("panic %v", r))
			}
		}()

		defer wg.Done()
		if err := service.Run(ctx); err != nil {
			crash(label, err)
		}
	}(wg, serviceLabel, crashHandler)
}

// uploadSessionProvider narrows the upload coordinator to the session
// lookup the ingest service consumes. The explicit nil check stops a
// typed-nil session from masquerading as a present one.
type uploadSessionProvider struct {
	coordinator *upload.Coordinator
}

func (provider uploadSessionProvider) Session(id uuid.UUID) ingest.UploadSession {
	session := provider.coordinator.Session(id)
	if session == nil {
		return nil
	}

	return session
}

// recordStoreAdapter binds the media record store to the managers live
// database connection, satisfying the ingest services store dependency.
type recordStoreAdapter struct {
	db    database.Manager
	store *media.Store
}

func (adapter *recordStoreAdapter) CreateRecord(record *media.MediaRecord) error {
	return adapter.store.CreateRecord(adapter.db.GetSqlxDb(), record)
}

func (adapter *recordStoreAdapter) GetRecord(id uuid.UUID) (*media.MediaRecord, error) {
	return adapter.store.GetRecord(adapter.db.GetSqlxDb(), id)
}

func (adapter *recordStoreAdapter) ListRecordsByStatus(statuses ...media.RecordStatus) ([]*media.MediaRecord, error) {
	return adapter.store.ListRecordsByStatus(adapter.db.GetSqlxDb(), statuses...)
}

func (adapter *recordStoreAdapter) UpdateRecordResolution(id uuid.UUID, match *media.CatalogMatch, confidence int, status media.RecordStatus) error {
	return adapter.db.WrapTx(func(tx *sqlx.Tx) error {
		return adapter.store.UpdateRecordResolution(tx, id, match, confidence, status)
	})
}
