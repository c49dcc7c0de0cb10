package ingest

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func Test_LockRecord_EvictsEntryOnceReleased(t *testing.T) {
	t.Parallel()

	service := &ingestService{recordLocks: make(map[uuid.UUID]*recordLock)}

	first := uuid.New()
	second := uuid.New()

	unlockFirst := service.lockRecord(first)
	unlockSecond := service.lockRecord(second)
	assert.Len(t, service.recordLocks, 2)

	unlockFirst()
	assert.Len(t, service.recordLocks, 1)

	unlockSecond()
	assert.Empty(t, service.recordLocks)
}

func Test_LockRecord_SharedEntrySurvivesUntilLastHolder(t *testing.T) {
	t.Parallel()

	service := &ingestService{recordLocks: make(map[uuid.UUID]*recordLock)}
	recordID := uuid.New()

	unlock := service.lockRecord(recordID)

	acquired := make(chan func(), 1)
	go func() {
		acquired <- service.lockRecord(recordID)
	}()

	// Wait for the second holder to register its interest; releasing
	// must not evict the entry out from under it.
	assert.Eventually(t, func() bool {
		service.mu.Lock()
		defer service.mu.Unlock()

		lock, ok := service.recordLocks[recordID]
		return ok && lock.refs == 2
	}, time.Second, time.Millisecond)

	unlock()
	unlockSecond := <-acquired

	service.mu.Lock()
	assert.Len(t, service.recordLocks, 1)
	service.mu.Unlock()

	unlockSecond()

	service.mu.Lock()
	assert.Empty(t, service.recordLocks)
	service.mu.Unlock()
}
