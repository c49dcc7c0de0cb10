package worker

import "github.com/kvistgaard/arkive/pkg/logger"

var workerLogger = logger.Get("Worker")

type (
	WakeupChan   chan int
	WorkerStatus int

	// TaskFn is the unit of work executed by a worker. The boolean
	// return indicates whether any work was claimed; a worker whose
	// task reports no work goes back to sleep until woken.
	TaskFn func(Worker) (bool, error)

	Worker interface {
		Start()
		Status() WorkerStatus
		WakeupChan() WakeupChan
		Label() string
		Sleep() bool
		Close()
	}

	taskWorker struct {
		label         string
		task          TaskFn
		wakeupChan    WakeupChan
		currentStatus WorkerStatus
	}
)

const (
	SLEEPING WorkerStatus = iota
	WORKING
	FINISHED
)

func NewWorker(label string, task TaskFn) *taskWorker {
	return &taskWorker{
		label: label,
		task:  task,
		// The buffer holds a wakeup delivered while the worker is still
		// mid-task, so work queued in that window is picked up as soon
		// as the worker tries to sleep rather than stalling until the
		// next wakeup.
		wakeupChan:    make(WakeupChan, 1),
		currentStatus: SLEEPING,
	}
}

// Start runs the workers task in a loop until the task reports that
// no work remains, at which point the worker sleeps until it's
// woken via it's wakeup channel. A closed wakeup channel stops
// the worker entirely.
func (worker *taskWorker) Start() {
	for {
		worker.currentStatus = WORKING
		for {
			didWork, err := worker.task(worker)
			if err != nil {
				workerLogger.Emit(logger.ERROR, "Worker %s task reported error: %v\n", worker.label, err)
				break
			}

			if !didWork {
				break
			}
		}

		if !worker.Sleep() {
			return
		}
	}
}

func (worker *taskWorker) Status() WorkerStatus { return worker.currentStatus }
func (worker *taskWorker) WakeupChan() WakeupChan {
	return worker.wakeupChan
}
func (worker *taskWorker) Label() string { return worker.label }

// Close closes the worker by closing it's wakeup channel. Note that this
// does not interrupt a currently running task.
func (worker *taskWorker) Close() {
	close(worker.wakeupChan)
}

// Sleep blocks until the workers wakeup channel is signalled from
// another goroutine. Returns false if the channel was closed,
// indicating that the worker should quit.
func (worker *taskWorker) Sleep() (isAlive bool) {
	worker.currentStatus = SLEEPING

	if _, isAlive = <-worker.wakeupChan; isAlive {
		worker.currentStatus = WORKING
	} else {
		worker.currentStatus = FINISHED
	}

	return isAlive
}
