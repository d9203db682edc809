package task

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dio-meetings/backend/internal/db"
	"github.com/dio-meetings/backend/internal/db/models"
)

// Queue dispatches pending tasks to a fixed pool of workers. Task state
// itself lives in the database; the channel only carries IDs, so a task
// survives restarts and a full channel only delays pickup.
type Queue struct {
	db        *db.Database
	processor *Processor
	mu        sync.Mutex
	pending   chan string
	cancels   map[string]context.CancelFunc
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// NewQueue creates and starts a queue with the given number of workers.
func NewQueue(database *db.Database, processor *Processor, workers int) *Queue {
	if workers < 1 {
		workers = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	q := &Queue{
		db:        database,
		processor: processor,
		pending:   make(chan string, 100),
		cancels:   make(map[string]context.CancelFunc),
		ctx:       ctx,
		cancel:    cancel,
	}

	// Re-queue tasks interrupted by a previous shutdown.
	go q.resumeTasks()

	for i := 0; i < workers; i++ {
		q.wg.Add(1)
		go q.worker()
	}

	return q
}

// Enqueue creates a new pending task for a meeting and schedules it.
func (q *Queue) Enqueue(meetingID string) (*models.Task, error) {
	task := &models.Task{
		ID:        uuid.New().String(),
		CreatedAt: time.Now(),
		MeetingID: meetingID,
		Status:    models.StatusPending,
	}
	if err := q.db.CreateTask(task); err != nil {
		return nil, fmt.Errorf("insert task: %w", err)
	}

	select {
	case q.pending <- task.ID:
	default:
		log.Printf("[task] queue full, task %s will be picked up on restart", task.ID)
	}

	return task, nil
}

// Cancel aborts a running task. The worker records the interrupted run as
// failed; a task that already reached a terminal status is left untouched.
func (q *Queue) Cancel(taskID string) {
	q.mu.Lock()
	if cancelFn, ok := q.cancels[taskID]; ok {
		cancelFn()
		delete(q.cancels, taskID)
	}
	q.mu.Unlock()
}

// Stop shuts down the queue and waits for in-flight tasks to unwind.
func (q *Queue) Stop() {
	q.cancel()
	q.wg.Wait()
}

func (q *Queue) worker() {
	defer q.wg.Done()
	for {
		select {
		case <-q.ctx.Done():
			return
		case taskID := <-q.pending:
			q.run(taskID)
		}
	}
}

// run executes one task end to end. Whatever goes wrong inside the pipeline,
// including a panic, the task must land in a terminal status: an interrupted
// run that stays "transcribing" forever would poll nothing and tell the user
// nothing.
func (q *Queue) run(taskID string) {
	task, err := q.db.GetTask(taskID)
	if err != nil {
		log.Printf("[task] failed to load task %s: %v", taskID, err)
		return
	}
	if task.Status != models.StatusPending {
		return
	}

	if err := q.db.MarkTaskStarted(taskID); err != nil {
		log.Printf("[task] failed to mark task %s started: %v", taskID, err)
		return
	}

	ctx, cancelFn := context.WithCancel(q.ctx)
	q.mu.Lock()
	q.cancels[taskID] = cancelFn
	q.mu.Unlock()

	defer func() {
		q.mu.Lock()
		delete(q.cancels, taskID)
		q.mu.Unlock()
		cancelFn()

		if r := recover(); r != nil {
			log.Printf("[task] task %s panicked: %v", taskID, r)
			if err := q.db.FailTask(taskID, fmt.Sprintf("internal error: %v", r)); err != nil {
				log.Printf("[task] failed to record panic for task %s: %v", taskID, err)
			}
		}
	}()

	log.Printf("[task] task %s started (meeting %s)", taskID, task.MeetingID)
	if err := q.processor.Process(ctx, taskID); err != nil {
		log.Printf("[task] task %s failed: %v", taskID, err)
		if dbErr := q.db.FailTask(taskID, err.Error()); dbErr != nil {
			log.Printf("[task] failed to record error for task %s: %v", taskID, dbErr)
		}
		return
	}
	log.Printf("[task] task %s completed", taskID)
}

// resumeTasks returns interrupted tasks to pending and re-queues everything
// pending, oldest first.
func (q *Queue) resumeTasks() {
	if err := q.db.ResetInFlightTasks(); err != nil {
		log.Printf("[task] failed to reset in-flight tasks: %v", err)
	}

	ids, err := q.db.ListTasksByStatus(models.StatusPending)
	if err != nil {
		log.Printf("[task] failed to resume tasks: %v", err)
		return
	}

	count := 0
	for _, id := range ids {
		select {
		case q.pending <- id:
			count++
		default:
		}
	}
	if count > 0 {
		log.Printf("[task] resumed %d pending tasks", count)
	}
}
