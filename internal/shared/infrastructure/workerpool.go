package infrastructure

import (
	"context"
	"errors"
	"sync"
)

// ErrPoolStopped est retournée par Submit quand le pool est arrêté
var ErrPoolStopped = errors.New("worker pool is stopped")

// Task représente une tâche à exécuter
type Task func(ctx context.Context) error

// WorkerPool gère un pool de workers pour traiter des tâches en parallèle.
// Le pool est lié au contexte passé à NewWorkerPool: son annulation arrête
// les workers et fait échouer les Submit en attente.
type WorkerPool struct {
	workerCount int
	tasks       chan Task
	wg          sync.WaitGroup
	ctx         context.Context
	cancel      context.CancelFunc

	mu   sync.Mutex
	errs []error
}

// NewWorkerPool crée un nouveau pool de workers
func NewWorkerPool(ctx context.Context, workerCount int) *WorkerPool {
	if workerCount <= 0 {
		workerCount = 1
	}
	ctx, cancel := context.WithCancel(ctx)
	return &WorkerPool{
		workerCount: workerCount,
		tasks:       make(chan Task, workerCount*2),
		ctx:         ctx,
		cancel:      cancel,
	}
}

// worker est la routine d'exécution des tâches
func (wp *WorkerPool) worker() {
	defer wp.wg.Done()

	for {
		select {
		case <-wp.ctx.Done():
			return
		case task, ok := <-wp.tasks:
			if !ok {
				return
			}
			if err := task(wp.ctx); err != nil {
				wp.mu.Lock()
				wp.errs = append(wp.errs, err)
				wp.mu.Unlock()
			}
		}
	}
}

// Start démarre les workers
func (wp *WorkerPool) Start() {
	for i := 0; i < wp.workerCount; i++ {
		wp.wg.Add(1)
		go wp.worker()
	}
}

// Submit soumet une tâche au pool
func (wp *WorkerPool) Submit(task Task) error {
	select {
	case <-wp.ctx.Done():
		return ErrPoolStopped
	case wp.tasks <- task:
		return nil
	}
}

// Wait ferme le canal de tâches, attend la fin des workers et retourne
// les erreurs des tâches jointes (nil si aucune)
func (wp *WorkerPool) Wait() error {
	close(wp.tasks)
	wp.wg.Wait()
	wp.cancel()

	wp.mu.Lock()
	defer wp.mu.Unlock()
	return errors.Join(wp.errs...)
}

// Stop arrête le pool immédiatement; les tâches en file sont abandonnées
func (wp *WorkerPool) Stop() {
	wp.cancel()
	wp.wg.Wait()
}
