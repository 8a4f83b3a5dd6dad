package queue

import (
	"errors"
	"sync"

	"github.com/maltedev/property-crawler/internal/models"
)

var (
	ErrQueueEmpty  = errors.New("queue is empty")
	ErrQueueClosed = errors.New("queue is closed")
)

// Frontier holds crawl targets waiting to be visited. Targets come out in
// the order they went in, so a breadth-first crawl reaches every URL at its
// smallest hop count first.
type Frontier interface {
	Push(target models.CrawlTarget) error
	Pop() (models.CrawlTarget, error)
	Size() int
	Close() error
}

type InMemoryFrontier struct {
	targets []models.CrawlTarget
	head    int
	mu      sync.Mutex
	closed  bool
}

func NewInMemoryFrontier() *InMemoryFrontier {
	return &InMemoryFrontier{
		targets: make([]models.CrawlTarget, 0, 64),
	}
}

func (q *InMemoryFrontier) Push(target models.CrawlTarget) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrQueueClosed
	}

	q.targets = append(q.targets, target)
	return nil
}

// PushAll appends targets in order, stopping at the first error.
func (q *InMemoryFrontier) PushAll(targets []models.CrawlTarget) error {
	for _, t := range targets {
		if err := q.Push(t); err != nil {
			return err
		}
	}
	return nil
}

func (q *InMemoryFrontier) Pop() (models.CrawlTarget, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.head == len(q.targets) {
		if q.closed {
			return models.CrawlTarget{}, ErrQueueClosed
		}
		return models.CrawlTarget{}, ErrQueueEmpty
	}

	target := q.targets[q.head]
	q.targets[q.head] = models.CrawlTarget{}
	q.head++

	// Reclaim the consumed prefix once it dominates the backing array.
	if q.head > 1024 && q.head*2 > len(q.targets) {
		q.targets = append(q.targets[:0:0], q.targets[q.head:]...)
		q.head = 0
	}

	return target, nil
}

func (q *InMemoryFrontier) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.targets) - q.head
}

func (q *InMemoryFrontier) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.closed = true
	return nil
}
