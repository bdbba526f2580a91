package calc

import (
	"context"
	"errors"
	"runtime"
	"sync"

	"github.com/hashicorp/go-hclog"

	"github.com/KyungWonPark/Connectivity/internal/logger"
)

// ErrDims is returned when input and output matrices disagree in shape
var ErrDims = errors.New("calc: dimension mismatch")

type ringMetaData struct {
	lock           sync.Mutex
	ringIsEmpty    []bool
	ringBufferHead int
}

// PipeLine represents a compute pipeline: a ring buffer of job slots shared by
// a producer and a consumer, plus a pool of row workers for matrix kernels
type PipeLine struct {
	numQueueSize   int
	numWorker      int
	jobQueue       chan int
	slots          chan struct{}
	bufferMetaData ringMetaData
	pushCnt        int64
	pushCntLock    sync.RWMutex
	popCnt         int64
	popCntLock     sync.RWMutex
	closeOnce      sync.Once
	logger         hclog.Logger
}

// Init returns a compute PipeLine. numWorker < 1 means one worker per CPU.
func Init(numQueueSize int, numWorker int, lg hclog.Logger) *PipeLine {
	if numQueueSize < 1 {
		numQueueSize = 1
	}
	if numWorker < 1 {
		numWorker = runtime.NumCPU()
	}

	pl := PipeLine{
		numQueueSize: numQueueSize,
		numWorker:    numWorker,
		jobQueue:     make(chan int, numQueueSize),
		slots:        make(chan struct{}, numQueueSize),
		bufferMetaData: ringMetaData{
			ringIsEmpty: make([]bool, numQueueSize),
		},
		logger: logger.OrNull(lg).Named("pipeline"),
	}

	for i := 0; i < numQueueSize; i++ {
		pl.bufferMetaData.ringIsEmpty[i] = true
		pl.slots <- struct{}{}
	}

	return &pl
}

// NumWorker returns the number of row workers
func (p *PipeLine) NumWorker() int {
	return p.numWorker
}

// QueueSize returns the number of ring buffer slots
func (p *PipeLine) QueueSize() int {
	return p.numQueueSize
}

// Malloc claims a buffer element in ring buffer, waiting for a Free when all
// slots are taken
func (p *PipeLine) Malloc(ctx context.Context) (int, error) {
	select {
	case <-ctx.Done():
		return -1, ctx.Err()
	case <-p.slots:
	}

	p.bufferMetaData.lock.Lock()
	defer p.bufferMetaData.lock.Unlock()

	bufferIdx := -1
	for i := 0; i < p.numQueueSize; i++ {
		idx := (p.bufferMetaData.ringBufferHead + i) % p.numQueueSize
		if p.bufferMetaData.ringIsEmpty[idx] {
			p.bufferMetaData.ringIsEmpty[idx] = false
			p.bufferMetaData.ringBufferHead = (idx + 1) % p.numQueueSize
			bufferIdx = idx
			break
		}
	}

	return bufferIdx, nil
}

// Push pushes data to process into the job queue
func (p *PipeLine) Push(ctx context.Context, jobID int) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case p.jobQueue <- jobID:
	}

	p.pushCntLock.Lock()
	p.pushCnt++
	p.pushCntLock.Unlock()

	p.logger.Trace("pushed job", "slot", jobID)
	return nil
}

// Pop pops the data from the job queue. ok is false once the queue is closed
// and drained.
func (p *PipeLine) Pop() (int, bool) {
	jobID, ok := <-p.jobQueue
	if !ok {
		return -1, false
	}

	p.popCntLock.Lock()
	p.popCnt++
	p.popCntLock.Unlock()

	return jobID, true
}

// Free frees slot from ring buffer
func (p *PipeLine) Free(i int) {
	p.bufferMetaData.lock.Lock()
	p.bufferMetaData.ringIsEmpty[i] = true
	p.bufferMetaData.lock.Unlock()

	p.slots <- struct{}{}
}

// Close tells the consumer no more jobs will be pushed
func (p *PipeLine) Close() {
	p.closeOnce.Do(func() {
		close(p.jobQueue)
	})
}

// Counts returns the number of pushed and popped jobs
func (p *PipeLine) Counts() (int64, int64) {
	p.pushCntLock.RLock()
	pushCnt := p.pushCnt
	p.pushCntLock.RUnlock()

	p.popCntLock.RLock()
	popCnt := p.popCnt
	p.popCntLock.RUnlock()

	return pushCnt, popCnt
}

/*
	Workflow:

	Malloc -> Push -> Pop -> Free
*/

// ForEach hands indices 0..n-1 to the row workers and waits for all of them
func (p *PipeLine) ForEach(n int, work func(index int)) {
	order := make(chan int, p.numWorker)
	var wg sync.WaitGroup

	wg.Add(n)

	for i := 0; i < p.numWorker; i++ {
		go worker(work, order, &wg)
	}

	for i := 0; i < n; i++ {
		order <- i
	}

	wg.Wait()
	close(order)
}

func worker(work func(index int), order <-chan int, wg *sync.WaitGroup) {
	for index := range order {
		work(index)
		wg.Done()
	}
}

type statistic struct {
	avg float64
	std float64
}
