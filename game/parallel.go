package game

import (
	"sync"

	"gonum.org/v1/gonum/spatial/r2"

	"github.com/pthm-cable/flock/systems"
)

// forceFrame holds the read-only inputs shared by every force task in a frame.
// It is written by the driver before any task is dispatched.
type forceFrame struct {
	parts  []systems.Partition
	pos    []r2.Vec
	vel    []r2.Vec
	forces []r2.Vec
	index  systems.SpatialIndex
	params systems.Params
}

// workerPool runs one force task per partition on a fixed set of goroutines.
type workerPool struct {
	size      int
	scratches []*systems.Scratch
	frame     forceFrame

	// Worker pool channels
	workChan chan int      // partition index to process
	doneChan chan struct{} // workers signal completion
	stopChan chan struct{} // signals workers to exit
	wg       sync.WaitGroup
	running  bool
}

func newWorkerPool(size int) *workerPool {
	size = max(size, 1)
	scratches := make([]*systems.Scratch, size)
	for i := range scratches {
		scratches[i] = systems.NewScratch()
	}
	return &workerPool{size: size, scratches: scratches}
}

// start launches the persistent worker goroutines.
func (p *workerPool) start() {
	if p.running {
		return
	}

	p.workChan = make(chan int, p.size)
	p.doneChan = make(chan struct{}, p.size)
	p.stopChan = make(chan struct{})
	p.running = true

	for i := 0; i < p.size; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
}

// stop signals all workers to exit and waits for them.
func (p *workerPool) stop() {
	if !p.running {
		return
	}

	close(p.stopChan)
	p.wg.Wait()
	close(p.workChan)
	close(p.doneChan)
	p.running = false
}

func (p *workerPool) worker(id int) {
	defer p.wg.Done()
	scratch := p.scratches[id]

	for {
		select {
		case <-p.stopChan:
			return
		case part, ok := <-p.workChan:
			if !ok {
				return
			}
			f := &p.frame
			systems.ComputeForces(f.parts[part].Indices, f.pos, f.vel, f.forces, f.index, f.params, scratch)
			p.doneChan <- struct{}{}
		}
	}
}

// run computes forces for every partition and returns once all tasks are done.
// Tasks may outnumber workers, so dispatch and completion are interleaved.
func (p *workerPool) run(frame forceFrame) {
	p.start()
	p.frame = frame

	next, pending := 0, len(frame.parts)
	for pending > 0 {
		if next < len(frame.parts) {
			select {
			case p.workChan <- next:
				next++
			case <-p.doneChan:
				pending--
			}
			continue
		}
		<-p.doneChan
		pending--
	}

	p.frame = forceFrame{}
}
