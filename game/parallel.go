package game

import (
	"runtime"
	"sync"
	"sync/atomic"
)

// parallelThreshold is the minimum decider count to cast rays in parallel.
// Below this, single-threaded is faster due to goroutine overhead.
const parallelThreshold = 64

// batchSize is how many deciders a worker claims at a time. Ray cost varies
// with what an agent is looking at, so small claims keep workers even.
const batchSize = 8

// perceptionJob is one tick's perception work. Workers claim batches of
// decider indices from cursor until it passes n.
type perceptionJob struct {
	cursor atomic.Int64
	n      int64
	wg     sync.WaitGroup
}

func (j *perceptionJob) claim() (int, int, bool) {
	start := j.cursor.Add(batchSize) - batchSize
	if start >= j.n {
		return 0, 0, false
	}
	return int(start), int(min(start+batchSize, j.n)), true
}

// parallelState holds the perception worker pool. Each agent owns its
// sensor buffers and the scene only takes read locks during perception.
type parallelState struct {
	numWorkers int
	threshold  int

	jobs    chan *perceptionJob
	wg      sync.WaitGroup
	running bool
}

func newParallelState() *parallelState {
	return &parallelState{
		numWorkers: runtime.GOMAXPROCS(0),
		threshold:  parallelThreshold,
	}
}

// startWorkers launches the persistent worker goroutines.
func (p *parallelState) startWorkers(g *Game) {
	if p.running {
		return
	}
	p.jobs = make(chan *perceptionJob, p.numWorkers)
	p.running = true
	for i := 0; i < p.numWorkers; i++ {
		p.wg.Add(1)
		go p.worker(g)
	}
}

// stopWorkers closes the job channel and waits for every worker to exit.
func (p *parallelState) stopWorkers() {
	if !p.running {
		return
	}
	close(p.jobs)
	p.wg.Wait()
	p.running = false
}

func (p *parallelState) worker(g *Game) {
	defer p.wg.Done()
	for job := range p.jobs {
		for {
			i0, i1, ok := job.claim()
			if !ok {
				break
			}
			g.observeRange(i0, i1)
		}
		job.wg.Done()
	}
}

// observeAll refreshes the sensor buffers of every decider.
func (g *Game) observeAll() {
	n := len(g.deciders)
	if n == 0 {
		return
	}
	if n < g.parallel.threshold {
		g.observeRange(0, n)
		return
	}
	g.observeParallel(n)
}

// observeParallel hands one job to every worker and waits until the
// deciders are drained. Workers with nothing left to claim return at once.
func (g *Game) observeParallel(n int) {
	p := g.parallel
	if !p.running {
		p.startWorkers(g)
	}

	job := &perceptionJob{n: int64(n)}
	job.wg.Add(p.numWorkers)
	for w := 0; w < p.numWorkers; w++ {
		p.jobs <- job
	}
	job.wg.Wait()
}

// observeRange casts rays and builds observations for deciders [i0, i1).
func (g *Game) observeRange(i0, i1 int) {
	for _, idx := range g.deciders[i0:i1] {
		a := &g.agents[idx]
		a.sensor.Rays, a.sensor.Observation = g.observer.Observe(a.state, a.sensor.Rays, a.sensor.Observation)
	}
}

// stopParallelWorkers should be called when shutting down the game.
func (g *Game) stopParallelWorkers() {
	if g.parallel != nil {
		g.parallel.stopWorkers()
	}
}
