package crawler

// Frontier is the breadth-first work list of one crawl. Paths are interned
// once into an arena and referenced by id afterwards. A path enters the
// queue at most once per run; dequeued ids stay marked as queued.
type Frontier struct {
	paths   []string
	index   map[string]int
	queued  []bool
	visited []bool

	fifo         []int
	head         int
	visitedCount int
}

// NewFrontier creates an empty frontier
func NewFrontier() *Frontier {
	return &Frontier{index: make(map[string]int)}
}

func (f *Frontier) intern(path string) int {
	if id, ok := f.index[path]; ok {
		return id
	}
	id := len(f.paths)
	f.paths = append(f.paths, path)
	f.index[path] = id
	f.queued = append(f.queued, false)
	f.visited = append(f.visited, false)
	return id
}

// Enqueue adds path to the queue unless it was queued or visited before.
// It reports whether the path was added.
func (f *Frontier) Enqueue(path string) bool {
	if path == "" {
		return false
	}
	id := f.intern(path)
	if f.queued[id] || f.visited[id] {
		return false
	}
	f.queued[id] = true
	f.fifo = append(f.fifo, id)
	return true
}

// Dequeue pops the oldest queued path
func (f *Frontier) Dequeue() (string, bool) {
	if f.head >= len(f.fifo) {
		return "", false
	}
	id := f.fifo[f.head]
	f.head++

	// release the consumed prefix once it dominates the slice
	if f.head > 1024 && f.head*2 > len(f.fifo) {
		f.fifo = append(f.fifo[:0:0], f.fifo[f.head:]...)
		f.head = 0
	}
	return f.paths[id], true
}

// MarkVisited records path as fetched. A visited path is also treated as
// queued so it is never enqueued again.
func (f *Frontier) MarkVisited(path string) {
	id := f.intern(path)
	if !f.visited[id] {
		f.visited[id] = true
		f.visitedCount++
	}
	f.queued[id] = true
}

// Visited reports whether path was marked visited
func (f *Frontier) Visited(path string) bool {
	id, ok := f.index[path]
	return ok && f.visited[id]
}

// VisitedCount returns the number of distinct visited paths
func (f *Frontier) VisitedCount() int {
	return f.visitedCount
}

// Pending returns the number of paths waiting in the queue
func (f *Frontier) Pending() int {
	return len(f.fifo) - f.head
}
