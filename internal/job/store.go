package job

import "sync"

// Store is a worker-local arena of job instances keyed by job id. Per the
// "cyclic references" design note, other subsystems (the subprocess
// adapter, clause filters, balancer) hold only a job id, never a *Job
// pointer, and revalidate against Store.Has on every callback so that a
// job that has since been torn down cannot be resurrected by a stale
// reference.
type Store struct {
	mu   sync.RWMutex
	jobs map[int]*Job
}

// NewStore returns an empty job store.
func NewStore() *Store {
	return &Store{jobs: make(map[int]*Job)}
}

// Put registers a job under its description's id.
func (s *Store) Put(j *Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[j.Description.ID] = j
}

// Get returns the job registered under id, if any.
func (s *Store) Get(id int) (*Job, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	j, ok := s.jobs[id]
	return j, ok
}

// Has reports whether a job is still registered under id. Callbacks that
// captured id before an asynchronous hop (e.g. a message subscription,
// per the "callback-as-capture" design note) must call Has before acting
// on stale state.
func (s *Store) Has(id int) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.jobs[id]
	return ok
}

// Remove deletes a job from the store, e.g. once it has reached StatePast
// and been fully reaped.
func (s *Store) Remove(id int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.jobs, id)
}

// Ids returns a snapshot of the currently registered job ids.
func (s *Store) Ids() []int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]int, 0, len(s.jobs))
	for id := range s.jobs {
		ids = append(ids, id)
	}
	return ids
}

// Subscription is a plain-data snapshot of a job's tree identity, safe to
// capture by value inside a long-lived message callback (the
// "callback-as-capture" design note: the subscription must not hold a
// *Job, because the job instance may be torn down and recreated under
// the same id before the callback fires).
type Subscription struct {
	RootJobID  int
	Depth      int
	NodeJobID  int
}

// Resolve looks up the live job for a subscription, returning ok=false if
// the job has since been removed from the store or is in StatePast —
// signaling the callback that it is stale and should be dropped rather
// than acted upon. Only NodeJobID is looked up; RootJobID and Depth are
// not compared.
func (s *Store) Resolve(sub Subscription) (*Job, bool) {
	j, ok := s.Get(sub.NodeJobID)
	if !ok {
		return nil, false
	}
	if j.State() == StatePast {
		return nil, false
	}
	return j, true
}
