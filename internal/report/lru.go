package report

import (
	"container/list"
	"sync"

	"github.com/nixkil/nixkil/internal/runner"
)

// LRUStore keeps the most recent results in memory and delegates to a
// backing Store, which is consulted on miss.
type LRUStore struct {
	mu    sync.Mutex
	cap   int
	back  Store
	order *list.List // front is most recent; values are *runner.Result
	items map[string]*list.Element
}

// NewLRUStore creates an LRU store with the given capacity (at least 1)
// in front of back.
func NewLRUStore(cap int, back Store) *LRUStore {
	if cap < 1 {
		cap = 1
	}
	return &LRUStore{
		cap:   cap,
		back:  back,
		order: list.New(),
		items: make(map[string]*list.Element, cap),
	}
}

// Save records the result in memory and in the backing store.
func (s *LRUStore) Save(result *runner.Result) error {
	s.put(result)
	return s.back.Save(result)
}

// Load returns the result for runID, promoting backing-store hits.
func (s *LRUStore) Load(runID string) (*runner.Result, error) {
	s.mu.Lock()
	if e, ok := s.items[runID]; ok {
		s.order.MoveToFront(e)
		res := e.Value.(*runner.Result)
		s.mu.Unlock()
		return res, nil
	}
	s.mu.Unlock()

	res, err := s.back.Load(runID)
	if err != nil {
		return nil, err
	}
	s.put(res)
	return res, nil
}

// Recent returns up to n in-memory results, most recent first.
func (s *LRUStore) Recent(n int) []*runner.Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*runner.Result, 0, min(n, s.order.Len()))
	for e := s.order.Front(); e != nil && len(out) < n; e = e.Next() {
		out = append(out, e.Value.(*runner.Result))
	}
	return out
}

func (s *LRUStore) put(res *runner.Result) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.items[res.RunID]; ok {
		e.Value = res
		s.order.MoveToFront(e)
		return
	}
	s.items[res.RunID] = s.order.PushFront(res)
	for s.order.Len() > s.cap {
		oldest := s.order.Back()
		s.order.Remove(oldest)
		delete(s.items, oldest.Value.(*runner.Result).RunID)
	}
}
