package steppercache

import "sync"

// Stats tracks cache statistics
type Stats struct {
	mu         sync.RWMutex
	Hits       int64 `json:"hits"`
	Stale      int64 `json:"stale"`
	Misses     int64 `json:"misses"`
	Bypasses   int64 `json:"bypasses"`
	Stores     int64 `json:"stores"`
	Prefetches int64 `json:"prefetches"`
	Errors     int64 `json:"errors"`
}

// GetStats returns current cache statistics
func (s *StepperCache) GetStats() Stats {
	s.stats.mu.RLock()
	defer s.stats.mu.RUnlock()
	return Stats{
		Hits:       s.stats.Hits,
		Stale:      s.stats.Stale,
		Misses:     s.stats.Misses,
		Bypasses:   s.stats.Bypasses,
		Stores:     s.stats.Stores,
		Prefetches: s.stats.Prefetches,
		Errors:     s.stats.Errors,
	}
}

func (s *Stats) incrementHits() {
	s.mu.Lock()
	s.Hits++
	s.mu.Unlock()
}

func (s *Stats) incrementStale() {
	s.mu.Lock()
	s.Stale++
	s.mu.Unlock()
}

func (s *Stats) incrementMisses() {
	s.mu.Lock()
	s.Misses++
	s.mu.Unlock()
}

func (s *Stats) incrementBypasses() {
	s.mu.Lock()
	s.Bypasses++
	s.mu.Unlock()
}

func (s *Stats) incrementStores() {
	s.mu.Lock()
	s.Stores++
	s.mu.Unlock()
}

func (s *Stats) incrementPrefetches() {
	s.mu.Lock()
	s.Prefetches++
	s.mu.Unlock()
}

func (s *Stats) incrementErrors() {
	s.mu.Lock()
	s.Errors++
	s.mu.Unlock()
}
