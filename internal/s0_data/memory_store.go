package s0_data

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/wonny/screener/internal/contracts"
)

var _ contracts.TimeSeriesStore = (*MemoryStore)(nil)

// MemoryStore is an in-process TimeSeriesStore (tests, fixtures, imports)
type MemoryStore struct {
	mu           sync.RWMutex
	bars         map[string][]contracts.Bar
	fundamentals map[string][]contracts.Fundamentals
}

// NewMemoryStore creates an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		bars:         make(map[string][]contracts.Bar),
		fundamentals: make(map[string][]contracts.Fundamentals),
	}
}

// AddBars appends bars for a ticker
func (s *MemoryStore) AddBars(ticker string, bars ...contracts.Bar) {
	s.mu.Lock()
	defer s.mu.Unlock()

	all := append(s.bars[ticker], bars...)
	sort.SliceStable(all, func(i, j int) bool { return all[i].Date.Before(all[j].Date) })
	s.bars[ticker] = all
}

// AddFundamentals appends snapshots for a ticker
func (s *MemoryStore) AddFundamentals(ticker string, snaps ...contracts.Fundamentals) {
	s.mu.Lock()
	defer s.mu.Unlock()

	all := append(s.fundamentals[ticker], snaps...)
	sort.SliceStable(all, func(i, j int) bool { return all[i].Date.Before(all[j].Date) })
	s.fundamentals[ticker] = all
	if _, ok := s.bars[ticker]; !ok {
		s.bars[ticker] = nil
	}
}

// Bars returns a copy of bars within [from, to]
func (s *MemoryStore) Bars(_ context.Context, ticker string, from, to time.Time) ([]contracts.Bar, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []contracts.Bar{}
	for _, b := range s.bars[ticker] {
		if inRange(b.Date, from, to) {
			out = append(out, b)
		}
	}
	return out, nil
}

// Fundamentals returns a copy of snapshots within [from, to]
func (s *MemoryStore) Fundamentals(_ context.Context, ticker string, from, to time.Time) ([]contracts.Fundamentals, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []contracts.Fundamentals{}
	for _, f := range s.fundamentals[ticker] {
		if inRange(f.Date, from, to) {
			out = append(out, f)
		}
	}
	return out, nil
}

// Tickers returns every ticker with data, sorted
func (s *MemoryStore) Tickers(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tickers := make([]string, 0, len(s.bars))
	for t := range s.bars {
		tickers = append(tickers, t)
	}
	sort.Strings(tickers)
	return tickers, nil
}

func inRange(d, from, to time.Time) bool {
	return !d.Before(from) && !d.After(to)
}
