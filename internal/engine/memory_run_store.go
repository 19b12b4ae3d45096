package engine

import (
	"context"
	"sync"
	"time"

	"github.com/vhvplatform/go-inspection-alert-service/internal/domain"
)

// MemoryReportRunStore keeps report timestamps for the life of the process
type MemoryReportRunStore struct {
	mu   sync.Mutex
	runs map[domain.ReportType]time.Time
}

// NewMemoryReportRunStore creates an empty in-memory run store
func NewMemoryReportRunStore() *MemoryReportRunStore {
	return &MemoryReportRunStore{runs: make(map[domain.ReportType]time.Time)}
}

func (s *MemoryReportRunStore) LastRuns(context.Context) (map[domain.ReportType]time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[domain.ReportType]time.Time, len(s.runs))
	for k, v := range s.runs {
		out[k] = v
	}
	return out, nil
}

func (s *MemoryReportRunStore) SaveRun(_ context.Context, run *domain.ReportRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[run.Type] = run.GeneratedAt
	return nil
}
