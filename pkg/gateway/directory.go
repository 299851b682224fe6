package gateway

import (
	"context"
	"sync"
)

// Directory resolves institutions and filing periods and hands out
// submission sequence numbers. It is an external collaborator; the
// gateway only cares about this boundary.
type Directory interface {
	HasInstitution(ctx context.Context, institutionID string) (bool, error)
	HasFiling(ctx context.Context, institutionID, period string) (bool, error)
	// NextSequence allocates the next submission sequence number for
	// the filing, starting at 1.
	NextSequence(ctx context.Context, institutionID, period string) (int, error)
}

// MemoryDirectory is the in-process Directory used in tests and
// single-node deployments.
type MemoryDirectory struct {
	mu      sync.Mutex
	filings map[string]map[string]int
}

func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{filings: make(map[string]map[string]int)}
}

// AddInstitution registers an institution with no filings yet.
func (d *MemoryDirectory) AddInstitution(institutionID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.filings[institutionID]; !ok {
		d.filings[institutionID] = make(map[string]int)
	}
}

// AddFiling registers a filing period for an institution.
func (d *MemoryDirectory) AddFiling(institutionID, period string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	periods, ok := d.filings[institutionID]
	if !ok {
		periods = make(map[string]int)
		d.filings[institutionID] = periods
	}
	if _, ok := periods[period]; !ok {
		periods[period] = 0
	}
}

func (d *MemoryDirectory) HasInstitution(_ context.Context, institutionID string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.filings[institutionID]
	return ok, nil
}

func (d *MemoryDirectory) HasFiling(_ context.Context, institutionID, period string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	periods, ok := d.filings[institutionID]
	if !ok {
		return false, nil
	}
	_, ok = periods[period]
	return ok, nil
}

func (d *MemoryDirectory) NextSequence(_ context.Context, institutionID, period string) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.filings[institutionID][period]++
	return d.filings[institutionID][period], nil
}

var _ Directory = (*MemoryDirectory)(nil)
