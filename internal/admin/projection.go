package admin

import (
	"context"

	"github.com/thoughtswap/thoughtswap/internal/models"
	"github.com/thoughtswap/thoughtswap/internal/store"
)

const recentLogLimit = 500

// Stats are the headline numbers on the admin dashboard. Thought and swap
// totals cover consented authors only.
type Stats struct {
	TotalConsented int64 `json:"totalConsented"`
	TotalUsers     int64 `json:"totalUsers"`
	ActiveUsers    int   `json:"activeUsers"`
	ActiveSessions int   `json:"activeSessions"`
	TotalThoughts  int   `json:"totalThoughts"`
	TotalSwaps     int   `json:"totalSwaps"`
}

// Snapshot is the on-demand aggregation returned for ADMIN_GET_DATA.
type Snapshot struct {
	Sessions []store.ActiveSessionInfo `json:"sessions"`
	Thoughts []store.ThoughtWithAuthor `json:"thoughts"`
	Swaps    []models.SwapRequest      `json:"swaps"`
	Logs     []models.LogEvent         `json:"logs"`
	Stats    Stats                     `json:"stats"`
}

// Projection computes read-only aggregates over the store and the live
// connection count. The admin client polls; nothing is cached here.
type Projection struct {
	store store.Store
}

func NewProjection(st store.Store) *Projection {
	return &Projection{store: st}
}

func (p *Projection) Snapshot(ctx context.Context, activeConns int) (*Snapshot, error) {
	sessions, err := p.store.ListActiveSessions(ctx)
	if err != nil {
		return nil, err
	}
	thoughts, err := p.store.ListConsentedThoughts(ctx)
	if err != nil {
		return nil, err
	}
	swaps, err := p.store.ListConsentedSwapRequests(ctx)
	if err != nil {
		return nil, err
	}
	logs, err := p.store.RecentLogEvents(ctx, recentLogLimit)
	if err != nil {
		return nil, err
	}
	total, consented, err := p.store.UserStats(ctx)
	if err != nil {
		return nil, err
	}
	if sessions == nil {
		sessions = []store.ActiveSessionInfo{}
	}
	if thoughts == nil {
		thoughts = []store.ThoughtWithAuthor{}
	}
	if swaps == nil {
		swaps = []models.SwapRequest{}
	}
	if logs == nil {
		logs = []models.LogEvent{}
	}
	return &Snapshot{
		Sessions: sessions,
		Thoughts: thoughts,
		Swaps:    swaps,
		Logs:     logs,
		Stats: Stats{
			TotalConsented: consented,
			TotalUsers:     total,
			ActiveUsers:    activeConns,
			ActiveSessions: len(sessions),
			TotalThoughts:  len(thoughts),
			TotalSwaps:     len(swaps),
		},
	}, nil
}
