// Package app provides application use cases.
package app

import (
	"context"
	"sort"
	"time"
)

// Health statuses.
const (
	HealthOK       = "ok"
	HealthDegraded = "degraded"
)

// DefaultPingTimeout bounds each store ping.
const DefaultPingTimeout = 2 * time.Second

// HealthUsecase defines the health check use case.
type HealthUsecase interface {
	Handle(ctx context.Context) (HealthResult, error)
}

// Pinger is a store that can report connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthResult represents the health check response.
type HealthResult struct {
	Status  string            `json:"status"`
	Version string            `json:"version"`
	Stores  map[string]string `json:"stores,omitempty"`
}

// OK reports whether every store answered.
func (r HealthResult) OK() bool {
	return r.Status == HealthOK
}

// HealthService implements HealthUsecase.
type HealthService struct {
	Version string
	Stores  map[string]Pinger
	Timeout time.Duration
}

// Handle pings every store and returns the aggregate status.
func (s HealthService) Handle(ctx context.Context) (HealthResult, error) {
	res := HealthResult{Status: HealthOK, Version: s.Version}
	if len(s.Stores) == 0 {
		return res, nil
	}

	timeout := s.Timeout
	if timeout <= 0 {
		timeout = DefaultPingTimeout
	}

	names := make([]string, 0, len(s.Stores))
	for name := range s.Stores {
		names = append(names, name)
	}
	sort.Strings(names)

	res.Stores = make(map[string]string, len(names))
	for _, name := range names {
		pctx, cancel := context.WithTimeout(ctx, timeout)
		err := s.Stores[name].Ping(pctx)
		cancel()
		if err != nil {
			res.Stores[name] = "unavailable"
			res.Status = HealthDegraded
			continue
		}
		res.Stores[name] = HealthOK
	}
	return res, nil
}
