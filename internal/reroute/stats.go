package reroute

import (
	"fmt"
	"strings"
	"sync/atomic"
)

// statsCollector counts outcomes for the periodic stats line. Nothing here
// is persisted.
type statsCollector struct {
	redirects atomic.Uint64
	passes    atomic.Uint64
	excluded  atomic.Uint64
	recovered atomic.Uint64
}

func newStatsCollector() *statsCollector {
	return &statsCollector{}
}

func (s *statsCollector) Observe(o Outcome) {
	if o.IsRedirect() {
		s.redirects.Add(1)
		return
	}
	s.passes.Add(1)
}

func (s *statsCollector) ObserveExcluded() { s.excluded.Add(1) }

func (s *statsCollector) ObserveRecovered() { s.recovered.Add(1) }

type statsSnapshot struct {
	Redirects uint64
	Passes    uint64
	Excluded  uint64
	Recovered uint64
}

func (s *statsCollector) Snapshot() statsSnapshot {
	return statsSnapshot{
		Redirects: s.redirects.Load(),
		Passes:    s.passes.Load(),
		Excluded:  s.excluded.Load(),
		Recovered: s.recovered.Load(),
	}
}

func formatBytes(b uint64) string {
	const (
		kb = 1024
		mb = 1024 * kb
		gb = 1024 * mb
	)
	if b < kb {
		return fmt.Sprintf("%db", b)
	}
	if b < mb {
		return trimFloat(fmt.Sprintf("%.1f", float64(b)/kb)) + "kb"
	}
	if b < gb {
		return trimFloat(fmt.Sprintf("%.1f", float64(b)/mb)) + "mb"
	}
	return trimFloat(fmt.Sprintf("%.1f", float64(b)/gb)) + "gb"
}

func trimFloat(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, ".0")
	return s
}
