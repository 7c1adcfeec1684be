package task

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// EvictExpired drops finished tasks not updated within the TTL and removes
// their files. While the data dir's disk is above the pressure threshold the
// TTL is halved. It returns the number of evicted tasks.
func (m *Manager) EvictExpired(now time.Time) int {
	ttl := m.effectiveTTL()
	evicted := m.store.EvictTerminal(now.Add(-ttl))
	for _, t := range evicted {
		if err := m.layout.RemoveTaskDir(t.ID); err != nil {
			log.Warn().Str("task_id", t.ID).Err(err).Msg("remove expired task files failed")
		}
	}
	if len(evicted) > 0 {
		log.Info().Int("evicted", len(evicted)).Dur("ttl", ttl).Msg("expired tasks evicted")
	}
	return len(evicted)
}

// effectiveTTL is the configured TTL, or half of it under disk pressure.
func (m *Manager) effectiveTTL() time.Duration {
	m.mu.RLock()
	usage := m.diskUsage
	m.mu.RUnlock()
	if usage == nil {
		return m.taskTTL
	}

	pct, err := usage(m.layout.Root())
	if err != nil {
		log.Debug().Err(err).Str("data_dir", m.layout.Root()).Msg("disk usage unavailable")
		return m.taskTTL
	}
	if pct < m.diskPressure {
		return m.taskTTL
	}
	log.Warn().
		Float64("disk_percent", pct).
		Float64("threshold", m.diskPressure).
		Dur("ttl", m.taskTTL/2).
		Msg("high disk usage, shortening task ttl")
	return m.taskTTL / 2
}

// RunJanitor evicts expired tasks every interval until ctx is done.
func (m *Manager) RunJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = m.taskTTL / 4
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			m.EvictExpired(now)
		}
	}
}
