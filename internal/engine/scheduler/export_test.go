package scheduler

import (
	"maps"

	"go.trai.ch/nest/internal/core/domain"
)

// StatusMap returns a copy of the internal node status map.
func (s *Scheduler) StatusMap() map[domain.DepID]NodeStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.nodeStatus)
}
