package agentstatus

import (
	"time"

	"github.com/hiveobs/hive/pkg/models"
)

// Merge joins historical agents from the event store with the live session
// registry for the discovery view. Sessions match historical rows by
// instance id first, then by agent name; unmatched historical agents are
// disconnected, and unmatched live instances are appended with no history.
func Merge(historical []models.DistinctAgent, connected []models.AgentSession, now time.Time) []models.AgentInfo {
	byInstance := make(map[string]*models.AgentSession, len(connected))
	byName := make(map[string]*models.AgentSession, len(connected))
	matched := make(map[string]bool, len(connected))
	for i := range connected {
		s := &connected[i]
		byInstance[s.InstanceID] = s
		if s.AgentName != "" {
			if _, taken := byName[s.AgentName]; !taken {
				byName[s.AgentName] = s
			}
		}
	}

	out := make([]models.AgentInfo, 0, len(historical)+len(connected))
	for _, h := range historical {
		info := models.AgentInfo{
			Agent:         h.Agent,
			AgentName:     h.AgentName,
			TotalRequests: h.TotalRequests,
			TotalCost:     h.TotalCost,
		}
		first, last := h.FirstSeen, h.LastSeen
		info.FirstSeen = &first
		info.LastSeen = &last

		s := byInstance[h.Agent]
		if s == nil && h.AgentName != "" {
			s = byName[h.AgentName]
		}
		if s == nil {
			s = byName[h.Agent]
		}

		if s != nil {
			matched[s.InstanceID] = true
			info.Connected = true
			info.InstanceID = s.InstanceID
			hb := s.LastHeartbeat
			info.LastHeartbeat = &hb
			if Healthy(s, now) {
				info.Status = "healthy"
			} else {
				info.Status = "stale"
			}
		} else {
			info.Status = "disconnected"
		}
		out = append(out, info)
	}

	// Currently-connected instances with no historical events.
	for i := range connected {
		s := &connected[i]
		if matched[s.InstanceID] {
			continue
		}
		hb := s.LastHeartbeat
		info := models.AgentInfo{
			Agent:         s.AgentName,
			AgentName:     s.AgentName,
			Connected:     true,
			InstanceID:    s.InstanceID,
			LastHeartbeat: &hb,
		}
		if info.Agent == "" {
			info.Agent = s.InstanceID
		}
		if Healthy(s, now) {
			info.Status = "healthy"
		} else {
			info.Status = "stale"
		}
		out = append(out, info)
	}
	return out
}
