package hub

import (
	"Bridgeup/internal/model"
	"Bridgeup/internal/service"
	"Bridgeup/internal/signaling"
	"sort"
	"time"
)

// MonitorService provides methods to gather hub statistics
type MonitorService struct {
	hub *Hub
}

// NewMonitorService creates a new monitor service
func NewMonitorService(hub *Hub) *MonitorService {
	return &MonitorService{hub: hub}
}

// GetStats gathers and returns all hub statistics
func (ms *MonitorService) GetStats() model.MonitorResponse {
	callStats := ms.getCallStats()
	connectionStats := ms.getConnectionStats()
	clients := ms.getClientList()

	// Determine overall health status
	status := "healthy"
	if connectionStats.TotalSockets == 0 {
		status = "idle"
	}

	return model.MonitorResponse{
		Status:      status,
		Connections: connectionStats,
		Calls:       callStats,
		Clients:     clients,
		StatusCount: ms.getStatusCount(clients),
	}
}

// getConnectionStats returns connection statistics
func (ms *MonitorService) getConnectionStats() model.ConnectionStats {
	total, joined := ms.hub.SocketCount()
	users, _ := ms.hub.presence.Stats()

	// every live call holds exactly two users
	busy := 2 * len(ms.hub.calls.registry.Active())

	return model.ConnectionStats{
		TotalSockets:  total,
		JoinedSockets: joined,
		OnlineUsers:   users,
		BusyUsers:     busy,
	}
}

// getCallStats returns live call statistics
func (ms *MonitorService) getCallStats() model.CallStats {
	calls := ms.hub.calls.registry.Active()

	stats := model.CallStats{
		TotalActiveCalls: len(calls),
		Ringing: len(service.Filter(calls, func(s signaling.CallSession) bool {
			return s.State == signaling.StateRinging
		})),
		CallDetails: make([]model.CallInfo, 0, len(calls)),
	}
	stats.Active = stats.TotalActiveCalls - stats.Ringing

	for _, s := range calls {
		stats.CallDetails = append(stats.CallDetails, model.CallInfo{
			CallID:    s.CallID,
			CallerID:  s.CallerID,
			CalleeID:  s.CalleeID,
			State:     string(s.State),
			StartedAt: s.StartedAt.Format(time.RFC3339),
		})
	}

	return stats
}

// getClientList returns list of all connected clients
func (ms *MonitorService) getClientList() []model.ClientInfo {
	sockets := ms.hub.snapshotClients()
	clients := make([]model.ClientInfo, 0, len(sockets))

	for _, c := range sockets {
		info := model.ClientInfo{
			ClientID: c.ID,
			UserID:   c.UserID(),
			Status:   StatusConnected,
		}
		if info.UserID != "" {
			info.Status, info.CurrentCall = ms.hub.calls.userStatus(info.UserID)
		}
		clients = append(clients, info)
	}

	sort.Slice(clients, func(i, j int) bool { return clients[i].ClientID < clients[j].ClientID })
	return clients
}

// getStatusCount returns count of clients by status
func (ms *MonitorService) getStatusCount(clients []model.ClientInfo) map[string]int {
	statusCount := map[string]int{
		StatusConnected:   0,
		StatusOnline:      0,
		StatusGettingCall: 0,
		StatusInCall:      0,
	}

	for _, c := range clients {
		statusCount[c.Status]++
	}

	return statusCount
}
