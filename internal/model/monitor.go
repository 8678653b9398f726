package model

// -----------------------------------------------------------------
// Monitor API Response Models
// -----------------------------------------------------------------

// MonitorResponse is the main response for the monitor API
type MonitorResponse struct {
	Status      string          `json:"status"`      // "healthy" or "idle"
	Connections ConnectionStats `json:"connections"` // Socket and presence stats
	Calls       CallStats       `json:"calls"`       // Live call stats
	Clients     []ClientInfo    `json:"clients"`     // Connected sockets
	StatusCount map[string]int  `json:"statusCount"` // Sockets per status
}

// ConnectionStats holds connection-related statistics
type ConnectionStats struct {
	TotalSockets  int `json:"totalSockets"`  // Open websocket connections, joined or not
	JoinedSockets int `json:"joinedSockets"` // Sockets bound to a user
	OnlineUsers   int `json:"onlineUsers"`   // Distinct users with at least one socket
	BusyUsers     int `json:"busyUsers"`     // Users in a ringing or active call
}

// CallStats holds live call statistics
type CallStats struct {
	TotalActiveCalls int        `json:"totalActiveCalls"`
	Ringing          int        `json:"ringing"`
	Active           int        `json:"active"`
	CallDetails      []CallInfo `json:"callDetails"`
}

// CallInfo contains information about a single live call
type CallInfo struct {
	CallID    string `json:"callId"`
	CallerID  string `json:"callerId"`
	CalleeID  string `json:"calleeId"`
	State     string `json:"state"`
	StartedAt string `json:"startedAt"` // ISO timestamp
}

// ClientInfo contains information about a connected socket
type ClientInfo struct {
	ClientID    string `json:"clientId"`
	UserID      string `json:"userId,omitempty"`
	Status      string `json:"status"`                // "connected", "online", "ringing" or "in_call"
	CurrentCall string `json:"currentCall,omitempty"` // callId if in a call
}
