package models

// PortalEvent is broadcasted through the UI websocket channel.
type PortalEvent struct {
	Type        string   `json:"type"`
	Message     *Message `json:"message,omitempty"`
	PeerID      string   `json:"peer_id,omitempty"`
	Preview     string   `json:"preview,omitempty"`
	Unread      int      `json:"unread,omitempty"`
	TotalUnread int      `json:"total_unread,omitempty"`
	Connected   bool     `json:"connected,omitempty"`
}
