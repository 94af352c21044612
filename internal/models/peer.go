package models

// DefaultPreview is shown for a conversation that has no messages yet.
const DefaultPreview = "Start a conversation..."

// ConversationPeer is a clinic the local user can chat with.
type ConversationPeer struct {
	ID                 string `json:"id"`
	DisplayName        string `json:"name"`
	AvatarURL          string `json:"avatar_url,omitempty"`
	LastMessagePreview string `json:"last_message"`
}

// ClinicRecord mirrors the directory service response shape.
type ClinicRecord struct {
	ClinicID   string `json:"clinic_id"`
	ClinicName string `json:"clinic_name"`
	ImageURL   string `json:"image_url"`
}

// PeerFromClinic maps a directory record into a conversation peer.
func PeerFromClinic(rec ClinicRecord) ConversationPeer {
	return ConversationPeer{
		ID:                 rec.ClinicID,
		DisplayName:        rec.ClinicName,
		AvatarURL:          rec.ImageURL,
		LastMessagePreview: DefaultPreview,
	}
}
