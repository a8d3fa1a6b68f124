package models

// Identity is what the auth service vouches for when a socket connects.
type Identity struct {
	UserID      string
	DisplayName string
	AvatarRef   string
	Campus      string
	Batch       string
	Department  string
}

// PeerProfile is the profile summary shown to a matched peer.
type PeerProfile struct {
	UserID     string `json:"id"`
	Name       string `json:"name"`
	Avatar     string `json:"avatar,omitempty"`
	Campus     string `json:"campus,omitempty"`
	Batch      string `json:"batch,omitempty"`
	Department string `json:"department,omitempty"`
}

func (i Identity) Profile() PeerProfile {
	return PeerProfile{
		UserID:     i.UserID,
		Name:       i.DisplayName,
		Avatar:     i.AvatarRef,
		Campus:     i.Campus,
		Batch:      i.Batch,
		Department: i.Department,
	}
}

// RoomMember is one entry of the all-users list: a connection and its profile.
type RoomMember struct {
	SocketID string `json:"socketId"`
	PeerProfile
}
