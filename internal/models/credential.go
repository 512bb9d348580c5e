package models

import "time"

// CredentialBundle is one user's OAuth tokens for the video platform plus denormalized channel identity.
type CredentialBundle struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	TokenType    string    `json:"token_type,omitempty"`
	Expiry       time.Time `json:"expiry"`
	ChannelID    string    `json:"channel_id"`
	ChannelName  string    `json:"channel_name"`
}

// ExpiresWithin reports whether the access token expires within d of now.
func (b *CredentialBundle) ExpiresWithin(now time.Time, d time.Duration) bool {
	if b.Expiry.IsZero() {
		return false
	}
	return b.Expiry.Sub(now) <= d
}
