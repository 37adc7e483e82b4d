package domain

import (
	"strings"
	"time"
)

// Profile stores the per-user marketplace record. Rating fields are seeded, never computed.
type Profile struct {
	ID           string
	Email        string
	Username     string
	Rating       float64
	TotalReviews int
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// NewProfile seeds a profile for one actor.
func NewProfile(actor Actor, now time.Time) (Profile, error) {
	if actor.Anonymous() {
		return Profile{}, ErrInvalidID
	}
	return Profile{
		ID:        strings.TrimSpace(actor.ID),
		Email:     strings.TrimSpace(actor.Email),
		Username:  actor.Name(),
		CreatedAt: now.UTC(),
		UpdatedAt: now.UTC(),
	}, nil
}

// Rename changes the profile username.
func (p *Profile) Rename(username string, now time.Time) error {
	username = strings.TrimSpace(username)
	if username == "" {
		return ErrInvalidName
	}
	p.Username = username
	p.UpdatedAt = now.UTC()
	return nil
}
