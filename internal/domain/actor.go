package domain

import "strings"

// AnonymousName is the display name recorded for actors without one.
const AnonymousName = "Anonymous"

// Actor identifies the user on whose behalf an operation runs.
type Actor struct {
	ID          string
	DisplayName string
	Email       string
}

// Anonymous reports whether no authenticated identity is present.
func (a Actor) Anonymous() bool {
	return strings.TrimSpace(a.ID) == ""
}

// Name returns the display name, falling back to AnonymousName.
func (a Actor) Name() string {
	if name := strings.TrimSpace(a.DisplayName); name != "" {
		return name
	}
	return AnonymousName
}
