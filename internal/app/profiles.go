package app

import (
	"context"
	"errors"
	"strings"

	"github.com/evanschultz/barter/internal/domain"
)

// EnsureProfile returns actor's profile, seeding it on first sight.
func (s *Service) EnsureProfile(ctx context.Context, actor domain.Actor) (domain.Profile, error) {
	if actor.Anonymous() {
		return domain.Profile{}, ErrUnauthenticated
	}
	profile, err := s.profiles.GetProfile(ctx, actor.ID)
	if err == nil {
		return profile, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return domain.Profile{}, err
	}
	profile, err = domain.NewProfile(actor, s.now())
	if err != nil {
		return domain.Profile{}, err
	}
	if err := s.profiles.UpsertProfile(ctx, profile); err != nil {
		return domain.Profile{}, err
	}
	return profile, nil
}

// FindProfile returns the profile and whether it exists.
func (s *Service) FindProfile(ctx context.Context, userID string) (domain.Profile, bool, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return domain.Profile{}, false, nil
	}
	profile, err := s.profiles.GetProfile(ctx, userID)
	if errors.Is(err, ErrNotFound) {
		return domain.Profile{}, false, nil
	}
	if err != nil {
		return domain.Profile{}, false, err
	}
	return profile, true, nil
}

// UpdateProfile renames actor's profile. Names already copied onto items and offers are left as they were.
func (s *Service) UpdateProfile(ctx context.Context, actor domain.Actor, username string) (domain.Profile, error) {
	profile, err := s.EnsureProfile(ctx, actor)
	if err != nil {
		return domain.Profile{}, err
	}
	if err := profile.Rename(username, s.now()); err != nil {
		return domain.Profile{}, err
	}
	if err := s.profiles.UpsertProfile(ctx, profile); err != nil {
		return domain.Profile{}, err
	}
	return profile, nil
}
