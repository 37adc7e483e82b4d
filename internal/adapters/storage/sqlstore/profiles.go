package sqlstore

import (
	"context"

	"github.com/evanschultz/barter/internal/domain"
)

// UpsertProfile inserts or replaces one profile.
func (r *Repository) UpsertProfile(ctx context.Context, p domain.Profile) error {
	_, err := r.exec(ctx, "upsert profile", `
		INSERT INTO profiles(id, email, username, rating, total_reviews, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			email = excluded.email,
			username = excluded.username,
			rating = excluded.rating,
			total_reviews = excluded.total_reviews,
			updated_at = excluded.updated_at
	`, p.ID, p.Email, p.Username, p.Rating, p.TotalReviews, ts(p.CreatedAt), ts(p.UpdatedAt))
	return err
}

// GetProfile returns profile.
func (r *Repository) GetProfile(ctx context.Context, id string) (domain.Profile, error) {
	var (
		p          domain.Profile
		createdRaw string
		updatedRaw string
	)
	err := r.queryRow(ctx, `
		SELECT id, email, username, rating, total_reviews, created_at, updated_at
		FROM profiles
		WHERE id = ?
	`, id).Scan(&p.ID, &p.Email, &p.Username, &p.Rating, &p.TotalReviews, &createdRaw, &updatedRaw)
	if err != nil {
		return domain.Profile{}, storeErr("get profile", err)
	}
	p.CreatedAt = parseTS(createdRaw)
	p.UpdatedAt = parseTS(updatedRaw)
	return p, nil
}
