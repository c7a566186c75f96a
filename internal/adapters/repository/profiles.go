package repository

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/okian/affinity/internal/domain/model"
)

// encodeVector converts a []float64 to a binary BLOB (8 bytes per float64).
func encodeVector(vec []float64) []byte {
	buf := make([]byte, len(vec)*8)
	for i, v := range vec {
		binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(v))
	}
	return buf
}

// decodeVector converts a binary BLOB back to []float64.
func decodeVector(buf []byte) []float64 {
	n := len(buf) / 8
	vec := make([]float64, n)
	for i := 0; i < n; i++ {
		vec[i] = math.Float64frombits(binary.LittleEndian.Uint64(buf[i*8:]))
	}
	return vec
}

// GetUserProfile returns the current profile for a user, or ErrNotFound.
func (s *Store) GetUserProfile(ctx context.Context, userID string) (*model.UserProfile, error) {
	var (
		p                                                  model.UserProfile
		cultural, behavioral, economic, spatial, composite []byte
		lastInteraction                                    sql.NullInt64
		updatedAt                                          int64
	)
	err := s.QueryRowContext(ctx, `
		SELECT user_id, vec_cultural, vec_behavioral, vec_economic, vec_spatial, vec_composite,
		       dimensions, generation, half_life_days, learning_rate, confidence,
		       last_interaction, updated_at
		FROM user_profiles WHERE user_id = ?
	`, userID).Scan(&p.UserID, &cultural, &behavioral, &economic, &spatial, &composite,
		&p.Dimensions, &p.Generation, &p.HalfLifeDays, &p.LearningRate, &p.Confidence,
		&lastInteraction, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("user profile %s: %w", userID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get user profile %s: %w", userID, err)
	}

	p.Vectors[0] = decodeVector(cultural)
	p.Vectors[1] = decodeVector(behavioral)
	p.Vectors[2] = decodeVector(economic)
	p.Vectors[3] = decodeVector(spatial)
	p.Composite = decodeVector(composite)
	if lastInteraction.Valid {
		p.LastInteraction = fromMillis(lastInteraction.Int64)
	}
	p.UpdatedAt = fromMillis(updatedAt)
	return &p, nil
}

// PutUserProfile upserts the profile row; the four domain vectors and the
// composite are written in one statement so they stay consistent.
func (s *Store) PutUserProfile(ctx context.Context, p *model.UserProfile) error {
	_, err := s.ExecContext(ctx, `
		INSERT INTO user_profiles (
			user_id, vec_cultural, vec_behavioral, vec_economic, vec_spatial, vec_composite,
			dimensions, generation, half_life_days, learning_rate, confidence,
			last_interaction, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			vec_cultural = excluded.vec_cultural,
			vec_behavioral = excluded.vec_behavioral,
			vec_economic = excluded.vec_economic,
			vec_spatial = excluded.vec_spatial,
			vec_composite = excluded.vec_composite,
			dimensions = excluded.dimensions,
			generation = excluded.generation,
			half_life_days = excluded.half_life_days,
			learning_rate = excluded.learning_rate,
			confidence = excluded.confidence,
			last_interaction = excluded.last_interaction,
			updated_at = excluded.updated_at
	`,
		p.UserID,
		encodeVector(p.Vectors[0]), encodeVector(p.Vectors[1]),
		encodeVector(p.Vectors[2]), encodeVector(p.Vectors[3]),
		encodeVector(p.Composite),
		p.Dimensions, p.Generation, p.HalfLifeDays, p.LearningRate, p.Confidence,
		nullMillis(p.LastInteraction), toMillis(p.UpdatedAt))
	if err != nil {
		return fmt.Errorf("put user profile %s: %w", p.UserID, err)
	}
	return nil
}

// CountUserProfiles returns the number of tracked user profiles.
func (s *Store) CountUserProfiles(ctx context.Context) (int, error) {
	var n int
	if err := s.QueryRowContext(ctx, `SELECT COUNT(*) FROM user_profiles`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count user profiles: %w", err)
	}
	return n, nil
}

// GetEntityProfile returns the embedding for an entity, or ErrNotFound.
// Entity profiles are supplied by the external generator and are
// read-only from the pipeline's perspective.
func (s *Store) GetEntityProfile(ctx context.Context, entityID string) (*model.EntityProfile, error) {
	var (
		p                                       model.EntityProfile
		cultural, behavioral, economic, spatial []byte
		updatedAt                               int64
	)
	err := s.QueryRowContext(ctx, `
		SELECT entity_id, kind, vec_cultural, vec_behavioral, vec_economic, vec_spatial,
		       dimensions, updated_at
		FROM entity_profiles WHERE entity_id = ?
	`, entityID).Scan(&p.EntityID, &p.Kind, &cultural, &behavioral, &economic, &spatial,
		&p.Dimensions, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("entity profile %s: %w", entityID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get entity profile %s: %w", entityID, err)
	}

	p.Vectors[0] = decodeVector(cultural)
	p.Vectors[1] = decodeVector(behavioral)
	p.Vectors[2] = decodeVector(economic)
	p.Vectors[3] = decodeVector(spatial)
	p.UpdatedAt = fromMillis(updatedAt)
	return &p, nil
}

// PutEntityProfile upserts an externally generated entity embedding.
func (s *Store) PutEntityProfile(ctx context.Context, p *model.EntityProfile) error {
	_, err := s.ExecContext(ctx, `
		INSERT INTO entity_profiles (
			entity_id, kind, vec_cultural, vec_behavioral, vec_economic, vec_spatial,
			dimensions, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(entity_id) DO UPDATE SET
			kind = excluded.kind,
			vec_cultural = excluded.vec_cultural,
			vec_behavioral = excluded.vec_behavioral,
			vec_economic = excluded.vec_economic,
			vec_spatial = excluded.vec_spatial,
			dimensions = excluded.dimensions,
			updated_at = excluded.updated_at
	`,
		p.EntityID, p.Kind,
		encodeVector(p.Vectors[0]), encodeVector(p.Vectors[1]),
		encodeVector(p.Vectors[2]), encodeVector(p.Vectors[3]),
		p.Dimensions, toMillis(p.UpdatedAt))
	if err != nil {
		return fmt.Errorf("put entity profile %s: %w", p.EntityID, err)
	}
	return nil
}
