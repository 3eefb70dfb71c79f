package models

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"

	"github.com/varianta/varianta/internal/database"
)

// Variant is one arm of an experiment. Config is an opaque payload applied
// client-side when the variant is shown; the server never interprets it.
type Variant struct {
	ID            uuid.UUID              `json:"variant_id"`
	ExperimentID  uuid.UUID              `json:"experiment_id"`
	Name          string                 `json:"name"`
	Description   *string                `json:"description,omitempty"`
	IsControl     bool                   `json:"is_control"`
	TrafficWeight int                    `json:"traffic_weight"`
	Config        map[string]interface{} `json:"config"`
	CreatedAt     string                 `json:"created_at"`
}

// CreateVariant inserts a variant for an experiment.
func CreateVariant(ctx context.Context, v *Variant) error {
	if v.ID == uuid.Nil {
		v.ID = uuid.New()
	}
	if v.Config == nil {
		v.Config = map[string]interface{}{}
	}

	configJSON, err := json.Marshal(v.Config)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO variant (variant_id, experiment_id, name, description, is_control, traffic_weight, config, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		RETURNING created_at`

	return database.DB.QueryRowContext(ctx, query,
		v.ID, v.ExperimentID, v.Name, v.Description, v.IsControl, v.TrafficWeight, configJSON,
	).Scan(&v.CreatedAt)
}

// ListVariants returns an experiment's variants with the control first.
func ListVariants(ctx context.Context, experimentID uuid.UUID) ([]*Variant, error) {
	query := `
		SELECT variant_id, experiment_id, name, description, is_control, traffic_weight, config, created_at
		FROM variant
		WHERE experiment_id = $1
		ORDER BY is_control DESC, created_at ASC`

	rows, err := database.DB.QueryContext(ctx, query, experimentID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var variants []*Variant
	for rows.Next() {
		var v Variant
		var configJSON []byte
		if err := rows.Scan(&v.ID, &v.ExperimentID, &v.Name, &v.Description,
			&v.IsControl, &v.TrafficWeight, &configJSON, &v.CreatedAt); err != nil {
			return nil, err
		}
		if len(configJSON) > 0 {
			if err := json.Unmarshal(configJSON, &v.Config); err != nil {
				return nil, err
			}
		}
		variants = append(variants, &v)
	}
	return variants, rows.Err()
}

// UpdateVariant patches mutable fields; nil pointers leave columns alone.
func UpdateVariant(ctx context.Context, id uuid.UUID, name, description *string, trafficWeight *int, config map[string]interface{}) error {
	var configJSON interface{}
	if config != nil {
		raw, err := json.Marshal(config)
		if err != nil {
			return err
		}
		configJSON = raw
	}

	query := `
		UPDATE variant
		SET name = COALESCE($1, name),
		    description = COALESCE($2, description),
		    traffic_weight = COALESCE($3, traffic_weight),
		    config = COALESCE($4, config)
		WHERE variant_id = $5`

	_, err := database.DB.ExecContext(ctx, query, name, description, trafficWeight, configJSON, id)
	return err
}

// DeleteVariant removes a variant; its events cascade.
func DeleteVariant(ctx context.Context, id uuid.UUID) error {
	_, err := database.DB.ExecContext(ctx, `DELETE FROM variant WHERE variant_id = $1`, id)
	return err
}
