package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"backtest-lab/internal/domain"
	"backtest-lab/internal/storage"
)

// ManifestStore implements storage.ManifestStore using PostgreSQL.
// Seed tree and artifact lists are stored as JSONB.
type ManifestStore struct {
	pool *Pool
}

// NewManifestStore creates a new ManifestStore.
func NewManifestStore(pool *Pool) *ManifestStore {
	return &ManifestStore{pool: pool}
}

// Compile-time interface check.
var _ storage.ManifestStore = (*ManifestStore)(nil)

const manifestColumns = `
	run_id, run_hash, config_hash, dataset_digest,
	seed_tree, float_precision, created_at,
	status, failure_cause, final_phase, artifacts,
	gaps, duplicates, nan_signals, zero_volume_bars,
	violation_count, prev_manifest_digest
`

// Insert adds a new manifest. Returns ErrDuplicateKey if run_id exists.
func (s *ManifestStore) Insert(ctx context.Context, m *domain.RunManifest) error {
	seedTree, err := json.Marshal(m.SeedTree)
	if err != nil {
		return fmt.Errorf("marshal seed tree: %w", err)
	}
	artifacts, err := json.Marshal(m.Artifacts)
	if err != nil {
		return fmt.Errorf("marshal artifacts: %w", err)
	}

	query := `
		INSERT INTO run_manifests (` + manifestColumns + `) VALUES (
			$1, $2, $3, $4,
			$5, $6, $7,
			$8, $9, $10, $11,
			$12, $13, $14, $15,
			$16, $17
		)
	`

	_, err = s.pool.Exec(ctx, query,
		m.RunID, m.RunHash, m.ConfigHash, m.DatasetDigest,
		seedTree, m.FloatPrecision, m.CreatedAt,
		string(m.Status), m.FailureCause, string(m.FinalPhase), artifacts,
		m.Anomalies.Gaps, m.Anomalies.Duplicates, m.Anomalies.NaNSignals, m.Anomalies.ZeroVolumeBars,
		m.Violations.ViolationCount, m.PrevManifestDigest,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert run manifest: %w", err)
	}
	return nil
}

// GetByRunID retrieves a manifest by run ID. Returns ErrNotFound if not exists.
func (s *ManifestStore) GetByRunID(ctx context.Context, runID string) (*domain.RunManifest, error) {
	query := `SELECT ` + manifestColumns + ` FROM run_manifests WHERE run_id = $1`

	row := s.pool.QueryRow(ctx, query, runID)
	m, err := scanManifest(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get manifest by run id: %w", err)
	}
	return m, nil
}

// GetLatest retrieves the most recently created manifest.
func (s *ManifestStore) GetLatest(ctx context.Context) (*domain.RunManifest, error) {
	query := `SELECT ` + manifestColumns + ` FROM run_manifests ORDER BY created_at DESC, run_id DESC LIMIT 1`

	row := s.pool.QueryRow(ctx, query)
	m, err := scanManifest(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get latest manifest: %w", err)
	}
	return m, nil
}

// GetAll retrieves all manifests ordered by created_at ASC, run_id ASC.
func (s *ManifestStore) GetAll(ctx context.Context) ([]*domain.RunManifest, error) {
	query := `SELECT ` + manifestColumns + ` FROM run_manifests ORDER BY created_at ASC, run_id ASC`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("get all manifests: %w", err)
	}
	defer rows.Close()

	var manifests []*domain.RunManifest
	for rows.Next() {
		m, err := scanManifest(rows)
		if err != nil {
			return nil, fmt.Errorf("scan manifest row: %w", err)
		}
		manifests = append(manifests, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate manifest rows: %w", err)
	}
	return manifests, nil
}

// scanManifest scans one row into a RunManifest.
func scanManifest(row pgx.Row) (*domain.RunManifest, error) {
	var m domain.RunManifest
	var status, finalPhase string
	var seedTree, artifacts []byte

	err := row.Scan(
		&m.RunID, &m.RunHash, &m.ConfigHash, &m.DatasetDigest,
		&seedTree, &m.FloatPrecision, &m.CreatedAt,
		&status, &m.FailureCause, &finalPhase, &artifacts,
		&m.Anomalies.Gaps, &m.Anomalies.Duplicates, &m.Anomalies.NaNSignals, &m.Anomalies.ZeroVolumeBars,
		&m.Violations.ViolationCount, &m.PrevManifestDigest,
	)
	if err != nil {
		return nil, err
	}

	m.Status = domain.RunStatus(status)
	m.FinalPhase = domain.Phase(finalPhase)
	if err := json.Unmarshal(seedTree, &m.SeedTree); err != nil {
		return nil, fmt.Errorf("unmarshal seed tree: %w", err)
	}
	if err := json.Unmarshal(artifacts, &m.Artifacts); err != nil {
		return nil, fmt.Errorf("unmarshal artifacts: %w", err)
	}
	return &m, nil
}
