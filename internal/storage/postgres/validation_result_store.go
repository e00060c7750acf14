package postgres

import (
	"context"
	"fmt"

	"backtest-lab/internal/domain"
	"backtest-lab/internal/storage"
)

// ValidationResultStore implements storage.ValidationResultStore using
// PostgreSQL. The trial distribution is stored as float8[] in trial
// index order.
type ValidationResultStore struct {
	pool *Pool
}

// NewValidationResultStore creates a new ValidationResultStore.
func NewValidationResultStore(pool *Pool) *ValidationResultStore {
	return &ValidationResultStore{pool: pool}
}

// Compile-time interface check.
var _ storage.ValidationResultStore = (*ValidationResultStore)(nil)

// Insert adds one method's result. Returns ErrDuplicateKey if
// (run_id, method) exists.
func (s *ValidationResultStore) Insert(ctx context.Context, runID string, r *domain.ValidationResult) error {
	if runID == "" || r == nil || r.Method == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO validation_results (
			run_id, method, statistic, observed,
			distribution, distribution_digest, trial_count,
			p_value, ci_low, ci_high, ci_width, gate_passed,
			skipped, skip_reason
		) VALUES (
			$1, $2, $3, $4,
			$5, $6, $7,
			$8, $9, $10, $11, $12,
			$13, $14
		)
	`

	_, err := s.pool.Exec(ctx, query,
		runID, string(r.Method), r.Statistic, r.Observed,
		r.Distribution, r.DistributionDigest, r.TrialCount,
		r.PValue, r.CILow, r.CIHigh, r.CIWidth, r.GatePassed,
		r.Skipped, r.SkipReason,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert validation result: %w", err)
	}
	return nil
}

// GetByRunID retrieves all results for a run, ordered by method ASC.
func (s *ValidationResultStore) GetByRunID(ctx context.Context, runID string) ([]*domain.ValidationResult, error) {
	query := `
		SELECT method, statistic, observed,
			distribution, distribution_digest, trial_count,
			p_value, ci_low, ci_high, ci_width, gate_passed,
			skipped, skip_reason
		FROM validation_results
		WHERE run_id = $1
		ORDER BY method ASC
	`

	rows, err := s.pool.Query(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("get validation results by run id: %w", err)
	}
	defer rows.Close()

	var results []*domain.ValidationResult
	for rows.Next() {
		var r domain.ValidationResult
		var method string
		err := rows.Scan(
			&method, &r.Statistic, &r.Observed,
			&r.Distribution, &r.DistributionDigest, &r.TrialCount,
			&r.PValue, &r.CILow, &r.CIHigh, &r.CIWidth, &r.GatePassed,
			&r.Skipped, &r.SkipReason,
		)
		if err != nil {
			return nil, fmt.Errorf("scan validation result row: %w", err)
		}
		r.Method = domain.ValidationMethod(method)
		results = append(results, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate validation result rows: %w", err)
	}
	if results == nil {
		return nil, storage.ErrNotFound
	}
	return results, nil
}
