package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// PostgresStore implements Store using PostgreSQL
type PostgresStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresStore creates a new Postgres store
func NewPostgresStore(url string, logger *slog.Logger) (*PostgresStore, error) {
	db, err := sql.Open("pgx", url)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &PostgresStore{db: db, logger: logger}, nil
}

// Close closes the database connection
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// Migrate runs database migrations
func (s *PostgresStore) Migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS deployments (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		contract_name TEXT NOT NULL,
		network TEXT NOT NULL,
		chain_id BIGINT NOT NULL,
		address TEXT NOT NULL,
		deployer_address TEXT NOT NULL,
		tx_hash TEXT NOT NULL,
		block_number BIGINT NOT NULL,
		constructor_args TEXT,
		status TEXT NOT NULL,
		failed_step TEXT NOT NULL DEFAULT '',
		error TEXT NOT NULL DEFAULT '',
		verification_status TEXT NOT NULL DEFAULT '',
		verification_guid TEXT NOT NULL DEFAULT '',
		verified_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE(chain_id, address)
	);

	CREATE TABLE IF NOT EXISTS tier_seeds (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		deployment_id UUID NOT NULL REFERENCES deployments(id) ON DELETE CASCADE,
		position INTEGER NOT NULL,
		name TEXT NOT NULL,
		amount_wei NUMERIC(78, 0) NOT NULL,
		tx_hash TEXT NOT NULL,
		block_number BIGINT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE(deployment_id, position)
	);

	CREATE INDEX IF NOT EXISTS idx_deployments_created ON deployments(created_at);
	CREATE INDEX IF NOT EXISTS idx_tier_seeds_deployment ON tier_seeds(deployment_id);
	`

	_, err := s.db.ExecContext(ctx, schema)
	if err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	s.logger.Debug("postgres migrations complete")
	return nil
}

// RecordDeployment records a deployment
func (s *PostgresStore) RecordDeployment(ctx context.Context, d *Deployment) error {
	prepareDeployment(d)
	createdAt, err := time.Parse(TimeFormat, d.CreatedAt)
	if err != nil {
		return fmt.Errorf("invalid created_at %q: %w", d.CreatedAt, err)
	}
	query := `
		INSERT INTO deployments (id, contract_name, network, chain_id, address, deployer_address, tx_hash, block_number,
			constructor_args, status, failed_step, error, verification_status, verification_guid, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $15)
	`
	_, err = s.db.ExecContext(ctx, query,
		d.ID, d.ContractName, d.Network, d.ChainID, d.Address, d.DeployerAddress, d.TxHash, d.BlockNumber,
		d.ConstructorArgs, d.Status, d.FailedStep, d.Error, d.VerificationStatus, d.VerificationGUID, createdAt,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: %s on chain %d", ErrAlreadyRecorded, d.Address, d.ChainID)
	}
	return err
}

const postgresDeploymentColumns = `id, contract_name, network, chain_id, address, deployer_address, tx_hash, block_number,
	COALESCE(constructor_args, ''), status, failed_step, error, verification_status, verification_guid,
	verified_at, created_at, updated_at`

func scanPostgresDeployment(row interface{ Scan(...any) error }) (*Deployment, error) {
	var d Deployment
	var verifiedAt sql.NullTime
	var createdAt, updatedAt time.Time
	err := row.Scan(
		&d.ID, &d.ContractName, &d.Network, &d.ChainID, &d.Address, &d.DeployerAddress, &d.TxHash, &d.BlockNumber,
		&d.ConstructorArgs, &d.Status, &d.FailedStep, &d.Error, &d.VerificationStatus, &d.VerificationGUID,
		&verifiedAt, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}
	if verifiedAt.Valid {
		d.VerifiedAt = verifiedAt.Time.UTC().Format(TimeFormat)
	}
	d.CreatedAt = createdAt.UTC().Format(TimeFormat)
	d.UpdatedAt = updatedAt.UTC().Format(TimeFormat)
	return &d, nil
}

// GetDeployment retrieves a deployment by chain and address
func (s *PostgresStore) GetDeployment(ctx context.Context, chainID int64, address string) (*Deployment, error) {
	query := `SELECT ` + postgresDeploymentColumns + ` FROM deployments WHERE chain_id = $1 AND address = $2`
	d, err := scanPostgresDeployment(s.db.QueryRowContext(ctx, query, chainID, normalizeAddress(address)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return d, err
}

// ListDeployments lists deployments, newest first
func (s *PostgresStore) ListDeployments(ctx context.Context, filter DeploymentFilter, pagination PaginationParams) (*PaginatedResult[Deployment], error) {
	limit := clampLimit(pagination.Limit)

	var where []string
	var args []any
	if filter.ChainID != 0 {
		args = append(args, filter.ChainID)
		where = append(where, fmt.Sprintf("chain_id = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}

	query := `SELECT ` + postgresDeploymentColumns + ` FROM deployments`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	args = append(args, limit+1)
	query += fmt.Sprintf(" ORDER BY created_at DESC, id LIMIT $%d", len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var deployments []Deployment
	for rows.Next() {
		d, err := scanPostgresDeployment(rows)
		if err != nil {
			return nil, err
		}
		deployments = append(deployments, *d)
	}

	hasMore := len(deployments) > limit
	if hasMore {
		deployments = deployments[:limit]
	}

	return &PaginatedResult[Deployment]{Data: deployments, HasMore: hasMore}, rows.Err()
}

// UpdateStatus records the outcome of the run for a deployment
func (s *PostgresStore) UpdateStatus(ctx context.Context, id, status, failedStep, errMsg string) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE deployments SET status = $1, failed_step = $2, error = $3, updated_at = NOW() WHERE id = $4",
		status, failedStep, errMsg, id,
	)
	return checkAffected(res, err)
}

// UpdateVerificationStatus updates a deployment's verification status
func (s *PostgresStore) UpdateVerificationStatus(ctx context.Context, id, status, guid string) error {
	query := `
		UPDATE deployments
		SET verification_status = $1, verification_guid = $2,
			verified_at = CASE WHEN $3 THEN NOW() ELSE verified_at END,
			updated_at = NOW()
		WHERE id = $4
	`
	res, err := s.db.ExecContext(ctx, query, status, guid, isVerified(status), id)
	return checkAffected(res, err)
}

// RecordTier records a seeded tier
func (s *PostgresStore) RecordTier(ctx context.Context, deploymentID string, t *TierSeed) error {
	if t.ID == "" {
		t.ID = generateID()
	}
	query := `
		INSERT INTO tier_seeds (id, deployment_id, position, name, amount_wei, tx_hash, block_number)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at
	`
	var createdAt time.Time
	err := s.db.QueryRowContext(ctx, query, t.ID, deploymentID, t.Position, t.Name, t.AmountWei, t.TxHash, t.BlockNumber).Scan(&createdAt)
	if err != nil {
		if strings.Contains(err.Error(), "foreign key") {
			return ErrNotFound
		}
		return err
	}
	t.CreatedAt = createdAt.UTC().Format(TimeFormat)
	return nil
}

// ListTiers lists the seeded tiers of a deployment in submission order
func (s *PostgresStore) ListTiers(ctx context.Context, deploymentID string) ([]TierSeed, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, position, name, amount_wei::TEXT, tx_hash, block_number, created_at FROM tier_seeds WHERE deployment_id = $1 ORDER BY position",
		deploymentID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tiers []TierSeed
	for rows.Next() {
		var t TierSeed
		var createdAt time.Time
		if err := rows.Scan(&t.ID, &t.Position, &t.Name, &t.AmountWei, &t.TxHash, &t.BlockNumber, &createdAt); err != nil {
			return nil, err
		}
		t.CreatedAt = createdAt.UTC().Format(TimeFormat)
		tiers = append(tiers, t)
	}
	return tiers, rows.Err()
}
