package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store
func NewSQLiteStore(path string, logger *slog.Logger) (*SQLiteStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// One writer keeps :memory: databases on a single connection
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &SQLiteStore{db: db, logger: logger}, nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Migrate runs database migrations
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS deployments (
		id TEXT PRIMARY KEY,
		contract_name TEXT NOT NULL,
		network TEXT NOT NULL,
		chain_id INTEGER NOT NULL,
		address TEXT NOT NULL,
		deployer_address TEXT NOT NULL,
		tx_hash TEXT NOT NULL,
		block_number INTEGER NOT NULL,
		constructor_args TEXT,
		status TEXT NOT NULL,
		failed_step TEXT NOT NULL DEFAULT '',
		error TEXT NOT NULL DEFAULT '',
		verification_status TEXT NOT NULL DEFAULT '',
		verification_guid TEXT NOT NULL DEFAULT '',
		verified_at TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		UNIQUE(chain_id, address)
	);

	CREATE TABLE IF NOT EXISTS tier_seeds (
		id TEXT PRIMARY KEY,
		deployment_id TEXT NOT NULL REFERENCES deployments(id) ON DELETE CASCADE,
		position INTEGER NOT NULL,
		name TEXT NOT NULL,
		amount_wei TEXT NOT NULL,
		tx_hash TEXT NOT NULL,
		block_number INTEGER NOT NULL,
		created_at TEXT NOT NULL,
		UNIQUE(deployment_id, position)
	);

	CREATE INDEX IF NOT EXISTS idx_deployments_created ON deployments(created_at);
	CREATE INDEX IF NOT EXISTS idx_tier_seeds_deployment ON tier_seeds(deployment_id);
	`

	_, err := s.db.ExecContext(ctx, schema)
	if err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	s.logger.Debug("sqlite migrations complete")
	return nil
}

// RecordDeployment records a deployment. ID, timestamps and status are
// filled in when empty.
func (s *SQLiteStore) RecordDeployment(ctx context.Context, d *Deployment) error {
	prepareDeployment(d)
	query := `
		INSERT INTO deployments (id, contract_name, network, chain_id, address, deployer_address, tx_hash, block_number,
			constructor_args, status, failed_step, error, verification_status, verification_guid, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		d.ID, d.ContractName, d.Network, d.ChainID, d.Address, d.DeployerAddress, d.TxHash, d.BlockNumber,
		d.ConstructorArgs, d.Status, d.FailedStep, d.Error, d.VerificationStatus, d.VerificationGUID, d.CreatedAt, d.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: %s on chain %d", ErrAlreadyRecorded, d.Address, d.ChainID)
	}
	return err
}

const sqliteDeploymentColumns = `id, contract_name, network, chain_id, address, deployer_address, tx_hash, block_number,
	COALESCE(constructor_args, ''), status, failed_step, error, verification_status, verification_guid,
	COALESCE(verified_at, ''), created_at, updated_at`

func scanSQLiteDeployment(row interface{ Scan(...any) error }) (*Deployment, error) {
	var d Deployment
	err := row.Scan(
		&d.ID, &d.ContractName, &d.Network, &d.ChainID, &d.Address, &d.DeployerAddress, &d.TxHash, &d.BlockNumber,
		&d.ConstructorArgs, &d.Status, &d.FailedStep, &d.Error, &d.VerificationStatus, &d.VerificationGUID,
		&d.VerifiedAt, &d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// GetDeployment retrieves a deployment by chain and address
func (s *SQLiteStore) GetDeployment(ctx context.Context, chainID int64, address string) (*Deployment, error) {
	query := `SELECT ` + sqliteDeploymentColumns + ` FROM deployments WHERE chain_id = ? AND address = ?`
	d, err := scanSQLiteDeployment(s.db.QueryRowContext(ctx, query, chainID, normalizeAddress(address)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return d, err
}

// ListDeployments lists deployments, newest first
func (s *SQLiteStore) ListDeployments(ctx context.Context, filter DeploymentFilter, pagination PaginationParams) (*PaginatedResult[Deployment], error) {
	limit := clampLimit(pagination.Limit)

	var where []string
	var args []any
	if filter.ChainID != 0 {
		where = append(where, "chain_id = ?")
		args = append(args, filter.ChainID)
	}
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, filter.Status)
	}

	query := `SELECT ` + sqliteDeploymentColumns + ` FROM deployments`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, id LIMIT ?"
	args = append(args, limit+1)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var deployments []Deployment
	for rows.Next() {
		d, err := scanSQLiteDeployment(rows)
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
func (s *SQLiteStore) UpdateStatus(ctx context.Context, id, status, failedStep, errMsg string) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE deployments SET status = ?, failed_step = ?, error = ?, updated_at = ? WHERE id = ?",
		status, failedStep, errMsg, now().Format(TimeFormat), id,
	)
	return checkAffected(res, err)
}

// UpdateVerificationStatus updates a deployment's verification status
func (s *SQLiteStore) UpdateVerificationStatus(ctx context.Context, id, status, guid string) error {
	ts := now().Format(TimeFormat)
	var verifiedAt any
	if isVerified(status) {
		verifiedAt = ts
	}
	res, err := s.db.ExecContext(ctx,
		"UPDATE deployments SET verification_status = ?, verification_guid = ?, verified_at = COALESCE(?, verified_at), updated_at = ? WHERE id = ?",
		status, guid, verifiedAt, ts, id,
	)
	return checkAffected(res, err)
}

// RecordTier records a seeded tier
func (s *SQLiteStore) RecordTier(ctx context.Context, deploymentID string, t *TierSeed) error {
	if t.ID == "" {
		t.ID = generateID()
	}
	if t.CreatedAt == "" {
		t.CreatedAt = now().Format(TimeFormat)
	}
	query := `
		INSERT INTO tier_seeds (id, deployment_id, position, name, amount_wei, tx_hash, block_number, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query, t.ID, deploymentID, t.Position, t.Name, t.AmountWei, t.TxHash, t.BlockNumber, t.CreatedAt)
	if err != nil && strings.Contains(err.Error(), "FOREIGN KEY") {
		return ErrNotFound
	}
	return err
}

// ListTiers lists the seeded tiers of a deployment in submission order
func (s *SQLiteStore) ListTiers(ctx context.Context, deploymentID string) ([]TierSeed, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, position, name, amount_wei, tx_hash, block_number, created_at FROM tier_seeds WHERE deployment_id = ? ORDER BY position",
		deploymentID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tiers []TierSeed
	for rows.Next() {
		var t TierSeed
		if err := rows.Scan(&t.ID, &t.Position, &t.Name, &t.AmountWei, &t.TxHash, &t.BlockNumber, &t.CreatedAt); err != nil {
			return nil, err
		}
		tiers = append(tiers, t)
	}
	return tiers, rows.Err()
}

func prepareDeployment(d *Deployment) {
	if d.ID == "" {
		d.ID = generateID()
	}
	if d.Status == "" {
		d.Status = StatusDeployed
	}
	d.Address = normalizeAddress(d.Address)
	ts := now().Format(TimeFormat)
	if d.CreatedAt == "" {
		d.CreatedAt = ts
	}
	if d.UpdatedAt == "" {
		d.UpdatedAt = d.CreatedAt
	}
}

func checkAffected(res sql.Result, err error) error {
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func isVerified(status string) bool {
	return status == "verified" || status == "already_verified"
}
