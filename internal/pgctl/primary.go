package pgctl

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Primary is the master-mode half of the backup engine's protocol
//: pg_start_backup, pg_stop_backup, and reading
// backup_label back off the primary via pg_read_file for the slave's
// --call-master path. Implemented over pgx/v5 rather than shelling out
// to psql — a connection pool is injectable for
// tests via a fake Primary.
type Primary interface {
	StartBackup(ctx context.Context, label string) (StartBackupResult, error)
	StopBackup(ctx context.Context) (StopBackupResult, error)
	ReadFile(ctx context.Context, path string, offset, length int64) ([]byte, error)
	Close()
}

// StartBackupResult is pg_start_backup's single-row result.
type StartBackupResult struct {
	Location string // textual LSN, e.g. "0/5000028"
}

// StopBackupResult is pg_stop_backup's single-row result: the stop LSN
// and, when a Primary supplies it, the backup_label contents. The
// pgx-backed Primary reads only the stop LSN and leaves BackupLabel empty.
type StopBackupResult struct {
	Location string
	BackupLabel string
}

// pgxPrimary is the production Primary backed by a pgxpool.Pool.
type pgxPrimary struct {
	pool *pgxpool.Pool
}

// DialPrimary opens a pooled connection to a primary using a standard
// libpq connection string (e.g. "host=... port=... user=... dbname=...").
func DialPrimary(ctx context.Context, connString string) (Primary, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("pgctl: connect to primary: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pgctl: ping primary: %w", err)
	}
	return &pgxPrimary{pool: pool}, nil
}

func (p *pgxPrimary) StartBackup(ctx context.Context, label string) (StartBackupResult, error) {
	var loc string
	row := p.pool.QueryRow(ctx, "SELECT pg_start_backup($1)", label)
	if err := row.Scan(&loc); err != nil {
		return StartBackupResult{}, fmt.Errorf("pgctl: pg_start_backup: %w", err)
	}
	return StartBackupResult{Location: loc}, nil
}

func (p *pgxPrimary) StopBackup(ctx context.Context) (StopBackupResult, error) {
	var loc string
	row := p.pool.QueryRow(ctx, "SELECT pg_stop_backup()")
	if err := row.Scan(&loc); err != nil {
		return StopBackupResult{}, fmt.Errorf("pgctl: pg_stop_backup: %w", err)
	}
	return StopBackupResult{Location: loc}, nil
}

// ReadFile calls pg_read_file(path, offset, length), used by the slave's
// --call-master path to retrieve backup_label from the primary without a
// filesystem-level hop. A PostgreSQL version that does not expose this
// function returns a plain query error, which callers must surface as a
// configuration error rather than silently falling back to a local read.
func (p *pgxPrimary) ReadFile(ctx context.Context, path string, offset, length int64) ([]byte, error) {
	var contents string
	row := p.pool.QueryRow(ctx, "SELECT pg_read_file($1, $2, $3)", path, offset, length)
	if err := row.Scan(&contents); err != nil {
		if err == pgx.ErrNoRows {
			return nil, fmt.Errorf("pgctl: pg_read_file(%q) returned no rows", path)
		}
		return nil, fmt.Errorf("pgctl: pg_read_file(%q): %w (this PostgreSQL version may not expose pg_read_file; --call-master requires it)", path, err)
	}
	return []byte(contents), nil
}

func (p *pgxPrimary) Close() {
	p.pool.Close()
}
