package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/trybemarket/bulkmail/internal/models"
)

// ErrVersionConflict is returned when a conditional batch update loses the
// optimistic-concurrency race: another worker advanced the batch between our
// read and our write. Callers re-read and retry; the conflict never reaches
// an external caller.
var ErrVersionConflict = errors.New("batch modified concurrently")

// ErrNotFound is returned for lookups of unknown jobs, batches, users or
// products.
var ErrNotFound = errors.New("not found")

type Store struct {
	Pool *pgxpool.Pool
}

func New(ctx context.Context, conn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, conn)
	if err != nil {
		return nil, err
	}

	return &Store{Pool: pool}, nil
}

func (s *Store) Close() {
	s.Pool.Close()
}

// Migrate creates the pipeline tables if they do not exist yet.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.Pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS mail_jobs (
			id               TEXT PRIMARY KEY,
			subject          TEXT NOT NULL,
			admin_name       TEXT NOT NULL,
			compiled_html    TEXT NOT NULL,
			target_audience  TEXT NOT NULL,
			status           TEXT NOT NULL,
			total_recipients INT NOT NULL DEFAULT 0,
			total_batches    INT NOT NULL DEFAULT 0,
			created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE TABLE IF NOT EXISTS mail_batches (
			id                  TEXT PRIMARY KEY,
			job_id              TEXT NOT NULL REFERENCES mail_jobs(id),
			batch_index         INT NOT NULL,
			recipients          JSONB NOT NULL,
			status              TEXT NOT NULL,
			sent_count          INT NOT NULL DEFAULT 0,
			failed_count        INT NOT NULL DEFAULT 0,
			processed_by_worker BOOLEAN NOT NULL DEFAULT FALSE,
			version             BIGINT NOT NULL DEFAULT 0,
			created_at          TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			last_processed_at   TIMESTAMPTZ
		);

		CREATE INDEX IF NOT EXISTS mail_batches_due_idx
			ON mail_batches (created_at) WHERE status IN ('PENDING', 'RETRY_PENDING');

		CREATE TABLE IF NOT EXISTS users (
			id         TEXT PRIMARY KEY,
			email      TEXT NOT NULL UNIQUE,
			full_name  TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE TABLE IF NOT EXISTS products (
			id      TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			name    TEXT NOT NULL,
			brand   TEXT NOT NULL DEFAULT '',
			price   NUMERIC NOT NULL DEFAULT 0
		);
	`)
	return err
}

// CreateJobWithBatches persists one job plus all of its batches in a single
// transaction so a job can never reference partial batches.
func (s *Store) CreateJobWithBatches(ctx context.Context, job *models.Job, batches []models.Batch) error {
	tx, err := s.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`INSERT INTO mail_jobs
		 (id, subject, admin_name, compiled_html, target_audience, status,
		  total_recipients, total_batches, created_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		job.ID,
		job.Subject,
		job.AdminName,
		job.CompiledHTML,
		job.TargetAudience,
		job.Status,
		job.TotalRecipients,
		job.TotalBatches,
		job.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}

	for i := range batches {
		b := &batches[i]

		recipientsJSON, err := json.Marshal(b.Recipients)
		if err != nil {
			return err
		}

		_, err = tx.Exec(ctx,
			`INSERT INTO mail_batches
			 (id, job_id, batch_index, recipients, status, sent_count,
			  failed_count, processed_by_worker, version, created_at)
			 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,0,$9)`,
			b.ID,
			b.JobID,
			b.BatchIndex,
			recipientsJSON,
			b.Status,
			b.SentCount,
			b.FailedCount,
			b.ProcessedByWorker,
			b.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert batch %d: %w", b.BatchIndex, err)
		}
	}

	return tx.Commit(ctx)
}

func (s *Store) GetJob(ctx context.Context, id string) (*models.Job, error) {
	var job models.Job

	err := s.Pool.QueryRow(ctx,
		`SELECT id, subject, admin_name, compiled_html, target_audience, status,
		        total_recipients, total_batches, created_at
		 FROM mail_jobs WHERE id=$1`,
		id,
	).Scan(
		&job.ID,
		&job.Subject,
		&job.AdminName,
		&job.CompiledHTML,
		&job.TargetAudience,
		&job.Status,
		&job.TotalRecipients,
		&job.TotalBatches,
		&job.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return &job, nil
}

func (s *Store) GetBatch(ctx context.Context, id string) (*models.Batch, error) {
	row := s.Pool.QueryRow(ctx, batchSelect+` WHERE id=$1`, id)

	b, err := scanBatch(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return b, nil
}

const batchSelect = `
	SELECT id, job_id, batch_index, recipients, status, sent_count,
	       failed_count, processed_by_worker, version, created_at,
	       last_processed_at
	FROM mail_batches`

func scanBatch(row pgx.Row) (*models.Batch, error) {
	var (
		b              models.Batch
		recipientsJSON []byte
	)

	err := row.Scan(
		&b.ID,
		&b.JobID,
		&b.BatchIndex,
		&recipientsJSON,
		&b.Status,
		&b.SentCount,
		&b.FailedCount,
		&b.ProcessedByWorker,
		&b.Version,
		&b.CreatedAt,
		&b.LastProcessedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(recipientsJSON, &b.Recipients); err != nil {
		return nil, fmt.Errorf("decode recipients: %w", err)
	}

	return &b, nil
}

// DuePendingBatches returns up to limit unfinished batches, oldest first.
// The limit is the per-cycle admission-control bound that keeps one huge
// send from starving others.
func (s *Store) DuePendingBatches(ctx context.Context, limit int) ([]*models.Batch, error) {
	rows, err := s.Pool.Query(ctx,
		batchSelect+`
		 WHERE status IN ($1, $2)
		 ORDER BY created_at ASC
		 LIMIT $3`,
		models.BatchPending,
		models.BatchRetryPending,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var batches []*models.Batch
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			return nil, err
		}
		batches = append(batches, b)
	}

	return batches, rows.Err()
}

// UpdateBatch writes back a processed batch conditionally on the version the
// caller read. A lost race returns ErrVersionConflict and writes nothing.
func (s *Store) UpdateBatch(ctx context.Context, b *models.Batch, expectedVersion int64) error {
	recipientsJSON, err := json.Marshal(b.Recipients)
	if err != nil {
		return err
	}

	tag, err := s.Pool.Exec(ctx,
		`UPDATE mail_batches
		 SET recipients=$1,
		     status=$2,
		     sent_count=$3,
		     failed_count=$4,
		     processed_by_worker=$5,
		     last_processed_at=$6,
		     version=version+1
		 WHERE id=$7 AND version=$8`,
		recipientsJSON,
		b.Status,
		b.SentCount,
		b.FailedCount,
		b.ProcessedByWorker,
		b.LastProcessedAt,
		b.ID,
		expectedVersion,
	)
	if err != nil {
		return err
	}

	if tag.RowsAffected() == 0 {
		return ErrVersionConflict
	}

	b.Version = expectedVersion + 1
	return nil
}

// JobProgress aggregates a job's child batches. Job completion is a derived
// read: done once every batch is SENT. The job row itself stays QUEUED.
type JobProgress struct {
	TotalBatches int `json:"totalBatches"`
	SentBatches  int `json:"sentBatches"`
	SentCount    int `json:"sentCount"`
	FailedCount  int `json:"failedCount"`
}

func (p JobProgress) Done() bool {
	return p.TotalBatches > 0 && p.SentBatches == p.TotalBatches
}

func (s *Store) GetJobProgress(ctx context.Context, jobID string) (*JobProgress, error) {
	var p JobProgress

	err := s.Pool.QueryRow(ctx,
		`SELECT COUNT(*),
		        COUNT(*) FILTER (WHERE status=$2),
		        COALESCE(SUM(sent_count), 0),
		        COALESCE(SUM(failed_count), 0)
		 FROM mail_batches WHERE job_id=$1`,
		jobID,
		models.BatchSent,
	).Scan(&p.TotalBatches, &p.SentBatches, &p.SentCount, &p.FailedCount)
	if err != nil {
		return nil, err
	}

	return &p, nil
}

// ListUsers pages through the user table ordered by email, for the index
// sync. Pass an empty cursor for the first page.
func (s *Store) ListUsers(ctx context.Context, afterEmail string, limit int) ([]models.User, error) {
	rows, err := s.Pool.Query(ctx,
		`SELECT id, email, full_name, created_at
		 FROM users
		 WHERE email > $1
		 ORDER BY email ASC
		 LIMIT $2`,
		afterEmail,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		var u models.User
		if err := rows.Scan(&u.ID, &u.Email, &u.FullName, &u.CreatedAt); err != nil {
			return nil, err
		}
		users = append(users, u)
	}

	return users, rows.Err()
}

// UpsertUsers inserts or refreshes user rows keyed by email. Used by the CSV
// import endpoint that seeds the source-of-truth table.
func (s *Store) UpsertUsers(ctx context.Context, users []models.User) error {
	tx, err := s.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, u := range users {
		_, err := tx.Exec(ctx,
			`INSERT INTO users (id, email, full_name, created_at)
			 VALUES ($1,$2,$3,$4)
			 ON CONFLICT (email) DO UPDATE SET full_name=EXCLUDED.full_name`,
			u.ID,
			u.Email,
			u.FullName,
			time.Now().UTC(),
		)
		if err != nil {
			return fmt.Errorf("upsert user %s: %w", u.Email, err)
		}
	}

	return tx.Commit(ctx)
}

func (s *Store) GetUser(ctx context.Context, id string) (*models.User, error) {
	var u models.User

	err := s.Pool.QueryRow(ctx,
		`SELECT id, email, full_name, created_at FROM users WHERE id=$1`,
		id,
	).Scan(&u.ID, &u.Email, &u.FullName, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return &u, nil
}

func (s *Store) GetProduct(ctx context.Context, id string) (*models.Product, error) {
	var p models.Product

	err := s.Pool.QueryRow(ctx,
		`SELECT id, user_id, name, brand, price FROM products WHERE id=$1`,
		id,
	).Scan(&p.ID, &p.UserID, &p.Name, &p.Brand, &p.Price)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return &p, nil
}
