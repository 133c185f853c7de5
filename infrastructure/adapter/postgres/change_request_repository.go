package postgres

import (
	"context"
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/fixora/secret-review/application/port/outbound"
	"github.com/fixora/secret-review/domain/entity"
	"github.com/fixora/secret-review/domain/valueobject"
)

const uniqueViolation = "23505"

const selectColumns = `
		change_id, project, env, status, proposed_by, reason, diff, diff_count,
		staging_reference, created_at, reviewed_by, reviewed_at, comment,
		secret_version_before_proposal, secret_version_before_approval,
		current_keys, expires_at`

type ChangeRequestRepositoryAdapter struct {
	db  *sql.DB
	ttl time.Duration
}

// NewChangeRequestRepositoryAdapter returns a Postgres backed ledger.
// A positive ttl stamps expires_at on new records.
func NewChangeRequestRepositoryAdapter(db *sql.DB, ttl time.Duration) *ChangeRequestRepositoryAdapter {
	return &ChangeRequestRepositoryAdapter{
		db:  db,
		ttl: ttl,
	}
}

var _ outbound.ChangeLedger = (*ChangeRequestRepositoryAdapter)(nil)

func (r *ChangeRequestRepositoryAdapter) Put(ctx context.Context, record *entity.ChangeRequest) error {
	if record == nil || record.ChangeID == "" {
		return fmt.Errorf("change request and change ID are required")
	}

	diff := record.Diff
	if diff == nil {
		diff = []entity.DiffEntry{}
	}
	diffJSON, err := json.Marshal(diff)
	if err != nil {
		return fmt.Errorf("failed to encode diff: %w", err)
	}

	var expiresAt *time.Time
	if record.ExpiresAt != nil {
		expiresAt = record.ExpiresAt
	} else if r.ttl > 0 {
		t := record.CreatedAt.Add(r.ttl)
		expiresAt = &t
	}

	query := `
		INSERT INTO change_requests (` + selectColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`

	_, err = r.db.ExecContext(ctx, query,
		record.ChangeID,
		record.Project,
		record.Env,
		string(record.Status),
		record.ProposedBy,
		record.Reason,
		diffJSON,
		record.DiffCount,
		record.StagingReference,
		record.CreatedAt.UTC(),
		nullString(record.ReviewedBy),
		record.ReviewedAt,
		nullString(record.Comment),
		record.SecretVersionBeforeProposal,
		record.SecretVersionBeforeApproval,
		pq.Array(record.CurrentKeys),
		expiresAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return outbound.ErrChangeAlreadyExists
		}
		return fmt.Errorf("failed to create change request: %w", err)
	}

	return nil
}

func (r *ChangeRequestRepositoryAdapter) GetByID(ctx context.Context, changeID string) (*entity.ChangeRequest, error) {
	query := `SELECT` + selectColumns + `
		FROM change_requests
		WHERE change_id = $1
	`

	record, err := scanRecord(r.db.QueryRowContext(ctx, query, changeID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, outbound.ErrChangeNotFound
		}
		return nil, fmt.Errorf("failed to find change request: %w", err)
	}
	return record, nil
}

func (r *ChangeRequestRepositoryAdapter) QueryByProjectEnv(ctx context.Context, target valueobject.Target, limit int, cursor string) (*outbound.Page, error) {
	return r.queryPage(ctx, "project = $1 AND env = $2", []interface{}{target.Project, target.Env}, limit, cursor)
}

func (r *ChangeRequestRepositoryAdapter) QueryByStatus(ctx context.Context, status entity.ChangeStatus, limit int, cursor string) (*outbound.Page, error) {
	return r.queryPage(ctx, "status = $1", []interface{}{string(status)}, limit, cursor)
}

// queryPage runs a keyset paginated query, newest first. One extra row is
// fetched to learn whether another page exists.
func (r *ChangeRequestRepositoryAdapter) queryPage(ctx context.Context, where string, args []interface{}, limit int, cursor string) (*outbound.Page, error) {
	if limit <= 0 {
		limit = 20
	}

	if cursor != "" {
		after, err := decodeCursor(cursor)
		if err != nil {
			return nil, err
		}
		where += fmt.Sprintf(" AND (created_at, change_id) < ($%d, $%d)", len(args)+1, len(args)+2)
		args = append(args, after.CreatedAt, after.ChangeID)
	}
	args = append(args, limit+1)

	query := `SELECT` + selectColumns + `
		FROM change_requests
		WHERE ` + where + `
		ORDER BY created_at DESC, change_id DESC
		LIMIT $` + fmt.Sprint(len(args))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query change requests: %w", err)
	}
	defer rows.Close()

	records := make([]*entity.ChangeRequest, 0, limit)
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan change request: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate change requests: %w", err)
	}

	page := &outbound.Page{Records: records}
	if len(records) > limit {
		page.Records = records[:limit]
		last := page.Records[limit-1]
		page.NextCursor = encodeCursor(last.CreatedAt, last.ChangeID)
	}
	return page, nil
}

// UpdateStatus only touches rows that are still pending
func (r *ChangeRequestRepositoryAdapter) UpdateStatus(ctx context.Context, key entity.RecordKey, outcome entity.ReviewOutcome) error {
	query := `
		UPDATE change_requests
		SET status = $1,
			reviewed_by = $2,
			reviewed_at = $3,
			comment = COALESCE($4, comment),
			secret_version_before_approval = COALESCE(NULLIF($5, ''), secret_version_before_approval),
			current_keys = COALESCE($6, current_keys)
		WHERE change_id = $7 AND project = $8 AND env = $9 AND status = 'pending'
	`

	result, err := r.db.ExecContext(ctx, query,
		string(outcome.Status),
		outcome.ReviewedBy,
		outcome.ReviewedAt.UTC(),
		nullString(outcome.Comment),
		outcome.SecretVersionBeforeApproval,
		pq.Array(outcome.CurrentKeys),
		key.ChangeID,
		key.Project,
		key.Env,
	)
	if err != nil {
		return fmt.Errorf("failed to update change request status: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected > 0 {
		return nil
	}

	var status string
	err = r.db.QueryRowContext(ctx,
		`SELECT status FROM change_requests WHERE change_id = $1 AND project = $2 AND env = $3`,
		key.ChangeID, key.Project, key.Env,
	).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return outbound.ErrChangeNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to check change request status: %w", err)
	}
	return outbound.ErrStatusPreconditionFailed
}

// PurgeExpired deletes records whose expires_at has passed
func (r *ChangeRequestRepositoryAdapter) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM change_requests WHERE expires_at IS NOT NULL AND expires_at < $1`,
		now.UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to purge expired change requests: %w", err)
	}
	return result.RowsAffected()
}

func (r *ChangeRequestRepositoryAdapter) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(row rowScanner) (*entity.ChangeRequest, error) {
	var (
		record      entity.ChangeRequest
		status      string
		diffJSON    []byte
		reviewedBy  sql.NullString
		reviewedAt  sql.NullTime
		comment     sql.NullString
		currentKeys []string
		expiresAt   sql.NullTime
	)

	err := row.Scan(
		&record.ChangeID,
		&record.Project,
		&record.Env,
		&status,
		&record.ProposedBy,
		&record.Reason,
		&diffJSON,
		&record.DiffCount,
		&record.StagingReference,
		&record.CreatedAt,
		&reviewedBy,
		&reviewedAt,
		&comment,
		&record.SecretVersionBeforeProposal,
		&record.SecretVersionBeforeApproval,
		pq.Array(&currentKeys),
		&expiresAt,
	)
	if err != nil {
		return nil, err
	}

	record.Status = entity.ChangeStatus(status)
	record.CreatedAt = record.CreatedAt.UTC()
	if len(diffJSON) > 0 {
		if err := json.Unmarshal(diffJSON, &record.Diff); err != nil {
			return nil, fmt.Errorf("failed to decode diff: %w", err)
		}
	}
	record.ReviewedBy = reviewedBy.String
	record.Comment = comment.String
	if reviewedAt.Valid {
		t := reviewedAt.Time.UTC()
		record.ReviewedAt = &t
	}
	if expiresAt.Valid {
		t := expiresAt.Time.UTC()
		record.ExpiresAt = &t
	}
	record.CurrentKeys = currentKeys

	return &record, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

type pageCursor struct {
	CreatedAt time.Time `json:"createdAt"`
	ChangeID  string    `json:"changeId"`
}

func encodeCursor(createdAt time.Time, changeID string) string {
	raw, _ := json.Marshal(pageCursor{CreatedAt: createdAt.UTC(), ChangeID: changeID})
	return base64.RawURLEncoding.EncodeToString(raw)
}

func decodeCursor(cursor string) (pageCursor, error) {
	raw, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return pageCursor{}, outbound.ErrInvalidCursor
	}
	var c pageCursor
	if err := json.Unmarshal(raw, &c); err != nil || c.ChangeID == "" || c.CreatedAt.IsZero() {
		return pageCursor{}, outbound.ErrInvalidCursor
	}
	return c, nil
}
