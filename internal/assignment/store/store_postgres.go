package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"verethfier/internal/assignment"
	"verethfier/pkg/platform/sentinel"
)

// PostgresAssignmentStore persists assignments in verifier_user_roles.
type PostgresAssignmentStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresAssignmentStore {
	return &PostgresAssignmentStore{db: db}
}

const assignmentColumns = `id, user_id, user_name, server_id, server_name, role_id, role_name,
	rule_id, address, status, verified_at, last_checked, expires_at`

func (s *PostgresAssignmentStore) Create(ctx context.Context, a *assignment.Assignment) error {
	query := `
		INSERT INTO verifier_user_roles (` + assignmentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`
	_, err := s.db.ExecContext(ctx, query,
		a.ID,
		a.UserID,
		a.UserName,
		a.GuildID,
		a.GuildName,
		a.RoleID,
		a.RoleName,
		nullString(a.RuleID),
		a.Address,
		string(a.Status),
		a.VerifiedAt,
		a.LastCheckedAt,
		a.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("insert assignment: %w", err)
	}
	return nil
}

// Update writes mutable fields. Terminal rows are never rewritten.
func (s *PostgresAssignmentStore) Update(ctx context.Context, a *assignment.Assignment) error {
	query := `
		UPDATE verifier_user_roles
		SET user_name = $2, server_name = $3, role_name = $4, address = $5,
			status = $6, verified_at = $7, last_checked = $8, expires_at = $9
		WHERE id = $1 AND status = 'active'
	`
	res, err := s.db.ExecContext(ctx, query,
		a.ID,
		a.UserName,
		a.GuildName,
		a.RoleName,
		a.Address,
		string(a.Status),
		a.VerifiedAt,
		a.LastCheckedAt,
		a.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("update assignment: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n > 0 {
		return nil
	}
	current, err := s.FindByID(ctx, a.ID)
	if err != nil {
		return err
	}
	return fmt.Errorf("assignment is %s: %w", current.Status, sentinel.ErrInvalidState)
}

func (s *PostgresAssignmentStore) FindByID(ctx context.Context, id uuid.UUID) (*assignment.Assignment, error) {
	query := `SELECT ` + assignmentColumns + ` FROM verifier_user_roles WHERE id = $1`
	a, err := scanAssignment(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("assignment not found: %w", sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("find assignment: %w", err)
	}
	return a, nil
}

func (s *PostgresAssignmentStore) FindActive(ctx context.Context, userID, guildID, roleID, ruleID string) (*assignment.Assignment, error) {
	query := `
		SELECT ` + assignmentColumns + ` FROM verifier_user_roles
		WHERE status = 'active' AND user_id = $1 AND server_id = $2 AND role_id = $3
			AND COALESCE(rule_id, '') = $4
		ORDER BY last_checked, id
		LIMIT 1
	`
	a, err := scanAssignment(s.db.QueryRowContext(ctx, query, userID, guildID, roleID, ruleID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("assignment not found: %w", sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("find active assignment: %w", err)
	}
	return a, nil
}

func (s *PostgresAssignmentStore) ListDue(ctx context.Context, now time.Time, staleness time.Duration) ([]assignment.Assignment, error) {
	return s.list(ctx, `WHERE status = 'active' AND (last_checked <= $1 OR (expires_at IS NOT NULL AND expires_at <= $2))`,
		now.Add(-staleness), now)
}

func (s *PostgresAssignmentStore) ListActiveByUser(ctx context.Context, userID string) ([]assignment.Assignment, error) {
	return s.list(ctx, `WHERE status = 'active' AND user_id = $1`, userID)
}

func (s *PostgresAssignmentStore) ListActiveByRule(ctx context.Context, ruleID string) ([]assignment.Assignment, error) {
	return s.list(ctx, `WHERE status = 'active' AND rule_id = $1`, ruleID)
}

func (s *PostgresAssignmentStore) ListExpiredSince(ctx context.Context, since time.Time) ([]assignment.Assignment, error) {
	return s.list(ctx, `WHERE status = 'expired' AND last_checked >= $1`, since)
}

func (s *PostgresAssignmentStore) ListByUser(ctx context.Context, userID string) ([]assignment.Assignment, error) {
	return s.list(ctx, `WHERE user_id = $1`, userID)
}

func (s *PostgresAssignmentStore) list(ctx context.Context, where string, args ...any) ([]assignment.Assignment, error) {
	query := `SELECT ` + assignmentColumns + ` FROM verifier_user_roles ` + where + ` ORDER BY last_checked, id`
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list assignments: %w", err)
	}
	defer rows.Close()

	out := make([]assignment.Assignment, 0)
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan assignment: %w", err)
		}
		out = append(out, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate assignments: %w", err)
	}
	return out, nil
}

type assignmentRow interface {
	Scan(dest ...any) error
}

func scanAssignment(row assignmentRow) (*assignment.Assignment, error) {
	var a assignment.Assignment
	var ruleID sql.NullString
	var status string
	var expiresAt sql.NullTime
	if err := row.Scan(
		&a.ID,
		&a.UserID,
		&a.UserName,
		&a.GuildID,
		&a.GuildName,
		&a.RoleID,
		&a.RoleName,
		&ruleID,
		&a.Address,
		&status,
		&a.VerifiedAt,
		&a.LastCheckedAt,
		&expiresAt,
	); err != nil {
		return nil, err
	}
	a.RuleID = ruleID.String
	a.Status = assignment.Status(status)
	if expiresAt.Valid {
		a.ExpiresAt = &expiresAt.Time
	}
	return &a, nil
}

func nullString(v string) sql.NullString {
	return sql.NullString{String: v, Valid: v != ""}
}
