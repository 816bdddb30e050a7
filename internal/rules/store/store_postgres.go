package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"verethfier/internal/rules"
	"verethfier/pkg/platform/sentinel"
)

const uniqueViolation = "23505"

// PostgresRuleStore persists rules in the verifier_rules table.
type PostgresRuleStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresRuleStore {
	return &PostgresRuleStore{db: db}
}

const ruleColumns = `id, server_id, server_name, channel_id, channel_name, role_id, role_name,
	slug, attribute_key, attribute_value, min_items, rule_type, message_id, created_at`

func (s *PostgresRuleStore) Create(ctx context.Context, rule rules.Rule) error {
	query := `
		INSERT INTO verifier_rules (` + ruleColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`
	_, err := s.db.ExecContext(ctx, query,
		rule.ID,
		rule.GuildID,
		rule.GuildName,
		rule.ChannelID,
		rule.ChannelName,
		rule.RoleID,
		rule.RoleName,
		rule.Slug,
		rule.AttributeKey,
		rule.AttributeValue,
		rule.MinItems,
		string(rule.Kind),
		nullString(rule.MessageID),
		rule.CreatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return fmt.Errorf("rule duplicates existing criterion: %w", sentinel.ErrConflict)
		}
		return fmt.Errorf("insert rule: %w", err)
	}
	return nil
}

func (s *PostgresRuleStore) FindByID(ctx context.Context, id string) (*rules.Rule, error) {
	query := `SELECT ` + ruleColumns + ` FROM verifier_rules WHERE id = $1`
	rule, err := scanRule(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("rule not found: %w", sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("find rule: %w", err)
	}
	return rule, nil
}

func (s *PostgresRuleStore) ListByGuild(ctx context.Context, guildID string) ([]rules.Rule, error) {
	return s.list(ctx, `WHERE server_id = $1`, guildID)
}

func (s *PostgresRuleStore) ListByChannel(ctx context.Context, guildID, channelID string) ([]rules.Rule, error) {
	return s.list(ctx, `WHERE server_id = $1 AND channel_id = $2`, guildID, channelID)
}

func (s *PostgresRuleStore) ListByMessage(ctx context.Context, guildID, messageID string) ([]rules.Rule, error) {
	if messageID == "" {
		return nil, nil
	}
	return s.list(ctx, `WHERE server_id = $1 AND message_id = $2`, guildID, messageID)
}

func (s *PostgresRuleStore) ListByRole(ctx context.Context, guildID, channelID, roleID string) ([]rules.Rule, error) {
	return s.list(ctx, `WHERE server_id = $1 AND channel_id = $2 AND role_id = $3`, guildID, channelID, roleID)
}

// ListByIDs loads a batch of rules in one round trip.
func (s *PostgresRuleStore) ListByIDs(ctx context.Context, ids []string) ([]rules.Rule, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	return s.list(ctx, `WHERE id = ANY($1)`, pq.Array(ids))
}

func (s *PostgresRuleStore) SetMessageID(ctx context.Context, id, messageID string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE verifier_rules SET message_id = $2 WHERE id = $1`, id, nullString(messageID))
	if err != nil {
		return fmt.Errorf("set rule message id: %w", err)
	}
	return requireRow(res)
}

func (s *PostgresRuleStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM verifier_rules WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete rule: %w", err)
	}
	return requireRow(res)
}

func (s *PostgresRuleStore) list(ctx context.Context, where string, args ...any) ([]rules.Rule, error) {
	query := `SELECT ` + ruleColumns + ` FROM verifier_rules ` + where + ` ORDER BY created_at, id`
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list rules: %w", err)
	}
	defer rows.Close()

	out := make([]rules.Rule, 0)
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("scan rule: %w", err)
		}
		out = append(out, *rule)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rules: %w", err)
	}
	return out, nil
}

type ruleRow interface {
	Scan(dest ...any) error
}

func scanRule(row ruleRow) (*rules.Rule, error) {
	var rule rules.Rule
	var kind, messageID sql.NullString
	if err := row.Scan(
		&rule.ID,
		&rule.GuildID,
		&rule.GuildName,
		&rule.ChannelID,
		&rule.ChannelName,
		&rule.RoleID,
		&rule.RoleName,
		&rule.Slug,
		&rule.AttributeKey,
		&rule.AttributeValue,
		&rule.MinItems,
		&kind,
		&messageID,
		&rule.CreatedAt,
	); err != nil {
		return nil, err
	}
	rule.MessageID = messageID.String
	rule.Kind = rules.Kind(kind.String)
	// Rows written before the discriminant existed are classified once here.
	if rule.Kind == "" {
		rule.Kind = rules.Classify(rule)
	}
	return &rule, nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("rule not found: %w", sentinel.ErrNotFound)
	}
	return nil
}

func nullString(v string) sql.NullString {
	return sql.NullString{String: v, Valid: v != ""}
}
