package storage

import (
	"context"
	"log/slog"

	"ledger/internal/core"
	"ledger/internal/log"
)

// RuleStore lists rules by ascending rule_id. That order is the rule
// priority used by classification.
type RuleStore struct {
	conn
}

func (s *RuleStore) Create(ctx context.Context, userID int64, pattern string, categoryID int64) (core.Rule, error) {
	r := core.Rule{UserID: userID, Pattern: pattern, CategoryID: categoryID}
	if err := r.Validate(); err != nil {
		return core.Rule{}, err
	}

	err := s.queryRow(ctx,
		`INSERT INTO rules (user_id, regex, category_id) VALUES (?, ?, ?) RETURNING rule_id`,
		userID, pattern, categoryID).Scan(&r.ID)
	if err != nil {
		return core.Rule{}, wrapErr("create rule", err)
	}

	slog.InfoContext(ctx, "Rule created", log.FieldRuleID, r.ID, log.FieldUserID, userID, log.FieldCategoryID, categoryID)
	return r, nil
}

func (s *RuleStore) Get(ctx context.Context, id int64) (core.Rule, error) {
	r := core.Rule{ID: id}
	err := s.queryRow(ctx,
		`SELECT user_id, regex, category_id FROM rules WHERE rule_id = ?`, id).Scan(&r.UserID, &r.Pattern, &r.CategoryID)
	if err != nil {
		return core.Rule{}, wrapErr("get rule", err)
	}
	return r, nil
}

func (s *RuleStore) List(ctx context.Context) ([]core.Rule, error) {
	return s.list(ctx, `SELECT rule_id, user_id, regex, category_id FROM rules ORDER BY rule_id`)
}

func (s *RuleStore) ListByUser(ctx context.Context, userID int64) ([]core.Rule, error) {
	return s.list(ctx, `SELECT rule_id, user_id, regex, category_id FROM rules WHERE user_id = ? ORDER BY rule_id`, userID)
}

func (s *RuleStore) list(ctx context.Context, query string, args ...any) ([]core.Rule, error) {
	rows, err := s.query(ctx, query, args...)
	if err != nil {
		return nil, wrapErr("list rules", err)
	}
	defer rows.Close()

	var rules []core.Rule
	for rows.Next() {
		var r core.Rule
		if err := rows.Scan(&r.ID, &r.UserID, &r.Pattern, &r.CategoryID); err != nil {
			return nil, wrapErr("scan rule", err)
		}
		rules = append(rules, r)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr("list rules", err)
	}
	return rules, nil
}

func (s *RuleStore) Delete(ctx context.Context, id int64) error {
	res, err := s.exec(ctx, `DELETE FROM rules WHERE rule_id = ?`, id)
	if err := checkAffected("delete rule", "rule", id, res, err); err != nil {
		return err
	}
	slog.InfoContext(ctx, "Rule deleted", log.FieldRuleID, id)
	return nil
}
