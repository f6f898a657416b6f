package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cuongbtq/community-broadcast/internal/broadcast/domain"
	"github.com/lib/pq"
)

// MemberQuery describes the database stage of recipient resolution
type MemberQuery struct {
	// SearchTokens are OR-matched against name, phone number, house id and lane
	SearchTokens []string
	// Months scopes the payments loaded for each member; empty loads none
	Months []time.Time
	// RequirePartial keeps only members with a partial payment in Months
	RequirePartial bool
}

var searchColumns = []string{"name", "phone_number", "house_id", "lane"}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// ListActiveMembers returns active members ordered by lane, with their active
// payments for q.Months attached
func (s *Storage) ListActiveMembers(ctx context.Context, q MemberQuery) ([]domain.Member, error) {
	query := `SELECT member_id, name, phone_number, house_id, lane, active FROM members WHERE active = TRUE`
	args := []interface{}{}
	argIdx := 1

	if len(q.SearchTokens) > 0 {
		var conds []string
		for _, token := range q.SearchTokens {
			for _, col := range searchColumns {
				conds = append(conds, fmt.Sprintf("%s ILIKE $%d", col, argIdx))
			}
			args = append(args, "%"+likeEscaper.Replace(token)+"%")
			argIdx++
		}
		query += " AND (" + strings.Join(conds, " OR ") + ")"
	}

	monthKeys := make([]string, len(q.Months))
	for i, m := range q.Months {
		monthKeys[i] = domain.MonthKey(m)
	}

	if q.RequirePartial && len(monthKeys) > 0 {
		query += fmt.Sprintf(" AND EXISTS (SELECT 1 FROM payments p WHERE p.member_id = members.member_id AND p.active = TRUE AND p.partial = TRUE AND p.month = ANY($%d::date[]))", argIdx)
		args = append(args, pq.Array(monthKeys))
		argIdx++
	}

	query += " ORDER BY lane ASC, name ASC, member_id ASC"

	var members []domain.Member
	if err := s.db.SelectContext(ctx, &members, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}

	if len(members) == 0 || len(monthKeys) == 0 {
		return members, nil
	}

	if err := s.attachPayments(ctx, members, monthKeys); err != nil {
		return nil, err
	}

	return members, nil
}

func (s *Storage) attachPayments(ctx context.Context, members []domain.Member, monthKeys []string) error {
	ids := make([]string, len(members))
	index := make(map[string]int, len(members))
	for i, m := range members {
		ids[i] = m.ID
		index[m.ID] = i
	}

	query := `SELECT payment_id, member_id, amount, month, partial, active FROM payments WHERE active = TRUE AND member_id = ANY($1) AND month = ANY($2::date[])`

	var payments []domain.Payment
	if err := s.db.SelectContext(ctx, &payments, query, pq.Array(ids), pq.Array(monthKeys)); err != nil {
		return fmt.Errorf("failed to list payments: %w", err)
	}

	for _, p := range payments {
		if i, ok := index[p.MemberID]; ok {
			members[i].Payments = append(members[i].Payments, p)
		}
	}

	return nil
}
