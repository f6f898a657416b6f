package resolver

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/cuongbtq/community-broadcast/internal/broadcast/domain"
	"github.com/cuongbtq/community-broadcast/internal/broadcast/storage"
)

// MemberSource loads candidate members for a query
type MemberSource interface {
	ListActiveMembers(ctx context.Context, q storage.MemberQuery) ([]domain.Member, error)
}

// Resolver turns a job's stored filters into its recipient list
type Resolver struct {
	members MemberSource
	logger  *slog.Logger
}

// New creates a Resolver
func New(members MemberSource, logger *slog.Logger) *Resolver {
	return &Resolver{
		members: members,
		logger:  logger,
	}
}

// Resolve returns the job's recipients in lane order.
// Malformed filters and store errors are returned as-is for the job to fail on.
func (r *Resolver) Resolve(ctx context.Context, job *domain.BroadcastJob) ([]domain.Recipient, error) {
	months, err := job.Months()
	if err != nil {
		return nil, err
	}

	c, err := criteriaFor(job.MembersFilter, months)
	if err != nil {
		return nil, err
	}

	search := SearchTokens(job.SearchFilter)

	members, err := r.members.ListActiveMembers(ctx, c.memberQuery(search))
	if err != nil {
		return nil, fmt.Errorf("failed to load members: %w", err)
	}

	recipients := make([]domain.Recipient, 0, len(members))
	for _, m := range members {
		if !m.Active || !c.keep(m) {
			continue
		}
		recipients = append(recipients, domain.Recipient{
			ID:          m.ID,
			Name:        m.Name,
			PhoneNumber: m.PhoneNumber,
		})
	}

	r.logger.Info("Recipients resolved",
		slog.String("job_id", job.JobID),
		slog.String("members_filter", job.MembersFilter.String()),
		slog.Int("months", len(months)),
		slog.Int("search_tokens", len(search)),
		slog.Int("candidates", len(members)),
		slog.Int("recipients", len(recipients)),
	)

	return recipients, nil
}

// SearchTokens splits a free-text filter on whitespace. Blank input yields no tokens.
func SearchTokens(search string) []string {
	tokens := strings.Fields(search)
	if len(tokens) == 0 {
		return nil
	}
	return tokens
}
