package resolver

import (
	"fmt"
	"time"

	"github.com/cuongbtq/community-broadcast/internal/broadcast/domain"
	"github.com/cuongbtq/community-broadcast/internal/broadcast/storage"
)

// criteria is the typed form of a job's members filter. Each variant decides
// what the database stage loads and which loaded members survive.
type criteria interface {
	memberQuery(search []string) storage.MemberQuery
	keep(m domain.Member) bool
}

// criteriaFor maps a members filter and month set to its variant.
// Without months payment status is undefined, so every filter selects all members.
func criteriaFor(filter domain.MembersFilter, months []time.Time) (criteria, error) {
	if !filter.IsValid() {
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidFilter, filter)
	}
	if len(months) == 0 {
		return allMembers{}, nil
	}

	switch filter {
	case domain.MembersFilterPaid:
		return paidMembers{months: months}, nil
	case domain.MembersFilterUnpaid:
		return unpaidMembers{months: months}, nil
	case domain.MembersFilterPartial:
		return partialMembers{months: months}, nil
	default:
		return allMembers{}, nil
	}
}

type allMembers struct{}

func (allMembers) memberQuery(search []string) storage.MemberQuery {
	return storage.MemberQuery{SearchTokens: search}
}

func (allMembers) keep(domain.Member) bool { return true }

// paidMembers keeps members with a full payment for every month
type paidMembers struct {
	months []time.Time
}

func (c paidMembers) memberQuery(search []string) storage.MemberQuery {
	return storage.MemberQuery{SearchTokens: search, Months: c.months}
}

func (c paidMembers) keep(m domain.Member) bool {
	return monthsCovered(m.Payments, c.months, false) == len(c.months)
}

// unpaidMembers is the complement of paidMembers
type unpaidMembers struct {
	months []time.Time
}

func (c unpaidMembers) memberQuery(search []string) storage.MemberQuery {
	return storage.MemberQuery{SearchTokens: search, Months: c.months}
}

func (c unpaidMembers) keep(m domain.Member) bool {
	return !paidMembers(c).keep(m)
}

// partialMembers keeps members with some payment for every month, at least one of them partial
type partialMembers struct {
	months []time.Time
}

func (c partialMembers) memberQuery(search []string) storage.MemberQuery {
	return storage.MemberQuery{SearchTokens: search, Months: c.months, RequirePartial: true}
}

func (c partialMembers) keep(m domain.Member) bool {
	return monthsCovered(m.Payments, c.months, true) == len(c.months)
}

// monthsCovered counts the distinct months in scope that have a qualifying payment.
// Partial payments qualify only when allowPartial is set.
func monthsCovered(payments []domain.Payment, months []time.Time, allowPartial bool) int {
	scope := make(map[string]struct{}, len(months))
	for _, m := range months {
		scope[domain.MonthKey(m)] = struct{}{}
	}

	covered := make(map[string]struct{}, len(months))
	for _, p := range payments {
		if !p.Active || (p.Partial && !allowPartial) {
			continue
		}
		key := domain.MonthKey(p.Month)
		if _, ok := scope[key]; ok {
			covered[key] = struct{}{}
		}
	}
	return len(covered)
}
