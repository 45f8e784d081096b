package store

import (
	"strconv"
	"strings"
	"time"

	"github.com/punchamoorthee/goalledger/internal/domain"
)

// conds accumulates AND-ed WHERE clauses. Each expression carries exactly one
// "?" which is rewritten to $n when dollar is set (PostgreSQL).
type conds struct {
	dollar  bool
	clauses []string
	args    []any
}

func (c *conds) add(expr string, arg any) {
	c.args = append(c.args, arg)
	ph := "?"
	if c.dollar {
		ph = "$" + strconv.Itoa(len(c.args))
	}
	c.clauses = append(c.clauses, strings.Replace(expr, "?", ph, 1))
}

func (c *conds) where() string {
	if len(c.clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(c.clauses, " AND ")
}

// limit appends a LIMIT placeholder when n is positive.
func (c *conds) limit(n int) string {
	if n <= 0 {
		return ""
	}
	c.args = append(c.args, n)
	if c.dollar {
		return " LIMIT $" + strconv.Itoa(len(c.args))
	}
	return " LIMIT ?"
}

func goalConds(dollar bool, ownerID int64, f GoalFilter, date func(time.Time) any) *conds {
	c := &conds{dollar: dollar}
	c.add("owner_id = ?", ownerID)
	if f.CategoryID != nil {
		c.add("category_id = ?", *f.CategoryID)
	}
	if f.ActiveOn != nil {
		c.add("deadline >= ?", date(domain.DateOf(*f.ActiveOn)))
	}
	return c
}

func transactionConds(dollar bool, ownerID int64, f TransactionFilter, date func(time.Time) any) *conds {
	c := &conds{dollar: dollar}
	c.add("owner_id = ?", ownerID)
	if f.Kind != nil {
		c.add("kind = ?", string(*f.Kind))
	}
	if f.CategoryID != nil {
		c.add("category_id = ?", *f.CategoryID)
	}
	if f.GoalID != nil {
		c.add("goal_id = ?", *f.GoalID)
	}
	if f.From != nil {
		c.add("occurred_on >= ?", date(domain.DateOf(*f.From)))
	}
	if f.To != nil {
		c.add("occurred_on <= ?", date(domain.DateOf(*f.To)))
	}
	return c
}

func sumConds(dollar bool, ownerID int64, f SumFilter, date func(time.Time) any) *conds {
	return transactionConds(dollar, ownerID, TransactionFilter{
		Kind:   f.Kind,
		GoalID: f.GoalID,
		From:   f.From,
		To:     f.To,
	}, date)
}
