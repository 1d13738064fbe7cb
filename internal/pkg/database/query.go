package database

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
)

// Where collects AND-ed filter conditions with named parameters.
type Where struct {
	conditions []string
	Args       map[string]interface{}
}

func NewWhere() *Where {
	return &Where{Args: map[string]interface{}{}}
}

// Eq adds column = value, skipping empty values.
func (w *Where) Eq(column, value string) {
	if value == "" {
		return
	}
	w.Cond(column+" = :"+column, column, value)
}

func (w *Where) Cond(condition, key string, value interface{}) {
	w.conditions = append(w.conditions, condition)
	w.Args[key] = value
}

func (w *Where) Raw(condition string) {
	w.conditions = append(w.conditions, condition)
}

func (w *Where) Between(column string, from, to *time.Time) {
	if from != nil {
		w.Cond(column+" >= :"+column+"_from", column+"_from", *from)
	}
	if to != nil {
		w.Cond(column+" <= :"+column+"_to", column+"_to", *to)
	}
}

func (w *Where) Clause() string {
	if len(w.conditions) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.conditions, " AND ")
}

// List runs the count and the page query for one table. pageSize <= 0
// returns every matching row.
func List(ctx context.Context, db *sqlx.DB, dest interface{}, table string, w *Where, order string, page, pageSize int) (int, error) {
	whereClause := w.Clause()

	var count int
	countQuery, countArgs, err := sqlx.Named("SELECT count(*) FROM "+table+whereClause, w.Args)
	if err != nil {
		return 0, err
	}
	if err := db.GetContext(ctx, &count, db.Rebind(countQuery), countArgs...); err != nil {
		return 0, err
	}

	query := "SELECT * FROM " + table + whereClause + " ORDER BY " + order
	if pageSize > 0 {
		if page < 1 {
			page = 1
		}
		offset := (page - 1) * pageSize
		query += fmt.Sprintf(" LIMIT %d OFFSET %d", pageSize, offset)
	}

	nstmt, err := db.PrepareNamedContext(ctx, query)
	if err != nil {
		return 0, err
	}
	defer nstmt.Close()

	if err := nstmt.SelectContext(ctx, dest, w.Args); err != nil {
		return 0, err
	}
	return count, nil
}
