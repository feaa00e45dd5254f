package errors

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

// PGDiagnostics is what Postgres reported, from either pgx or lib/pq.
type PGDiagnostics struct {
	PGCode       string `json:"pg_code,omitempty"`
	PGConstraint string `json:"pg_constraint,omitempty"`
	PGTable      string `json:"pg_table,omitempty"`
	PGDetail     string `json:"pg_detail,omitempty"`
	PGMessage    string `json:"pg_message,omitempty"`
}

// ErrorDump is a log-friendly snapshot of an error and everything it wraps.
type ErrorDump struct {
	TopMessage string   `json:"top_message"`
	Code       Code     `json:"code,omitempty"`
	Retryable  bool     `json:"retryable"`
	Chain      []string `json:"chain,omitempty"`
	PGDiagnostics
}

func Dump(err error) ErrorDump {
	if err == nil {
		return ErrorDump{}
	}
	code := CodeOf(err)
	d := ErrorDump{
		TopMessage: err.Error(),
		Code:       code,
		Retryable:  MetadataFor(code).Retryable,
		Chain:      chain(err, nil),
	}
	if pg, ok := postgresDiagnostics(err); ok {
		d.PGDiagnostics = pg
	}
	return d
}

// chain walks depth first, following joined errors as well as single
// wraps.
func chain(err error, acc []string) []string {
	if err == nil {
		return acc
	}
	acc = append(acc, fmt.Sprintf("%T: %v", err, err))
	switch e := err.(type) {
	case interface{ Unwrap() []error }:
		for _, inner := range e.Unwrap() {
			acc = chain(inner, acc)
		}
	case interface{ Unwrap() error }:
		acc = chain(e.Unwrap(), acc)
	}
	return acc
}

func postgresDiagnostics(err error) (PGDiagnostics, bool) {
	if pgErr := (*pgconn.PgError)(nil); errors.As(err, &pgErr) {
		return PGDiagnostics{
			PGCode:       pgErr.Code,
			PGConstraint: pgErr.ConstraintName,
			PGTable:      pgErr.TableName,
			PGDetail:     pgErr.Detail,
			PGMessage:    pgErr.Message,
		}, true
	}
	if pqErr := (*pq.Error)(nil); errors.As(err, &pqErr) {
		return PGDiagnostics{
			PGCode:       string(pqErr.Code),
			PGConstraint: pqErr.Constraint,
			PGTable:      pqErr.Table,
			PGDetail:     pqErr.Detail,
			PGMessage:    pqErr.Message,
		}, true
	}
	return PGDiagnostics{}, false
}

// Fields flattens the dump into log fields. Empty Postgres values are left
// out.
func (d ErrorDump) Fields() map[string]any {
	fields := map[string]any{
		"error":       d.TopMessage,
		"error_code":  d.Code,
		"error_chain": d.Chain,
		"retryable":   d.Retryable,
	}
	pg := []struct{ key, value string }{
		{"pg_code", d.PGCode},
		{"pg_constraint", d.PGConstraint},
		{"pg_table", d.PGTable},
		{"pg_detail", d.PGDetail},
		{"pg_message", d.PGMessage},
	}
	for _, f := range pg {
		if f.value != "" {
			fields[f.key] = f.value
		}
	}
	return fields
}
