package errors

import (
	stdErrors "errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDumpExtractsPgxDetails(t *testing.T) {
	pgErr := &pgconn.PgError{
		Code:           "23505",
		ConstraintName: "ux_payment_events_event_id",
		TableName:      "payment_events",
		Message:        "duplicate key value violates unique constraint",
	}
	err := Wrap(CodeConflict, fmt.Errorf("insert payment event: %w", pgErr), "record event")

	dump := Dump(err)
	assert.Equal(t, CodeConflict, dump.Code)
	assert.Equal(t, "23505", dump.PGCode)
	assert.Equal(t, "ux_payment_events_event_id", dump.PGConstraint)
	assert.Len(t, dump.Chain, 3)

	fields := dump.Fields()
	assert.Equal(t, "payment_events", fields["pg_table"])
	assert.NotContains(t, fields, "pg_detail", "empty pg values are omitted")
}

func TestDumpExtractsPqDetails(t *testing.T) {
	err := fmt.Errorf("adjust stock: %w", &pq.Error{Code: "23514", Constraint: "ck_products_stock_non_negative", Table: "products"})

	dump := Dump(err)
	assert.Equal(t, CodeInternal, dump.Code)
	assert.Equal(t, "23514", dump.PGCode)
	assert.Equal(t, "ck_products_stock_non_negative", dump.PGConstraint)
}

func TestDumpFollowsJoinedErrors(t *testing.T) {
	err := stdErrors.Join(stdErrors.New("first"), New(CodeDependency, "second"))

	dump := Dump(err)
	require.Len(t, dump.Chain, 3)
	assert.Contains(t, dump.Chain[1], "first")
	assert.Contains(t, dump.Chain[2], "second")
	assert.Equal(t, CodeDependency, dump.Code)
	assert.True(t, dump.Retryable)
}

func TestDumpMarksRetryableCodes(t *testing.T) {
	assert.True(t, Dump(New(CodeOrphanEvent, "order missing")).Retryable)
	assert.False(t, Dump(New(CodeInvalidSignature, "bad sig")).Retryable)
	assert.Equal(t, ErrorDump{}, Dump(nil))
}
