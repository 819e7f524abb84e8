package postgres

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"

	"github.com/lyo-hub/lyo-session-engine/internal/domain/shared"
)

func TestViolationChecks(t *testing.T) {
	unique := &pgconn.PgError{Code: "23505"}
	foreignKey := &pgconn.PgError{Code: "23503"}
	notNull := &pgconn.PgError{Code: "23502"}

	// The checks see through wrapping.
	assert.True(t, IsUniqueViolation(fmt.Errorf("exec: %w", unique)))
	assert.True(t, IsForeignKeyViolation(fmt.Errorf("exec: %w", foreignKey)))
	assert.True(t, IsNotNullViolation(fmt.Errorf("exec: %w", notNull)))

	assert.False(t, IsUniqueViolation(foreignKey))
	assert.False(t, IsForeignKeyViolation(unique))
	assert.False(t, IsNotNullViolation(errors.New("connection reset")))

	assert.True(t, IsNoRows(fmt.Errorf("scan: %w", pgx.ErrNoRows)))
	assert.False(t, IsNoRows(unique))
}

func TestWriteError(t *testing.T) {
	for _, code := range []string{"23505", "23503", "23502"} {
		pgErr := &pgconn.PgError{Code: code}
		err := WriteError("upsert", fmt.Errorf("exec: %w", pgErr))

		// Constraint violations surface as validation errors and keep
		// the original pg error in the chain.
		assert.True(t, shared.IsValidation(err), code)
		var cause *pgconn.PgError
		assert.True(t, errors.As(err, &cause), code)
	}

	transient := WriteError("upsert", errors.New("connection reset"))
	assert.False(t, shared.IsValidation(transient))
	assert.ErrorContains(t, transient, "upsert")
}
