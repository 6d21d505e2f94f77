package database

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestPgErrorClassification(t *testing.T) {
	fk := fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23503"})
	uniq := &pgconn.PgError{Code: "23505"}

	assert.True(t, IsForeignKeyViolation(fk))
	assert.False(t, IsUniqueViolation(fk))
	assert.True(t, IsUniqueViolation(uniq))
	assert.False(t, IsForeignKeyViolation(errors.New("plain")))
}
