package postgres

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestPgErrorClassification(t *testing.T) {
	serialization := fmt.Errorf("claim refund: %w", &pgconn.PgError{Code: "40001"})
	unique := &pgconn.PgError{Code: "23505"}

	if !isSerializationFailure(serialization) {
		t.Fatalf("expected 40001 to be a serialization failure")
	}
	if isSerializationFailure(unique) || isSerializationFailure(errors.New("boom")) || isSerializationFailure(nil) {
		t.Fatalf("only 40001 is a serialization failure")
	}
	if !isUniqueViolation(unique) || isUniqueViolation(serialization) {
		t.Fatalf("unique violation classification is wrong")
	}
}
