package postgres

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/JakeFAU/product-extractor/internal/retry"
	"github.com/JakeFAU/product-extractor/internal/storage"
)

// SQLSTATE codes the product store treats specially.
const (
	codeUniqueViolation   = "23505"
	codeCheckViolation    = "23514"
	codeNotNullViolation  = "23502"
	codeInvalidText       = "22P02"
	codeStringTruncation  = "22001"
	codeNumericOutOfRange = "22003"
)

var permanentCodes = map[string]bool{
	codeCheckViolation:    true,
	codeNotNullViolation:  true,
	codeInvalidText:       true,
	codeStringTruncation:  true,
	codeNumericOutOfRange: true,
}

// Classify maps a write error onto the retry contract: a unique violation is
// success (nil), a data violation is wrapped as permanent and anything else
// is returned for another attempt.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	if pgErr.Code == codeUniqueViolation {
		return nil
	}
	if permanentCodes[pgErr.Code] {
		return retry.Permanent(fmt.Errorf("%w: %w", storage.ErrPermanent, err))
	}
	return err
}

// IsDuplicate reports whether err is a unique violation.
func IsDuplicate(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == codeUniqueViolation
}
