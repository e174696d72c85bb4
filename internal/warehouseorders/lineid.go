package warehouseorders

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/odyssey-erp/odyssey-wms/internal/reconcile"
)

// MaxSequence is the largest sequence that fits the 7-digit line number.
const MaxSequence = 9_999_999

var (
	clientCodePattern = regexp.MustCompile(`^[A-Z0-9]{2,16}$`)
	upcPattern        = regexp.MustCompile(`^[0-9]{1,14}$`)
	asinPattern       = regexp.MustCompile(`^[A-Za-z0-9]{10}$`)
	upper             = cases.Upper(language.Und)
)

// NormalizeClientCode trims and upper-cases a client code.
func NormalizeClientCode(code string) string {
	return upper.String(strings.TrimSpace(code))
}

// ValidateClientCode checks a normalized client code.
func ValidateClientCode(code string) error {
	if !clientCodePattern.MatchString(code) {
		return reconcile.ValidationError{Field: "client_code", Message: "must be 2-16 letters or digits"}
	}
	return nil
}

// ValidateProductCodes checks the optional product identifiers of a line.
func ValidateProductCodes(sku, upc, asin string) error {
	if len(sku) > 64 {
		return reconcile.ValidationError{Field: "sku", Message: "must be at most 64 characters"}
	}
	if upc != "" && !upcPattern.MatchString(upc) {
		return reconcile.ValidationError{Field: "upc", Message: "must be up to 14 digits"}
	}
	if asin != "" && !asinPattern.MatchString(asin) {
		return reconcile.ValidationError{Field: "asin", Message: "must be 10 letters or digits"}
	}
	return nil
}

// FormatLineID renders {client_code}_{7-digit sequence}.
func FormatLineID(clientCode string, seq int64) (string, error) {
	if seq < 1 || seq > MaxSequence {
		return "", fmt.Errorf("%w: %s at %d", ErrSequenceExhausted, clientCode, seq)
	}
	return fmt.Sprintf("%s_%07d", clientCode, seq), nil
}

// ParseLineID splits a line identifier into client code and sequence.
func ParseLineID(id string) (string, int64, error) {
	idx := strings.LastIndexByte(id, '_')
	if idx <= 0 || len(id)-idx-1 != 7 {
		return "", 0, fmt.Errorf("%w: malformed line id %q", ErrNotFound, id)
	}
	code := id[:idx]
	if ValidateClientCode(code) != nil {
		return "", 0, fmt.Errorf("%w: malformed line id %q", ErrNotFound, id)
	}
	seq, err := strconv.ParseInt(id[idx+1:], 10, 64)
	if err != nil || seq < 1 {
		return "", 0, fmt.Errorf("%w: malformed line id %q", ErrNotFound, id)
	}
	return code, seq, nil
}
