package warehouseorders

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-wms/internal/reconcile"
)

func TestFormatAndParseLineID(t *testing.T) {
	id, err := FormatLineID("ACME", 42)
	require.NoError(t, err)
	require.Equal(t, "ACME_0000042", id)

	code, seq, err := ParseLineID(id)
	require.NoError(t, err)
	require.Equal(t, "ACME", code)
	require.Equal(t, int64(42), seq)

	_, err = FormatLineID("ACME", MaxSequence+1)
	require.ErrorIs(t, err, ErrSequenceExhausted)
}

func TestParseLineIDRejectsMalformed(t *testing.T) {
	for _, id := range []string{"", "ACME", "ACME_12", "_0000001", "acme_0000001", "ACME_00000x1", "ACME_0000000"} {
		_, _, err := ParseLineID(id)
		require.ErrorIs(t, err, ErrNotFound, id)
	}
}

func TestNormalizeClientCode(t *testing.T) {
	require.Equal(t, "ACME01", NormalizeClientCode("  acme01 "))
	require.NoError(t, ValidateClientCode("ACME01"))

	err := ValidateClientCode("A")
	verr, ok := reconcile.AsValidation(err)
	require.True(t, ok)
	require.Equal(t, "client_code", verr.Field)
	require.Error(t, ValidateClientCode("AC-ME"))
}
