package httpx

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRespondErrorMapsSentinels(t *testing.T) {
	cases := map[error]int{
		fmt.Errorf("line: %w", ErrNotFound): http.StatusNotFound,
		ErrConflict:                          http.StatusConflict,
		ErrForbidden:                         http.StatusForbidden,
		ErrUnauthorized:                      http.StatusUnauthorized,
		ErrValidation:                        http.StatusBadRequest,
		fmt.Errorf("boom"):                   http.StatusInternalServerError,
	}
	for err, status := range cases {
		rec := httptest.NewRecorder()
		RespondError(rec, err)
		require.Equal(t, status, rec.Code, err.Error())
		var body ProblemDetail
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		require.Equal(t, status, body.Status)
	}
}

func TestFieldProblem(t *testing.T) {
	rec := httptest.NewRecorder()
	FieldProblem(rec, "ValidationError", "event", "event carries no units")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
	var body ProblemDetail
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "event", body.Field)
	require.Equal(t, "ValidationError", body.Kind)
	require.Equal(t, "event carries no units", body.Message)
}
