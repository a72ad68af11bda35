package apperrors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestError_Kind_Matching(t *testing.T) {
	req := require.New(t)

	err := fmt.Errorf("redeem: %w", NotFound("invitation not found"))
	req.ErrorIs(err, ErrNotFound)
	req.NotErrorIs(err, ErrConflict)
	req.Equal(KindNotFound, KindOf(err))
	req.Equal(http.StatusNotFound, HTTPStatus(err))
	req.Equal("invitation not found", PublicMessage(err))
}

func TestError_Internal_Hides_Cause(t *testing.T) {
	req := require.New(t)

	cause := errors.New("dial tcp: connection refused")
	err := Internal("failed to store message", cause)
	req.ErrorIs(err, cause)
	req.Equal(http.StatusInternalServerError, HTTPStatus(err))
	req.Equal("internal server error", PublicMessage(err))
	req.Contains(err.Error(), "connection refused")
}

func TestError_Unknown_Errors_Map_To_500(t *testing.T) {
	req := require.New(t)

	err := errors.New("boom")
	req.Equal(KindUnknown, KindOf(err))
	req.Equal(http.StatusInternalServerError, HTTPStatus(err))
}

func TestError_Status_Mapping(t *testing.T) {
	cases := map[error]int{
		Unauthorized("no token"):  http.StatusUnauthorized,
		Forbidden("not admin"):    http.StatusForbidden,
		Conflict("last admin"):    http.StatusConflict,
		InvalidInput("bad id"):    http.StatusBadRequest,
		NotFound("group missing"): http.StatusNotFound,
	}
	for err, status := range cases {
		require.Equal(t, status, HTTPStatus(err), err.Error())
	}
}
