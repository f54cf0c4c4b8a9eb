package errors_test

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"

	"github.com/victornm/trivia/internal/errors"
)

var errDuplicate = errors.New(errors.CodeAlreadyExists, errors.WithReason("DUPLICATE"))

func TestError_Is(t *testing.T) {
	cause := stderrors.New("unique violation")
	err := fmt.Errorf("record: %w", errDuplicate.With(
		errors.WithCause(cause),
		errors.WithMessagef("answer already recorded: question=%d", 7),
	))

	assert.ErrorIs(t, err, errDuplicate)
	assert.ErrorIs(t, err, cause)
	assert.NotErrorIs(t, err, errors.New(errors.CodeAlreadyExists, errors.WithReason("OTHER")))
	assert.Equal(t, codes.AlreadyExists.String(), errDuplicate.Message, "sentinel should not be modified by With")
}

func TestError_Predicates(t *testing.T) {
	tests := map[string]struct {
		err         error
		validation  bool
		consistency bool
		unavailable bool
		httpStatus  int
	}{
		"invalid argument": {
			err:        errors.New(errors.CodeInvalidArgument),
			validation: true,
			httpStatus: http.StatusBadRequest,
		},
		"already exists": {
			err:         errors.New(errors.CodeAlreadyExists),
			consistency: true,
			httpStatus:  http.StatusConflict,
		},
		"failed precondition": {
			err:         errors.New(errors.CodeFailedPrecondition),
			consistency: true,
			httpStatus:  http.StatusConflict,
		},
		"not found": {
			err:         errors.New(errors.CodeNotFound),
			consistency: true,
			httpStatus:  http.StatusNotFound,
		},
		"unavailable": {
			err:         errors.New(errors.CodeUnavailable),
			unavailable: true,
			httpStatus:  http.StatusServiceUnavailable,
		},
		"plain error": {
			err:        stderrors.New("boom"),
			httpStatus: http.StatusInternalServerError,
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tt.validation, errors.IsValidation(tt.err))
			assert.Equal(t, tt.consistency, errors.IsConsistency(tt.err))
			assert.Equal(t, tt.unavailable, errors.IsUnavailable(tt.err))
			assert.Equal(t, tt.httpStatus, errors.Convert(tt.err).HTTPStatusCode())
		})
	}
}

func TestError_GRPCStatus(t *testing.T) {
	err := errors.New(errors.CodeFailedPrecondition, errors.WithMessagef("no active session"))

	s := err.GRPCStatus()
	require.Equal(t, codes.FailedPrecondition, s.Code())
	require.Equal(t, "no active session", s.Message())
}
