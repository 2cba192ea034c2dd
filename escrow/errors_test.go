package escrow

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDomainError_Error(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want string
	}{
		{
			name: "with field",
			err:  NewDomainError(ErrorSeatExited, "stage", "seat has been exited"),
			want: "0101: seat has been exited (stage)",
		},
		{
			name: "without field",
			err:  NewDomainError(ErrorConservationViolation, "", "rights are not conserved"),
			want: "0104: rights are not conserved",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestDomainError_IsMatchesByCode(t *testing.T) {
	t.Parallel()

	err := SeatExited("getCurrentAllocation")

	assert.ErrorIs(t, err, ErrSeatExited)
	assert.NotErrorIs(t, err, ErrOfferSafetyViolation)

	wrapped := fmt.Errorf("reallocate: %w", ConservationViolation("Moola", "5 != 6"))
	assert.ErrorIs(t, wrapped, ErrConservationViolation)

	var de DomainError
	require.ErrorAs(t, wrapped, &de)
	assert.Equal(t, "Moola", de.Field)
}

func TestBridgeSettlementFailure_KeepsCause(t *testing.T) {
	t.Parallel()

	cause := errors.New("remote offer rejected")
	err := BridgeSettlementFailure(cause)

	assert.ErrorIs(t, err, ErrBridgeSettlementFailure)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, ErrorBridgeSettlementFailure, CodeOf(err))
}

func TestCodeOf(t *testing.T) {
	t.Parallel()

	assert.Equal(t, ErrorInvalidInput, CodeOf(InvalidInput("keyword", "bad")))
	assert.Equal(t, ErrorCode(""), CodeOf(errors.New("plain")))
	assert.Equal(t, ErrorCode(""), CodeOf(nil))
}
