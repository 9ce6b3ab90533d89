package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"portfolio_bridge/internal/models"
)

func TestAppError_IsMatchesSentinel(t *testing.T) {
	err := SessionMissing(models.ProviderRobinhood)
	wrapped := fmt.Errorf("fetching positions: %w", err)

	assert.True(t, errors.Is(wrapped, ErrSessionMissing))
	assert.False(t, errors.Is(wrapped, ErrSessionInvalid))
	assert.True(t, IsSessionError(wrapped))
}

func TestNetworkFailure_CarriesStatus(t *testing.T) {
	err := NetworkFailure(models.ProviderWebull, 503, errors.New("unavailable"))

	assert.Equal(t, 503, StatusOf(fmt.Errorf("outer: %w", err)))
	assert.Contains(t, err.Error(), "status 503")
	assert.True(t, IsNetwork(err))
}

func TestNetworkFailure_TransportErrorHasNoStatus(t *testing.T) {
	err := NetworkFailure(models.ProviderWebull, 0, errors.New("dial tcp"))

	assert.Equal(t, 0, StatusOf(err))
	assert.Equal(t, "webull request failed: dial tcp", err.Error())
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"missing", SessionMissing(models.ProviderNordnet), 401},
		{"invalid", SessionInvalid(models.ProviderNordnet, nil), 401},
		{"network", NetworkFailure(models.ProviderNordnet, 500, nil), 502},
		{"parse", ParseError(models.ProviderNordnet, models.OpQuote, nil), 502},
		{"timeout", ExtractionTimeout(models.ProviderNordnet), 504},
		{"validation", Validation("bad"), 400},
		{"unsupported", Unsupported(models.ProviderNordnet, models.OpNews), 400},
		{"not found", NotFound("provider"), 404},
		{"plain", errors.New("boom"), 500},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, HTTPStatus(tc.err))
		})
	}
}
