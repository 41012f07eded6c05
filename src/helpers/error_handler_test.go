package helpers

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"testing"
	"time"

	"market-relay/src/logger"

	"github.com/stretchr/testify/require"
)

func TestHTTPStatus(t *testing.T) {
	sentinel := errors.New("limit")
	cases := []struct {
		err  error
		want int
	}{
		{nil, http.StatusOK},
		{NewValidationError("bad %s", "input"), http.StatusBadRequest},
		{NewLimitExceededError(sentinel), http.StatusTooManyRequests},
		{fmt.Errorf("wrapped: %w", NewNotFoundError("client", nil)), http.StatusNotFound},
		{NewUpstreamError("list tickers", io.EOF), http.StatusBadGateway},
		{io.ErrUnexpectedEOF, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, HTTPStatus(tc.err), "%v", tc.err)
	}
}

func TestRelayErrorUnwrap(t *testing.T) {
	sentinel := errors.New("limit")
	err := NewLimitExceededError(sentinel)
	require.ErrorIs(t, err, sentinel)
	require.Equal(t, "subscription limit exceeded: limit", err.Error())
}

func TestRetryWithBackoffEventuallySucceeds(t *testing.T) {
	log := logger.NewLoggerWithWriter(io.Discard, "DEBUG", "Test")
	calls := 0

	res, err := RetryWithBackoff(context.Background(), log, "fetch", 3, time.Millisecond, func() (string, error) {
		calls++
		if calls < 3 {
			return "", io.ErrUnexpectedEOF
		}
		return "ok", nil
	})
	require.NoError(t, err)
	require.Equal(t, "ok", res)
	require.Equal(t, 3, calls)
}

func TestRetryWithBackoffGivesUp(t *testing.T) {
	calls := 0
	_, err := RetryWithBackoff(context.Background(), nil, "fetch", 2, time.Millisecond, func() (int, error) {
		calls++
		return 0, io.ErrUnexpectedEOF
	})
	require.Error(t, err)
	require.Equal(t, 2, calls)
	require.Equal(t, http.StatusBadGateway, HTTPStatus(err))
	require.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestRetryWithBackoffSkipsValidationErrors(t *testing.T) {
	calls := 0
	_, err := RetryWithBackoff(context.Background(), nil, "fetch", 5, time.Millisecond, func() (int, error) {
		calls++
		return 0, NewValidationError("bad date")
	})
	require.Equal(t, 1, calls)
	require.Equal(t, http.StatusBadRequest, HTTPStatus(err))
}

func TestErrorHandlerLogsOnlyRealErrors(t *testing.T) {
	var buf bytes.Buffer
	h := NewErrorHandler(logger.NewLoggerWithWriter(&buf, "DEBUG", "Main"))

	require.False(t, h.Handle(nil, "cache sweep"))
	require.Zero(t, buf.Len())

	require.True(t, h.Handle(errors.New("disk full"), "cache sweep"))
	require.Contains(t, buf.String(), "Error in cache sweep")
	require.Contains(t, buf.String(), "disk full")
}
