package log

import (
	"bytes"
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestContextWithRequestID(t *testing.T) {
	ctx := ContextWithRequestID(context.Background(), "req-1")
	assert.Equal(t, "req-1", RequestIDFromContext(ctx))
	assert.Empty(t, RequestIDFromContext(context.Background()))
}

func TestWithContext(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	l := WithContext(ContextWithRequestID(context.Background(), "req-2"), logger)
	l.Info().Msg("hello")
	assert.Contains(t, buf.String(), `"request_id":"req-2"`)

	buf.Reset()
	l = WithContext(context.Background(), logger)
	l.Info().Msg("hello")
	assert.NotContains(t, buf.String(), "request_id")
}

func TestWithSession(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	l := WithSession(logger, "ds-1")
	l.Info().Msg("x")
	assert.Contains(t, buf.String(), `"session_id":"ds-1"`)

	buf.Reset()
	l = WithSession(logger, "")
	l.Info().Msg("x")
	assert.NotContains(t, buf.String(), "session_id")
}
