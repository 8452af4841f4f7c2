package logging

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_LevelParsing(t *testing.T) {
	assert.Equal(t, zerolog.DebugLevel, New(Config{Level: "debug"}).GetLevel())
	assert.Equal(t, zerolog.InfoLevel, New(Config{Level: ""}).GetLevel())
	assert.Equal(t, zerolog.InfoLevel, New(Config{Level: "not-a-level"}).GetLevel())
}

func TestNewTraceID_Unique(t *testing.T) {
	a := NewTraceID()
	b := NewTraceID()
	require.NotEmpty(t, a)
	assert.NotEqual(t, a, b)
	assert.Len(t, a, 26) // ULID canonical encoding
}

func TestTraceIDContextRoundTrip(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, TraceIDFromContext(ctx))

	ctx = ContextWithTraceID(ctx, "trace-123")
	assert.Equal(t, "trace-123", TraceIDFromContext(ctx))
	assert.Equal(t, "trace-123", GetOrGenerateTraceID(ctx))
}

func TestGetOrGenerateTraceID_MintsWhenAbsent(t *testing.T) {
	id := GetOrGenerateTraceID(context.Background())
	assert.NotEmpty(t, id)
}
