package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"herald/pkg/logging"
)

func TestInfowCtx_AddsContextFields(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	log := FromZap(zap.New(core)).(*SugaredLogger)
	log.SetServiceName("herald")

	ctx := logging.WithMessageID(context.Background(), "msg-7")
	log.InfowCtx(ctx, "Record acknowledged", "attempt", 2)

	entries := logs.All()
	if assert.Len(t, entries, 1) {
		fields := entries[0].ContextMap()
		assert.Equal(t, "msg-7", fields["message_id"])
		assert.Equal(t, "herald", fields["service_name"])
		assert.EqualValues(t, 2, fields["attempt"])
	}
}

func TestNew_Levels(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "error", "bogus"} {
		l, err := New(level, "json")
		assert.NoError(t, err)
		assert.NotNil(t, l)
	}
}
