package pushbuf

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSetLogger(t *testing.T) {
	defer SetLogger(nil)

	require.NotNil(t, Logger())
	require.False(t, Logger().Enabled(context.Background(), slog.LevelError))

	var buf bytes.Buffer
	l := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	SetLogger(l)
	require.True(t, Logger() == l)

	// New sequencers pick up the package logger.
	s, _, _ := newTestSequencer(t, 64, true)
	lockBoth(s)
	require.NoError(t, s.Wait(s.Current().Ref()))
	unlockBoth(s)
	require.Contains(t, buf.String(), "push buffer kicked")

	SetLogger(nil)
	require.NotNil(t, Logger())
	require.False(t, Logger().Enabled(context.Background(), slog.LevelError))
}

func TestWithLoggerNil(t *testing.T) {
	s, _, _ := newTestSequencer(t, 64, true, WithLogger(nil))
	require.NotNil(t, s.log)
	require.False(t, s.log.Enabled(context.Background(), slog.LevelError))
}
