package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewRejectsUnknownLevel(t *testing.T) {
	_, err := New(Config{Level: "loud"})
	assert.Error(t, err)
}

func TestNewDefaults(t *testing.T) {
	logger, err := New(Config{Level: "debug"})
	require.NoError(t, err)
	assert.NotNil(t, logger.Logger)

	assert.NotNil(t, NewDefault().Logger)
	assert.NotNil(t, NewDevelopment().Logger)
}

func TestForPluginAttachesField(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	logger := &Logger{Logger: zap.New(core)}

	logger.ForPlugin("plugin-a").Info("started")
	logger.Component("resolver").Debug("claimed")

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, "plugin-a", entries[0].ContextMap()["plugin"])
	assert.Equal(t, "resolver", entries[1].LoggerName)
}

func TestOrNop(t *testing.T) {
	assert.NotNil(t, OrNop(nil))

	l := zap.NewExample()
	assert.Same(t, l, OrNop(l))
}
