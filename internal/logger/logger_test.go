// README: Tests for logger initialisation.
package logger

import (
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestInitialize(t *testing.T) {
	prev := Log
	t.Cleanup(func() { Log = prev })

	if err := Initialize("debug"); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if Log == nil || !Log.Core().Enabled(zapcore.DebugLevel) {
		t.Fatal("expected debug level to be enabled")
	}
	if err := Initialize("loud"); err == nil {
		t.Fatal("expected error for unknown level")
	}
}
