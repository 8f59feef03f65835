package logger

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestPrintfHelpersRespectLevel(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	Set(zap.New(core))
	t.Cleanup(func() { Set(zap.NewNop()) })

	Debug("hidden %d", 1)
	Info("hidden %d", 2)
	Warn("published %d of %d", 3, 5)
	Error("failed: %s", "boom")

	entries := logs.All()
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
	if entries[0].Message != "published 3 of 5" || entries[0].Level != zapcore.WarnLevel {
		t.Errorf("unexpected first entry: %+v", entries[0])
	}
	if entries[1].Message != "failed: boom" {
		t.Errorf("unexpected second entry: %q", entries[1].Message)
	}
}

func TestLExposesStructuredLogger(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	Set(zap.New(core))
	t.Cleanup(func() { Set(zap.NewNop()) })

	L().Info("relay started", zap.String("addr", ":8080"))
	entries := logs.FilterField(zap.String("addr", ":8080")).All()
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
}

func TestInitUnknownLevelDefaultsToInfo(t *testing.T) {
	Init("verbose", "json")
	t.Cleanup(func() { Set(zap.NewNop()) })
	if !L().Core().Enabled(zapcore.InfoLevel) || L().Core().Enabled(zapcore.DebugLevel) {
		t.Error("expected info level")
	}
}
