package logging

import (
	"context"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func observe(t *testing.T) *observer.ObservedLogs {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	SetLogger(zap.New(core).Sugar())
	t.Cleanup(func() { SetLogger(noopLogger{}) })
	return logs
}

func TestContextFieldsArePrepended(t *testing.T) {
	logs := observe(t)

	ctx := WithFields(context.Background(), SessionFields("s-1", "u-1")...)
	ctx = WithFields(ctx, CommandFields("a-1", "a boat")...)
	InfowCtx(ctx, "hello", "extra", 1)

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	for k, want := range map[string]interface{}{
		"session.id":   "s-1",
		"user.id":      "u-1",
		"action.id":    "a-1",
		"command.text": "a boat",
		"extra":        int64(1),
	} {
		if fields[k] != want {
			t.Fatalf("field %s: want %v, got %v", k, want, fields[k])
		}
	}
}

func TestFieldHelpersOmitEmptyIDs(t *testing.T) {
	if got := SessionFields("s", ""); len(got) != 2 {
		t.Fatalf("unexpected session fields %v", got)
	}
	if got := CommandFields("", "cmd"); len(got) != 2 || got[0] != "command.text" {
		t.Fatalf("unexpected command fields %v", got)
	}
	if FromContext(context.Background()) != nil {
		t.Fatal("expected no fields on a bare context")
	}
}

func TestLevelFromEnv(t *testing.T) {
	cases := map[string]zapcore.Level{
		"debug":  zap.DebugLevel,
		" WARN ": zap.WarnLevel,
		"error":  zap.ErrorLevel,
		"":       zap.InfoLevel,
		"chatty": zap.InfoLevel,
	}
	for in, want := range cases {
		if got := levelFromEnv(in); got != want {
			t.Fatalf("levelFromEnv(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestSetLoggerNilRestoresDefault(t *testing.T) {
	observe(t)
	SetLogger(nil)
	if sugar == nil {
		if _, ok := GetLogger().(noopLogger); !ok {
			t.Fatalf("expected noop logger, got %T", GetLogger())
		}
	}
	Infow("dropped")
}

func TestOutputFromEnv(t *testing.T) {
	if got := outputFromEnv(" STDERR "); len(got) != 1 || got[0] != "stderr" {
		t.Fatalf("unexpected output %v", got)
	}
	if got := outputFromEnv(""); len(got) != 1 || got[0] != "stdout" {
		t.Fatalf("unexpected default output %v", got)
	}
}
