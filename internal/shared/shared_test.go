package shared

import (
	"io"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
)

func TestSetLogLevel(t *testing.T) {
	logger := NewLogger(io.Discard)
	if logger.GetLevel() == log.DebugLevel {
		t.Fatal("expected default level above debug")
	}

	SetLogLevel(logger, log.DebugLevel)
	if logger.GetLevel() != log.DebugLevel {
		t.Errorf("GetLevel() = %v, want debug", logger.GetLevel())
	}
}

func TestWithLogger(t *testing.T) {
	logger := NewLogger(io.Discard)
	child := WithLogger(logger, "account", "personal")
	if child == nil {
		t.Fatal("WithLogger() returned nil")
	}
}

func TestGenerateID(t *testing.T) {
	id := GenerateID()
	if _, err := uuid.Parse(id); err != nil {
		t.Errorf("GenerateID() = %q, not a valid uuid: %v", id, err)
	}
	if id == GenerateID() {
		t.Error("GenerateID() returned the same id twice")
	}
}
