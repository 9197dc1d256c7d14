package logger

import (
	"testing"

	"github.com/sirupsen/logrus"
)

func TestLevelFromEnv(t *testing.T) {
	tests := []struct {
		input string
		want  logrus.Level
	}{
		{"debug", logrus.DebugLevel},
		{"info", logrus.InfoLevel},
		{"warn", logrus.WarnLevel},
		{"error", logrus.ErrorLevel},
		{"", logrus.InfoLevel},
		{"verbose", logrus.InfoLevel},
	}

	for _, tt := range tests {
		if got := levelFromEnv(tt.input); got != tt.want {
			t.Errorf("levelFromEnv(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestFormatterFor(t *testing.T) {
	if _, ok := formatterFor("", false).(*logrus.JSONFormatter); !ok {
		t.Error("expected JSON formatter when stdout is not a terminal")
	}
	if _, ok := formatterFor("", true).(*logrus.TextFormatter); !ok {
		t.Error("expected text formatter on a terminal")
	}
	if _, ok := formatterFor("json", true).(*logrus.JSONFormatter); !ok {
		t.Error("explicit json format should override terminal detection")
	}
	if _, ok := formatterFor("text", false).(*logrus.TextFormatter); !ok {
		t.Error("explicit text format should override terminal detection")
	}
}
