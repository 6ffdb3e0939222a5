package config

import (
	"os"
	"testing"
)

func Test_bridge_config_defaults(t *testing.T) {
	for _, key := range []string{"BRIDGE_DISPLAY", "ALLOW_DISPLAY_OVERRIDE", "MAX_DIAL_ATTEMPTS", "SESSION_IDLE_TIME_EXPIRY", "LOG_LEVEL"} {
		t.Setenv(key, "")
	}
	// Setenv registers the restore, the variables stay unset meanwhile.
	unsetAll(t, "BRIDGE_DISPLAY", "ALLOW_DISPLAY_OVERRIDE", "MAX_DIAL_ATTEMPTS", "SESSION_IDLE_TIME_EXPIRY", "LOG_LEVEL")

	conf, err := Load()
	if err != nil {
		t.Error(err)
		t.FailNow()
	}
	want := Config{Display: ":0", MaxDialAttempts: 5, SessionIdleTimeExpiry: 30, LogLevel: "info"}
	if *conf != want {
		t.Errorf("got %+v want %+v", *conf, want)
	}
}

func Test_bridge_config_reads_the_environment(t *testing.T) {
	t.Setenv("BRIDGE_DISPLAY", "display-host:2")
	t.Setenv("ALLOW_DISPLAY_OVERRIDE", "true")
	t.Setenv("MAX_DIAL_ATTEMPTS", "1")
	t.Setenv("SESSION_IDLE_TIME_EXPIRY", "600")
	t.Setenv("LOG_LEVEL", "debug")

	conf, err := Load()
	if err != nil {
		t.Error(err)
		t.FailNow()
	}
	want := Config{Display: "display-host:2", AllowDisplayOverride: true, MaxDialAttempts: 1, SessionIdleTimeExpiry: 600, LogLevel: "debug"}
	if *conf != want {
		t.Errorf("got %+v want %+v", *conf, want)
	}
}

func Test_bridge_config_rejects_bad_numbers(t *testing.T) {
	t.Setenv("MAX_DIAL_ATTEMPTS", "several")
	if _, err := Load(); err == nil {
		t.Error("expected an error for a non-numeric dial attempt count")
	}
}

func Test_dump_config(t *testing.T) {
	t.Setenv("MAX_MESSAGE_BYTES", "4096")
	t.Setenv("LOG_LEVEL", "warn")

	conf, err := LoadForDump()
	if err != nil {
		t.Error(err)
		t.FailNow()
	}
	if conf.MaxMessageBytes != 4096 || conf.LogLevel != "warn" {
		t.Errorf("unexpected config %+v", *conf)
	}
}

func unsetAll(t *testing.T, keys ...string) {
	for _, key := range keys {
		if err := os.Unsetenv(key); err != nil {
			t.Error(err)
			t.FailNow()
		}
	}
}
