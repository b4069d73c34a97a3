package main

import (
	"path/filepath"
	"strings"
	"testing"

	"maxctl/internal/app"
)

func testOpts(t *testing.T) runtimeOpts {
	t.Helper()
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	cfg := app.DefaultConfig()
	cfg.DataDir = dir
	if err := app.SaveConfig(cfg, cfgPath); err != nil {
		t.Fatalf("save config: %v", err)
	}
	return runtimeOpts{configPath: cfgPath}
}

func TestBuildControllerFlagOverrides(t *testing.T) {
	opts := testOpts(t)
	opts.baseURL = "http://stub.local:9999/"
	opts.mode = "conseil"

	ctrl, cfg, logger, err := buildController(opts)
	if err != nil {
		t.Fatalf("buildController: %v", err)
	}
	defer logger.Sync()
	defer ctrl.Gate().Close()

	if cfg.BaseURL != "http://stub.local:9999" {
		t.Fatalf("base URL = %q, trailing slash should be stripped", cfg.BaseURL)
	}
	if ctrl.Mode() != app.ModeConseil {
		t.Fatalf("mode = %v, want conseil", ctrl.Mode())
	}
}

func TestBuildControllerRejectsUnknownMode(t *testing.T) {
	opts := testOpts(t)
	opts.mode = "turbo"

	if _, _, _, err := buildController(opts); err == nil {
		t.Fatalf("expected an error for an unknown mode")
	} else if !strings.Contains(err.Error(), "turbo") {
		t.Fatalf("error should name the rejected mode, got %v", err)
	}
}

func TestBuildControllerEnvOverride(t *testing.T) {
	opts := testOpts(t)
	t.Setenv("MAX_BASE_URL", "http://env.local:8081")

	ctrl, cfg, logger, err := buildController(opts)
	if err != nil {
		t.Fatalf("buildController: %v", err)
	}
	defer logger.Sync()
	defer ctrl.Gate().Close()

	if cfg.BaseURL != "http://env.local:8081" {
		t.Fatalf("base URL = %q, want env override", cfg.BaseURL)
	}
}

func TestTranscriptTailStartsAfterLastUserMessage(t *testing.T) {
	log := app.NewMessageLog()
	log.Append(app.NewTextMessage(app.RoleUser, "Bonjour"))
	log.Append(app.NewTextMessage(app.RoleAssistant, "Salut !"))
	log.Append(app.NewTextMessage(app.RoleUser, "Change le layout"))
	log.Append(app.NewTextMessage(app.RoleAssistant, "Je peux le faire."))
	log.Append(app.NewConsentMessage("c1", app.Operation{Description: "Changer la disposition"}, 300))

	msgs := log.Messages()
	start := len(msgs)
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == app.RoleUser {
			start = i + 1
			break
		}
	}
	tail := msgs[start:]
	if len(tail) != 2 {
		t.Fatalf("tail length = %d, want assistant answer plus consent entry", len(tail))
	}
	if tail[0].Role != app.RoleAssistant || tail[1].Kind != app.KindConsent {
		t.Fatalf("unexpected tail: %+v", tail)
	}
}
