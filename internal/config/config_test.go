package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_FlattensNestedKeys(t *testing.T) {
	path := writeConfig(t, `
usbdelay: 200
avrdude:
  command: /usr/local/bin/avrdude
  useconsole: true
`)
	cfg, err := Load(path, nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if got := cfg.Attribute("usbdelay"); got != "200" {
		t.Errorf("usbdelay: got %q", got)
	}
	if got := cfg.Attribute("avrdude.command"); got != "/usr/local/bin/avrdude" {
		t.Errorf("avrdude.command: got %q", got)
	}
	if !cfg.BoolAttribute("avrdude.useconsole") {
		t.Error("avrdude.useconsole should be true")
	}
}

func TestAttribute_FallsBackToDefaults(t *testing.T) {
	defaults := map[string]string{"avarice.command": "avarice"}
	cfg := New(defaults)

	if got := cfg.Attribute("avarice.command"); got != "avarice" {
		t.Errorf("default: got %q", got)
	}

	cfg.Set("avarice.command", "/opt/avarice")
	if got := cfg.Attribute("avarice.command"); got != "/opt/avarice" {
		t.Errorf("explicit value must shadow the default: got %q", got)
	}

	if got := cfg.Attribute("no.such.key"); got != "" {
		t.Errorf("absent attribute: got %q, want empty", got)
	}
}

func TestBoolAttribute_MalformedIsFalse(t *testing.T) {
	cfg := New(nil)
	cfg.Set("flag", "maybe")
	if cfg.BoolAttribute("flag") {
		t.Error("malformed boolean must read as false")
	}
	if cfg.BoolAttribute("absent") {
		t.Error("absent boolean must read as false")
	}
}

func TestLoad_ExpandsEnvVars(t *testing.T) {
	t.Setenv("AVRBRIDGE_TEST_CMD", "/custom/avrdude")
	path := writeConfig(t, `
avrdude:
  command: ${AVRBRIDGE_TEST_CMD}
  port: ${AVRBRIDGE_TEST_UNSET:-/dev/ttyUSB0}
`)
	cfg, err := Load(path, nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := cfg.Attribute("avrdude.command"); got != "/custom/avrdude" {
		t.Errorf("env expansion: got %q", got)
	}
	if got := cfg.Attribute("avrdude.port"); got != "/dev/ttyUSB0" {
		t.Errorf("env default: got %q", got)
	}
}

func TestLoad_RejectsMalformedDelay(t *testing.T) {
	path := writeConfig(t, "usbdelay: soon\n")
	if _, err := Load(path, nil); err == nil {
		t.Fatal("expected a validation error for a non-numeric usbdelay")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml"), nil); err == nil {
		t.Fatal("expected an error for a missing config file")
	}
}

func TestSaveAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.yaml")

	cfg := New(nil)
	cfg.Set("usbdelay", "150")
	cfg.Set("avrdude.command", "/usr/bin/avrdude")
	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	reloaded, err := Load(path, nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := reloaded.Attribute("usbdelay"); got != "150" {
		t.Errorf("usbdelay after reload: got %q", got)
	}
	if got := reloaded.Attribute("avrdude.command"); got != "/usr/bin/avrdude" {
		t.Errorf("avrdude.command after reload: got %q", got)
	}
}

func TestAttributesAndKeys_MergeDefaults(t *testing.T) {
	cfg := New(map[string]string{"a.x": "1", "b.y": "2"})
	cfg.Set("b.y", "3")

	merged := cfg.Attributes()
	if merged["a.x"] != "1" || merged["b.y"] != "3" {
		t.Errorf("merged view wrong: %v", merged)
	}

	keys := cfg.Keys()
	if len(keys) != 2 || keys[0] != "a.x" || keys[1] != "b.y" {
		t.Errorf("keys: got %v", keys)
	}
}
