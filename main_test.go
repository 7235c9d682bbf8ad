package main

import "testing"

func TestParseFlagsDefaults(t *testing.T) {
	cfg, err := parseFlags([]string{"-client", "web"})
	if err != nil {
		t.Fatal(err)
	}
	def := DefaultConfig()
	if cfg.Addr != def.Addr || cfg.DBPath != def.DBPath || cfg.CellSize != DefaultCellSize {
		t.Errorf("cfg = %+v", cfg)
	}
	if len(cfg.Origins) != len(def.Origins) {
		t.Errorf("origins = %v", cfg.Origins)
	}
	if cfg.ClientDir != "web" {
		t.Errorf("ClientDir = %q", cfg.ClientDir)
	}
}

func TestParseFlagsOverrides(t *testing.T) {
	cfg, err := parseFlags([]string{
		"-client", "web",
		"-addr", ":9000",
		"-db", "",
		"-origins", " http://a.test , ,http://b.test",
		"-cell-size", "64",
		"-field-width", "1024",
		"-debug",
	})
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Addr != ":9000" || cfg.DBPath != "" || cfg.CellSize != 64 || cfg.FieldWidth != 1024 || !cfg.Debug {
		t.Errorf("cfg = %+v", cfg)
	}
	if len(cfg.Origins) != 2 || cfg.Origins[0] != "http://a.test" || cfg.Origins[1] != "http://b.test" {
		t.Errorf("origins = %q", cfg.Origins)
	}
}

func TestParseFlagsRejectsUnknown(t *testing.T) {
	if _, err := parseFlags([]string{"-nope"}); err == nil {
		t.Error("unknown flag accepted")
	}
}
