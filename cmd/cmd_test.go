package cmd

import "testing"

func TestSubcommandsRegistered(t *testing.T) {
	want := map[string]bool{"serve": false, "chat": false, "version": false}
	for _, c := range rootCmd.Commands() {
		if _, ok := want[c.Name()]; ok {
			want[c.Name()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("command %q not registered", name)
		}
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, logger, err := loadConfig()
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if logger == nil {
		t.Fatal("nil logger")
	}
	if cfg.Server.Addr == "" {
		t.Error("server addr default missing")
	}
	if cfg.Agent.ToolRetries != 3 {
		t.Errorf("tool retries default = %d, want 3", cfg.Agent.ToolRetries)
	}
}
