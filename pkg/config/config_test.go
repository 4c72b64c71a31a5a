package config

import "testing"

func TestDefaultConfig(t *testing.T) {
	c := defaultConfig()

	if c.BlockSize != 512 {
		t.Errorf("BlockSize = %d; want 512", c.BlockSize)
	}
	if c.OutputDir != "." {
		t.Errorf("OutputDir = %q; want %q", c.OutputDir, ".")
	}
	if c.StoreDSN != ":memory:" {
		t.Errorf("StoreDSN = %q; want %q", c.StoreDSN, ":memory:")
	}
	if c.TestMode {
		t.Errorf("TestMode = true; want false")
	}
	if c.ContinueOnError {
		t.Errorf("ContinueOnError = true; want false")
	}
}

func TestInitLoadUpdate(t *testing.T) {
	Init()

	c := Load()
	if c.BlockSize != 512 {
		t.Fatalf("Load() after Init() BlockSize = %d; want 512", c.BlockSize)
	}

	updated := Update(func(c *Config) {
		c.BlockSize = 4096
		c.OutputDir = "/tmp/out"
	})
	if updated.BlockSize != 4096 || updated.OutputDir != "/tmp/out" {
		t.Fatalf("Update() returned %+v; want BlockSize=4096 OutputDir=/tmp/out", updated)
	}

	again := Load()
	if again.BlockSize != 4096 || again.OutputDir != "/tmp/out" {
		t.Fatalf("Load() after Update() = %+v; want it to reflect the mutation", again)
	}
}

func TestUpdateDoesNotMutateOldSnapshot(t *testing.T) {
	Init()
	before := Load()

	Update(func(c *Config) { c.BlockSize = 9999 })

	if before.BlockSize == 9999 {
		t.Fatalf("Update must not mutate a snapshot obtained before the call")
	}
}
