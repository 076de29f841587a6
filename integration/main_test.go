//go:build integration

package integration_test

import (
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/goccy/go-yaml"
)

const binary = "x-connector"

// baseConfig is the example configuration shipped with the repository.
var baseConfig map[string]any

func init() {
	dat, err := os.ReadFile("../config.yaml")
	if err != nil {
		panic(err)
	}

	if err := yaml.Unmarshal(dat, &baseConfig); err != nil {
		panic(err)
	}
}

// writeConfig stores the base configuration with the given top level
// sections replaced into dir/config.yaml.
func writeConfig(t *testing.T, dir string, overrides map[string]any) {
	t.Helper()

	doc := make(map[string]any, len(baseConfig))
	for k, v := range baseConfig {
		doc[k] = v
	}
	for k, v := range overrides {
		doc[k] = v
	}

	data, err := yaml.Marshal(doc)
	if err != nil {
		t.Fatalf("failed to encode config: %s", err)
	}

	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), data, 0o600); err != nil {
		t.Fatalf("failed to write config file: %s", err)
	}
}

func binaryPath(t *testing.T) string {
	t.Helper()

	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("failed to get wd: %s", err)
	}

	return filepath.Join(wd, binary)
}

func TestMain(m *testing.M) {
	cmd := exec.Command("go", "build", "-buildvcs=false", "-race", "-cover", "-o", binary, "../cmd/"+binary)
	if output, err := cmd.CombinedOutput(); err != nil {
		log.Printf("output: %s", output)
		log.Fatalf("error: %v", err)
	}

	code := m.Run()

	_ = os.Remove(binary)
	os.Exit(code)
}
