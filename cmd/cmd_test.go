package cmd

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/smazurov/camgraph/internal/node"
	"github.com/smazurov/camgraph/internal/version"
	"github.com/spf13/cobra"
)

const cameraTopology = `
depth = 4

[[nodes]]
name = "frontend"
kind = "frontend"
[nodes.params]
sensor = "1920x1080"

[[nodes]]
name = "lrme"
kind = "lrme"

[[nodes]]
name = "fdhw"
kind = "fdhw"

[[nodes]]
name = "sink"
kind = "sink"
[nodes.params]
inputs = 2

[[devices]]
type = "lrme"

[[devices]]
type = "fdhw"

[[links]]
from = "frontend:full"
to = "fdhw:image"

[[links]]
from = "frontend:ds4"
to = "lrme:tar_ds4"

[[links]]
from = "lrme:ds2"
to = "lrme:ref_ds2"
delta = 1

[[links]]
from = "lrme:vector"
to = "sink:in0"

[[links]]
from = "fdhw:results"
to = "sink:in1"
`

func writeTopology(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pipeline.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write topology: %v", err)
	}
	return path
}

func execute(t *testing.T, cmd *cobra.Command, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(t.Context())
	return out.String(), err
}

func TestValidate(t *testing.T) {
	path := writeTopology(t, cameraTopology)
	out, err := execute(t, CreateValidateCmd(), "-p", path)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if !strings.Contains(out, "4 nodes, 5 links, 2 devices, depth 4") {
		t.Errorf("output = %q", out)
	}

	bad := writeTopology(t, strings.Replace(cameraTopology, `kind = "sink"`, `kind = "display"`, 1))
	if _, err := execute(t, CreateValidateCmd(), "-p", bad); !errors.Is(err, node.ErrUnknownKind) {
		t.Errorf("validate with unknown kind = %v", err)
	}
}

func TestVersion(t *testing.T) {
	out, err := execute(t, CreateVersionCmd())
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if !strings.HasPrefix(out, "camgraph ") {
		t.Errorf("output = %q", out)
	}

	out, err = execute(t, CreateVersionCmd(), "--json")
	if err != nil {
		t.Fatalf("version --json: %v", err)
	}
	var info version.Info
	if err := json.Unmarshal([]byte(out), &info); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if info.Version == "" || info.GoVersion == "" {
		t.Errorf("info = %+v", info)
	}
}

func TestNegotiate(t *testing.T) {
	path := writeTopology(t, cameraTopology)
	out, err := execute(t, CreateNegotiateCmd(), "-p", path)
	if err != nil {
		t.Fatalf("negotiate: %v", err)
	}
	for _, want := range []string{"tar_ds4", "480x270", "2040x1", "lrme:ds2"} {
		if !strings.Contains(out, want) {
			t.Errorf("output lacks %q:\n%s", want, out)
		}
	}
}

func TestRun(t *testing.T) {
	path := writeTopology(t, cameraTopology)

	out, err := execute(t, CreateRunCmd(), "-p", path, "-n", "6", "--skip-fd")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.Contains(out, "submitted 6  success 6  failed 0  cancelled 0") {
		t.Errorf("output = %q", out)
	}

	out, err = execute(t, CreateRunCmd(), "-p", path, "-n", "6", "--flush-after", "3")
	if err != nil {
		t.Fatalf("run with flush: %v", err)
	}
	if !strings.Contains(out, "flush after 3:") || !strings.Contains(out, "submitted 6") {
		t.Errorf("output = %q", out)
	}
}
