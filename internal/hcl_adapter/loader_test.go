package hcl_adapter

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/specialistvlad/netbus/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoad_Server(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	dir := t.TempDir()
	writeFile(t, dir, "server.hcl", `
codec          = "msgpack"
invoke_timeout = "0s"

server {
  listen = "127.0.0.1:9000"

  event "chat" {
    rebroadcast = true
  }
  event "ping" {}

  function "echo" {}
  function "whoami" {
    reply = "peer"
  }
}
`)
	writeFile(t, dir, "ignored.txt", "not hcl")

	// --- Act ---
	model, err := NewLoader().Load(context.Background(), dir)

	// --- Assert ---
	require.NoError(t, err)
	want := &config.Model{
		Codec:         "msgpack",
		InvokeTimeout: 0,
		Server: &config.Server{
			Listen: "127.0.0.1:9000",
			Events: []*config.Event{
				{Name: "chat", Rebroadcast: true},
				{Name: "ping"},
			},
			Functions: []*config.Function{
				{Name: "echo", Reply: config.ReplyEcho},
				{Name: "whoami", Reply: config.ReplyPeer},
			},
		},
	}
	if diff := cmp.Diff(want, model); diff != "" {
		t.Errorf("model mismatch (-want +got):\n%s", diff)
	}
}

func TestLoad_ClientStepsAndArgs(t *testing.T) {
	t.Setenv("NETBUS_TEST_PLAYER", "alice")

	// --- Arrange ---
	path := writeFile(t, t.TempDir(), "client.hcl", `
verbose = true

client {
  url             = "http://localhost:9000/socket.io/"
  connect_timeout = "3s"

  listen "chat" {}

  step "emit" "ping" {
    args = 41
  }
  step "broadcast" "chat" {
    args = { from = env.NETBUS_TEST_PLAYER, text = "hi", tags = ["a", "b"] }
  }
  step "invoke" "whoami" {}
}
`)

	// --- Act ---
	model, err := NewLoader().Load(context.Background(), path)

	// --- Assert ---
	require.NoError(t, err)
	assert.True(t, model.Verbose)
	assert.Equal(t, config.DefaultInvokeTimeout, model.InvokeTimeout)
	require.NotNil(t, model.Client)
	assert.Equal(t, 3*time.Second, model.Client.ConnectTimeout)
	assert.Equal(t, []string{"chat"}, model.Client.Listen)

	require.Len(t, model.Client.Steps, 3)
	assert.Equal(t, "41", string(model.Client.Steps[0].Args))
	assert.JSONEq(t, `{"from":"alice","text":"hi","tags":["a","b"]}`, string(model.Client.Steps[1].Args))
	assert.Equal(t, "null", string(model.Client.Steps[2].Args))
	assert.Equal(t, config.StepInvoke, model.Client.Steps[2].Kind)
	assert.Equal(t, "whoami", model.Client.Steps[2].Handle)
}

func TestLoad_Errors(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name    string
		files   map[string]string
		wantErr string
	}{
		{
			name:    "syntax error",
			files:   map[string]string{"a.hcl": `server {`},
			wantErr: "failed to parse HCL file",
		},
		{
			name:    "unknown attribute",
			files:   map[string]string{"a.hcl": `colour = "red"`},
			wantErr: "failed to decode HCL file",
		},
		{
			name: "server in two files",
			files: map[string]string{
				"a.hcl": `server { listen = ":1" }`,
				"b.hcl": `server { listen = ":2" }`,
			},
			wantErr: "duplicate server block",
		},
		{
			name:    "bad duration",
			files:   map[string]string{"a.hcl": "invoke_timeout = \"soon\"\nserver { listen = \":1\" }"},
			wantErr: "failed to parse invoke_timeout",
		},
		{
			name:    "validation failure",
			files:   map[string]string{"a.hcl": `server { listen = "" }`},
			wantErr: "listen is required",
		},
		{
			name:    "unknown variable in args",
			files:   map[string]string{"a.hcl": "client {\n url = \"http://x\"\n step \"emit\" \"e\" {\n args = nope.value\n }\n}"},
			wantErr: "invalid args",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			dir := t.TempDir()
			for name, content := range tc.files {
				writeFile(t, dir, name, content)
			}

			_, err := NewLoader().Load(context.Background(), dir)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestLoad_MissingPath(t *testing.T) {
	t.Parallel()

	_, err := NewLoader().Load(context.Background(), filepath.Join(t.TempDir(), "nope.hcl"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "error accessing path")
}
