package cmd

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/zip"

	"github.com/UnAfraid/wgtunnel/pkg/config"
	"github.com/UnAfraid/wgtunnel/pkg/key"
	"github.com/UnAfraid/wgtunnel/pkg/manage"
	"github.com/UnAfraid/wgtunnel/pkg/store"
	"github.com/UnAfraid/wgtunnel/pkg/wgconf"
)

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()

	var stdout bytes.Buffer
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stdout)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return stdout.String(), err
}

func TestGenkeyAndPubkey(t *testing.T) {
	out, err := execute(t, "", "genkey")
	if err != nil {
		t.Fatalf("genkey failed: %v", err)
	}
	privateKey, err := key.FromBase64(strings.TrimSpace(out))
	if err != nil {
		t.Fatalf("expected a base64 key, got %q: %v", out, err)
	}

	out, err = execute(t, privateKey.Base64()+"\n", "pubkey")
	if err != nil {
		t.Fatalf("pubkey failed: %v", err)
	}
	if strings.TrimSpace(out) != key.PublicKey(privateKey).Base64() {
		t.Fatalf("expected public key %s, got %q", key.PublicKey(privateKey).Base64(), out)
	}
}

func TestPubkeyRejectsInvalidKey(t *testing.T) {
	if _, err := execute(t, "not a key\n", "pubkey"); err == nil {
		t.Fatalf("expected error for invalid key")
	}
}

func TestCheckPrintsCanonicalForm(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wg0.conf")
	text := `[interface]
privatekey = yAnz5TF+lXXJte14tji3zlMNq+hd2rYUIgJBgB3fBmk=
address = 10.0.0.2/24 # tunnel address

[peer]
publickey = HIgo9xNzJMWLKASShiTqIybxZ0U3wGLiUeJ1PKf8ykw=
allowedips = 0.0.0.0/0
`
	if err := os.WriteFile(path, []byte(text), 0600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	out, err := execute(t, "", "check", path)
	if err != nil {
		t.Fatalf("check failed: %v", err)
	}

	expected := `[Interface]
Address = 10.0.0.2/24
PrivateKey = yAnz5TF+lXXJte14tji3zlMNq+hd2rYUIgJBgB3fBmk=

[Peer]
AllowedIPs = 0.0.0.0/0
PublicKey = HIgo9xNzJMWLKASShiTqIybxZ0U3wGLiUeJ1PKf8ykw=
`
	if out != expected {
		t.Fatalf("expected:\n%s\ngot:\n%s", expected, out)
	}
}

func TestLocalBinaryDirIsAbsolute(t *testing.T) {
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("failed to get working directory: %v", err)
	}

	dir, err := localBinaryDir(&config.Config{Tools: &config.Tools{LocalBinaryDir: "bin"}})
	if err != nil {
		t.Fatalf("localBinaryDir failed: %v", err)
	}
	if want := filepath.Join(wd, "bin"); dir != want {
		t.Fatalf("expected %s, got %s", want, dir)
	}

	dir, err = localBinaryDir(&config.Config{Tools: &config.Tools{}})
	if err != nil {
		t.Fatalf("localBinaryDir failed: %v", err)
	}
	if dir != "" {
		t.Fatalf("expected no directory, got %s", dir)
	}
}

func TestExportTunnels(t *testing.T) {
	ctx := context.Background()

	s, err := store.NewFileStore(filepath.Join(t.TempDir(), "tunnels"))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})
	manageService := manage.NewService(s, nil, nil)

	path := filepath.Join(t.TempDir(), "export.zip")
	if err := exportTunnels(ctx, manageService, path); !errors.Is(err, manage.ErrNoTunnels) {
		t.Fatalf("expected manage.ErrNoTunnels, got %v", err)
	}
	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected failed export to leave no archive, got %v", err)
	}

	tunnelConfig, err := wgconf.ParseString("[Interface]\nPrivateKey = yAnz5TF+lXXJte14tji3zlMNq+hd2rYUIgJBgB3fBmk=\n")
	if err != nil {
		t.Fatalf("failed to parse config: %v", err)
	}
	if _, err := manageService.Create(ctx, "wg0", tunnelConfig); err != nil {
		t.Fatalf("failed to create tunnel: %v", err)
	}

	if err := exportTunnels(ctx, manageService, path); err != nil {
		t.Fatalf("exportTunnels failed: %v", err)
	}

	reader, err := zip.OpenReader(path)
	if err != nil {
		t.Fatalf("failed to open archive: %v", err)
	}
	defer reader.Close()
	if len(reader.File) != 1 || reader.File[0].Name != "wg0.conf" {
		t.Fatalf("expected a single wg0.conf entry, got %d entries", len(reader.File))
	}
}
