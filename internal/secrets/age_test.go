package secrets

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"filippo.io/age"
)

func TestIdentityFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", ".age-key")
	if err := GenerateIdentity(path); err != nil {
		t.Fatalf("GenerateIdentity: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("permissions = %o, want 0600", info.Mode().Perm())
	}

	first, err := LoadIdentity(path)
	if err != nil {
		t.Fatalf("LoadIdentity: %v", err)
	}
	if err := GenerateIdentity(path); err != nil {
		t.Fatalf("second GenerateIdentity: %v", err)
	}
	second, err := LoadIdentity(path)
	if err != nil {
		t.Fatalf("LoadIdentity: %v", err)
	}
	if first.String() != second.String() {
		t.Error("existing key was overwritten")
	}

	data, _ := os.ReadFile(path)
	if !strings.Contains(string(data), "# public key: "+first.Recipient().String()) {
		t.Errorf("key file missing public key comment:\n%s", data)
	}
}

func TestLoadIdentity_Errors(t *testing.T) {
	dir := t.TempDir()
	if _, err := LoadIdentity(filepath.Join(dir, "missing")); err == nil {
		t.Error("expected error for missing key file")
	}
	empty := filepath.Join(dir, "empty")
	if err := os.WriteFile(empty, []byte("# nothing here\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadIdentity(empty); err == nil {
		t.Error("expected error for key file without identities")
	}
}

func TestEncryptDecrypt(t *testing.T) {
	id, err := age.GenerateX25519Identity()
	if err != nil {
		t.Fatal(err)
	}
	for _, plain := range []string{"sk-ant-api03-abc", ""} {
		blob, err := Encrypt(plain, id.Recipient())
		if err != nil {
			t.Fatalf("Encrypt(%q): %v", plain, err)
		}
		if !IsEncrypted(blob) {
			t.Errorf("blob %q not recognised", blob)
		}
		got, err := Decrypt(blob, id)
		if err != nil || got != plain {
			t.Errorf("Decrypt = %q, %v; want %q", got, err, plain)
		}
	}

	other, _ := age.GenerateX25519Identity()
	blob, _ := Encrypt("x", id.Recipient())
	if _, err := Decrypt(blob, other); err == nil {
		t.Error("decrypted with the wrong identity")
	}
	if _, err := Decrypt("plain", id); err == nil {
		t.Error("decrypted a plaintext value")
	}
}

func TestDecryptEnv(t *testing.T) {
	id, _ := age.GenerateX25519Identity()
	other, _ := age.GenerateX25519Identity()
	good, _ := Encrypt("sk-secret", id.Recipient())
	bad, _ := Encrypt("nope", other.Recipient())

	t.Setenv("FORGE_TEST_GOOD", good)
	t.Setenv("FORGE_TEST_BAD", bad)
	t.Setenv("FORGE_TEST_PLAIN", "as-is")

	failed := DecryptEnv(id)

	if got := os.Getenv("FORGE_TEST_GOOD"); got != "sk-secret" {
		t.Errorf("FORGE_TEST_GOOD = %q", got)
	}
	if got := os.Getenv("FORGE_TEST_PLAIN"); got != "as-is" {
		t.Errorf("FORGE_TEST_PLAIN = %q", got)
	}
	if len(failed) != 1 || failed[0] != "FORGE_TEST_BAD" || os.Getenv("FORGE_TEST_BAD") != bad {
		t.Errorf("failed = %v", failed)
	}
}
