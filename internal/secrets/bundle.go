package secrets

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"filippo.io/age"
	"filippo.io/age/armor"

	"github.com/dohr-michael/forge/internal/tasks"
)

// BundleFormat identifies a forge checkpoint bundle.
const BundleFormat = "forge-checkpoints/v1"

// ErrEncryptedBundle is returned when an encrypted bundle is read without an
// identity.
var ErrEncryptedBundle = errors.New("bundle is encrypted")

// Bundle is the portable form of one or more checkpoints.
type Bundle struct {
	Format      string             `json:"format"`
	ExportedAt  time.Time          `json:"exported_at"`
	Checkpoints []tasks.Checkpoint `json:"checkpoints"`
}

// WriteBundle writes cps as JSON. With a non-nil recipient the JSON is
// age-encrypted and ASCII-armored.
func WriteBundle(w io.Writer, cps []tasks.Checkpoint, recipient age.Recipient) error {
	b := Bundle{Format: BundleFormat, ExportedAt: time.Now().UTC(), Checkpoints: cps}
	data, err := json.MarshalIndent(b, "", "  ")
	if err != nil {
		return fmt.Errorf("encode bundle: %w", err)
	}
	if recipient == nil {
		_, err := w.Write(append(data, '\n'))
		return err
	}

	aw := armor.NewWriter(w)
	ew, err := age.Encrypt(aw, recipient)
	if err != nil {
		return fmt.Errorf("age encrypt init: %w", err)
	}
	if _, err := ew.Write(data); err != nil {
		return fmt.Errorf("age encrypt write: %w", err)
	}
	if err := ew.Close(); err != nil {
		return fmt.Errorf("age encrypt close: %w", err)
	}
	return aw.Close()
}

// ReadBundle reads a bundle written by WriteBundle. Armored input is
// decrypted with identity, which may be nil for plaintext bundles.
func ReadBundle(r io.Reader, identity age.Identity) (Bundle, error) {
	br := bufio.NewReader(r)
	head, _ := br.Peek(len(armor.Header))

	var src io.Reader = br
	if bytes.Equal(head, []byte(armor.Header)) {
		if identity == nil {
			return Bundle{}, ErrEncryptedBundle
		}
		dr, err := age.Decrypt(armor.NewReader(br), identity)
		if err != nil {
			return Bundle{}, fmt.Errorf("age decrypt: %w", err)
		}
		src = dr
	}

	var b Bundle
	if err := json.NewDecoder(src).Decode(&b); err != nil {
		return Bundle{}, fmt.Errorf("decode bundle: %w", err)
	}
	if b.Format != BundleFormat {
		return Bundle{}, fmt.Errorf("unsupported bundle format %q", b.Format)
	}
	return b, nil
}
