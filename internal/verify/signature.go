package verify

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/ProtonMail/go-crypto/openpgp"
	"github.com/ProtonMail/go-crypto/openpgp/armor"

	taperrors "github.com/samhoang/tapctl/internal/errors"
)

// ReadKeyRing parses an armored public key. key is either the armored
// block itself or a path to a file holding it.
func ReadKeyRing(key string) (openpgp.EntityList, error) {
	data := []byte(key)
	if !strings.Contains(key, "-----BEGIN PGP") {
		b, err := os.ReadFile(key)
		if err != nil {
			return nil, fmt.Errorf("read signing key: %w", err)
		}
		data = b
	}

	block, err := armor.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("armor decode signing key: %w", err)
	}
	if block.Type != openpgp.PublicKeyType {
		return nil, fmt.Errorf("signing key is a %q block, want %q", block.Type, openpgp.PublicKeyType)
	}

	return openpgp.ReadArmoredKeyRing(bytes.NewReader(data))
}

// VerifySignature checks an armored detached signature over data. It
// returns the signer's key ID on success and an *errors.IntegrityError
// otherwise.
func VerifySignature(pkg string, data, signature []byte, key string) (string, error) {
	keyring, err := ReadKeyRing(key)
	if err != nil {
		return "", taperrors.NewIntegrityError(pkg, fmt.Errorf("%w: %v", taperrors.ErrBadSignature, err))
	}

	signer, err := openpgp.CheckArmoredDetachedSignature(keyring, bytes.NewReader(data), bytes.NewReader(signature), nil)
	if err != nil {
		return "", taperrors.NewIntegrityError(pkg, fmt.Errorf("%w: %v", taperrors.ErrBadSignature, err))
	}

	return signer.PrimaryKey.KeyIdString(), nil
}
