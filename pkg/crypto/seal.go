package crypto

import (
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"fmt"

	gverrors "github.com/cos/gravyvalet/pkg/errors"
)

type cipherAEAD = cipher.AEAD

func newGCM(block cipher.Block) (cipher.AEAD, error) {
	return cipher.NewGCM(block)
}

// Sealed is an encrypted blob together with the parameters that produced
// it, in a form suitable for storing as a single JSON column.
type Sealed struct {
	Params     KeyParameters `json:"params"`
	Ciphertext []byte        `json:"ciphertext"`
}

// EncryptJSON marshals v and seals it under the ring's current secret and
// the given parameters (pass DefaultKeyParameters() for new blobs).
func EncryptJSON(ring *Ring, params KeyParameters, v any) (Sealed, error) {
	plaintext, err := json.Marshal(v)
	if err != nil {
		return Sealed{}, gverrors.NewCredentialError("marshaling credential payload", err)
	}
	ct, err := encryptBytes(ring, params, plaintext)
	if err != nil {
		return Sealed{}, err
	}
	return Sealed{Params: params, Ciphertext: ct}, nil
}

// DecryptJSON reverses EncryptJSON, trying the ring's current secret then
// each prior secret in turn, and unmarshals the result into v.
func DecryptJSON(ring *Ring, sealed Sealed, v any) error {
	plaintext, err := decryptBytes(ring, sealed)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(plaintext, v); err != nil {
		return gverrors.NewCredentialError("unmarshaling credential payload", err)
	}
	return nil
}

func encryptBytes(ring *Ring, params KeyParameters, plaintext []byte) ([]byte, error) {
	key, err := ring.currentKey(params)
	if err != nil {
		return nil, gverrors.NewCredentialError("deriving encryption key", err)
	}
	aead, err := newAEAD(key)
	if err != nil {
		return nil, gverrors.NewCredentialError("building cipher", err)
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, gverrors.NewCredentialError("generating nonce", err)
	}
	return aead.Seal(nonce, nonce, plaintext, nil), nil
}

func decryptBytes(ring *Ring, sealed Sealed) ([]byte, error) {
	keys, err := ring.candidateKeys(sealed.Params)
	if err != nil {
		return nil, gverrors.NewCredentialError("deriving decryption keys", err)
	}
	var lastErr error
	for _, key := range keys {
		aead, err := newAEAD(key)
		if err != nil {
			lastErr = err
			continue
		}
		if len(sealed.Ciphertext) < aead.NonceSize() {
			lastErr = fmt.Errorf("ciphertext shorter than nonce")
			continue
		}
		nonce, ct := sealed.Ciphertext[:aead.NonceSize()], sealed.Ciphertext[aead.NonceSize():]
		plaintext, err := aead.Open(nil, nonce, ct, nil)
		if err != nil {
			lastErr = err
			continue
		}
		return plaintext, nil
	}
	return nil, gverrors.NewCredentialError("no key in the ring could decrypt this credential", lastErr)
}

// Rotate re-seals a blob under the ring's current secret and freshest
// parameters. Both branches decrypt with whichever ring key matches and
// re-encrypt under the current secret with a new nonce: if the blob's
// parameters already equal the default parameters they are kept,
// otherwise the blob moves to the default parameters. Mirrors
// pls_rotate_encryption's two branches.
func Rotate(ring *Ring, sealed Sealed) (Sealed, error) {
	fresh, err := DefaultKeyParameters()
	if err != nil {
		return Sealed{}, err
	}

	if sealed.Params.equal(fresh) {
		plaintext, err := decryptBytes(ring, sealed)
		if err != nil {
			return Sealed{}, err
		}
		ct, err := encryptBytes(ring, sealed.Params, plaintext)
		if err != nil {
			return Sealed{}, err
		}
		return Sealed{Params: sealed.Params, Ciphertext: ct}, nil
	}

	plaintext, err := decryptBytes(ring, sealed)
	if err != nil {
		return Sealed{}, err
	}
	ct, err := encryptBytes(ring, fresh, plaintext)
	if err != nil {
		return Sealed{}, err
	}
	return Sealed{Params: fresh, Ciphertext: ct}, nil
}
