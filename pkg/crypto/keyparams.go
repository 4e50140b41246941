// Package crypto implements the credential-at-rest encryption scheme:
// scrypt key derivation from an operator-held secret plus a per-blob
// AES-256-GCM seal, with support for rotating both the derivation
// parameters and the secret itself without re-running OAuth handshakes.
package crypto

import (
	"crypto/rand"
	"fmt"
	"sync/atomic"
)

// KeyParameters are the scrypt cost parameters and salt used to derive an
// AES key from an operator secret. They travel alongside the ciphertext so
// a later rotation can tell which secret/cost/salt produced it.
type KeyParameters struct {
	Salt                  []byte
	ScryptCost            int
	ScryptBlockSize       int
	ScryptParallelization int
}

var currentParams atomic.Pointer[KeyParameters]

// Configure sets the parameters used for all newly-encrypted credentials
// and as the rotation target. It is called once at startup with the salt
// from operator configuration (a fresh random salt per process would mean
// no stored blob ever matches the current parameters, so Rotate's
// same-parameters branch would never apply).
func Configure(salt []byte, cost, blockSize, parallelization int) error {
	p := KeyParameters{Salt: salt, ScryptCost: cost, ScryptBlockSize: blockSize, ScryptParallelization: parallelization}
	if err := p.Validate(); err != nil {
		return err
	}
	currentParams.Store(&p)
	return nil
}

// GenerateSalt produces a fresh random salt suitable for passing to
// Configure the first time a deployment is set up.
func GenerateSalt() ([]byte, error) {
	salt := make([]byte, 17)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("crypto: generating salt: %w", err)
	}
	return salt, nil
}

// DefaultKeyParameters returns the parameters used for all newly-encrypted
// credentials. If Configure has not been called (e.g. in tests) it falls
// back to cost 2^17, block size 8, parallelization 1 and a fresh random
// salt, and stores those as the current parameters.
func DefaultKeyParameters() (KeyParameters, error) {
	if p := currentParams.Load(); p != nil {
		return *p, nil
	}
	salt, err := GenerateSalt()
	if err != nil {
		return KeyParameters{}, err
	}
	p := KeyParameters{Salt: salt, ScryptCost: 1 << 17, ScryptBlockSize: 8, ScryptParallelization: 1}
	currentParams.Store(&p)
	return p, nil
}

// Validate enforces the same bounds as the original KeyParameters
// __post_init__: cost must be a power of two >= 2^14, block size >= 2,
// and parallelization >= 1.
func (p KeyParameters) Validate() error {
	if p.ScryptCost < 1<<14 || p.ScryptCost&(p.ScryptCost-1) != 0 {
		return fmt.Errorf("crypto: scrypt cost %d must be a power of two >= 2^14", p.ScryptCost)
	}
	if p.ScryptBlockSize < 2 {
		return fmt.Errorf("crypto: scrypt block size %d must be >= 2", p.ScryptBlockSize)
	}
	if p.ScryptParallelization < 1 {
		return fmt.Errorf("crypto: scrypt parallelization %d must be >= 1", p.ScryptParallelization)
	}
	return nil
}

// MemoryRequired estimates the peak memory scrypt will use to derive a key
// under these parameters, in bytes. Mirrors the original's rough formula.
func (p KeyParameters) MemoryRequired() int {
	return 128 * p.ScryptCost * p.ScryptBlockSize * p.ScryptParallelization
}

// equal reports whether two KeyParameters would derive the same key.
func (p KeyParameters) equal(other KeyParameters) bool {
	if p.ScryptCost != other.ScryptCost ||
		p.ScryptBlockSize != other.ScryptBlockSize ||
		p.ScryptParallelization != other.ScryptParallelization ||
		len(p.Salt) != len(other.Salt) {
		return false
	}
	for i := range p.Salt {
		if p.Salt[i] != other.Salt[i] {
			return false
		}
	}
	return true
}
