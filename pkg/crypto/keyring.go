package crypto

import (
	"crypto/aes"
	"fmt"
	"sync"

	"golang.org/x/crypto/scrypt"
)

// derivedKey is a (secret, params) -> AES key memoization entry. Scrypt
// derivation is deliberately expensive (that's the point), so every secret
// rotation keeps deriving the same key on every decrypt attempt would be
// prohibitively slow under load; Ring caches the most recently used
// derivations.
type derivedKey struct {
	secret string
	params KeyParameters
	key    []byte
}

// Ring holds the current operator secret plus any number of prior secrets
// still accepted for decrypting older blobs, and memoizes scrypt
// derivations against (secret, params) pairs actually seen.
type Ring struct {
	current string
	priors  []string

	mu    sync.Mutex
	cache []derivedKey
	cap   int
}

// NewRing builds a key ring. current is the secret used for all new
// encryptions; priors are accepted for decryption only, most-recently
// retired first.
func NewRing(current string, priors ...string) *Ring {
	return &Ring{current: current, priors: priors, cap: 8}
}

func deriveKey(secret string, params KeyParameters) ([]byte, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	key, err := scrypt.Key([]byte(secret), params.Salt, params.ScryptCost, params.ScryptBlockSize, params.ScryptParallelization, 32)
	if err != nil {
		return nil, fmt.Errorf("crypto: deriving key: %w", err)
	}
	return key, nil
}

func (r *Ring) derive(secret string, params KeyParameters) ([]byte, error) {
	r.mu.Lock()
	for i, e := range r.cache {
		if e.secret == secret && e.params.equal(params) {
			// Move the hit to the most-recent end so eviction drops the
			// least recently used derivation.
			r.cache = append(append(r.cache[:i:i], r.cache[i+1:]...), e)
			r.mu.Unlock()
			return e.key, nil
		}
	}
	r.mu.Unlock()

	key, err := deriveKey(secret, params)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache = append(r.cache, derivedKey{secret, params, key})
	if len(r.cache) > r.cap {
		r.cache = r.cache[len(r.cache)-r.cap:]
	}
	return key, nil
}

// currentKey derives (and caches) the AES key for the current secret.
func (r *Ring) currentKey(params KeyParameters) ([]byte, error) {
	return r.derive(r.current, params)
}

// candidateKeys returns, in try-order, the keys that might decrypt a blob
// sealed under params: current secret first, then each prior secret.
func (r *Ring) candidateKeys(params KeyParameters) ([][]byte, error) {
	keys := make([][]byte, 0, 1+len(r.priors))
	k, err := r.derive(r.current, params)
	if err != nil {
		return nil, err
	}
	keys = append(keys, k)
	for _, secret := range r.priors {
		k, err := r.derive(secret, params)
		if err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, nil
}

func newAEAD(key []byte) (cipherAEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("crypto: building AES cipher: %w", err)
	}
	return newGCM(block)
}
