package auth

import (
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"sync"
	"time"
)

type jwk struct {
	Kid string `json:"kid"`
	Kty string `json:"kty"`
	Alg string `json:"alg"`
	N   string `json:"n"`
	E   string `json:"e"`
}

type jwkSet struct {
	Keys []jwk `json:"keys"`
}

// keySet caches the RSA signing keys published by the access proxy.
type keySet struct {
	mu        sync.RWMutex
	url       string
	client    *http.Client
	ttl       time.Duration
	keys      map[string]*rsa.PublicKey
	fetchedAt time.Time
}

func newKeySet(url string) *keySet {
	return &keySet{
		url:    url,
		client: &http.Client{Timeout: 5 * time.Second},
		ttl:    5 * time.Minute,
		keys:   make(map[string]*rsa.PublicKey),
	}
}

func (k *keySet) fresh() bool {
	return len(k.keys) > 0 && time.Since(k.fetchedAt) < k.ttl
}

func (k *keySet) get(kid string) (*rsa.PublicKey, error) {
	k.mu.RLock()
	key, ok := k.keys[kid]
	fresh := k.fresh()
	k.mu.RUnlock()
	if ok && fresh {
		return key, nil
	}

	if err := k.refresh(); err != nil {
		return nil, err
	}

	k.mu.RLock()
	defer k.mu.RUnlock()
	if key, ok := k.keys[kid]; ok {
		return key, nil
	}
	return nil, fmt.Errorf("kid %q not found in key set", kid)
}

func (k *keySet) refresh() error {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.fresh() {
		return nil
	}

	resp, err := k.client.Get(k.url)
	if err != nil {
		return fmt.Errorf("fetching key set: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("key set endpoint returned %d", resp.StatusCode)
	}

	var set jwkSet
	if err := json.NewDecoder(resp.Body).Decode(&set); err != nil {
		return fmt.Errorf("decoding key set: %w", err)
	}

	keys := make(map[string]*rsa.PublicKey, len(set.Keys))
	for _, j := range set.Keys {
		if j.Kty != "RSA" {
			continue
		}
		pub, err := rsaKey(j.N, j.E)
		if err != nil {
			continue
		}
		keys[j.Kid] = pub
	}

	k.keys = keys
	k.fetchedAt = time.Now()
	return nil
}

func rsaKey(n, e string) (*rsa.PublicKey, error) {
	nb, err := base64.RawURLEncoding.DecodeString(n)
	if err != nil {
		return nil, err
	}
	eb, err := base64.RawURLEncoding.DecodeString(e)
	if err != nil {
		return nil, err
	}
	return &rsa.PublicKey{
		N: new(big.Int).SetBytes(nb),
		E: int(new(big.Int).SetBytes(eb).Int64()),
	}, nil
}
