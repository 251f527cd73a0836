package data

import (
	"crypto/sha256"
	"encoding/hex"

	cjson "github.com/docker/go/canonical/json"
)

// Key algorithm tags. The value is also used as the JSON "keytype" field.
const (
	KeyTypeEd25519 = "ed25519"
	KeyTypeECDSA   = "ecdsa-sha2-nistp256"
	KeyTypeRSA     = "rsassa-pss-sha256"
)

// Key is a public key: an algorithm tag plus its encoded public bytes.
// Its ID is a hex-encoded sha256 digest over the canonical representation
// of {keytype, scheme, keyval}, so two keys with identical canonical
// representation always share an ID regardless of insertion order.
type Key struct {
	Type   string `json:"keytype"`
	Scheme string `json:"scheme"`
	Value  KeyVal `json:"keyval"`

	id string
}

// KeyVal carries the encoded public key material.
type KeyVal struct {
	Public string `json:"public"`
}

// NewKey constructs a Key and computes its ID eagerly, so that two
// independently constructed Keys with the same material compare equal
// by ID immediately.
func NewKey(keyType, scheme, publicHex string) *Key {
	k := &Key{Type: keyType, Scheme: scheme, Value: KeyVal{Public: publicHex}}
	k.id = computeKeyID(k)
	return k
}

// ID returns the key's deterministic identifier.
func (k *Key) ID() string {
	if k.id == "" {
		k.id = computeKeyID(k)
	}
	return k.id
}

func computeKeyID(k *Key) string {
	// Sign only the public fields; never let a private key's value leak
	// into the digest if this Key struct is reused to hold one.
	canonical, err := cjson.MarshalCanonical(&Key{Type: k.Type, Scheme: k.Scheme, Value: k.Value})
	if err != nil {
		// MarshalCanonical only fails on unsupported Go types; Key's
		// fields are all strings, so this is unreachable in practice.
		panic("tuf: failed to canonicalize key for ID computation: " + err.Error())
	}
	digest := sha256.Sum256(canonical)
	return hex.EncodeToString(digest[:])
}

// KeySet is a parent role's registry of public keys, keyed by ID, shared
// by every delegation spec that references one of its members.
type KeySet map[string]*Key

// Add registers a key, keeping the first-seen copy if the ID already
// exists (two keys sharing an ID are canonically identical by construction).
func (ks KeySet) Add(k *Key) {
	if _, ok := ks[k.ID()]; !ok {
		ks[k.ID()] = k
	}
}
