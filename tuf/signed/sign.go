// Package signed implements canonical serialization, signing, and
// threshold verification for TUF payloads.
package signed

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"

	cjson "github.com/docker/go/canonical/json"
	"github.com/pkg/errors"

	"github.com/theupdateframework/delegation/tuf/data"
)

// Signer is the signing half of a CryptoService: given a set of candidate
// key IDs it holds private material for, it produces signatures over the
// canonical bytes of a payload. Implementations (keysource.Local today,
// a hardware-backed or remote signer tomorrow) never need to know the
// payload's schema, only its canonical bytes.
type Signer interface {
	// Sign returns one Signature per keyID this Signer can sign with,
	// skipping any keyID it does not hold. It never errors solely because
	// a keyID is unrecognized, since a Signer is commonly handed the
	// union of keys required across a multi-role signing pass.
	Sign(keyIDs []string, canonical []byte) ([]data.Signature, error)
}

// Marshal canonicalizes payload and wraps it with signatures produced by
// signer for every key ID in keyIDs, matching the Signed[T] envelope shape.
func Marshal[T any](payload T, signer Signer, keyIDs []string) (*data.Signed[T], error) {
	canonical, err := cjson.MarshalCanonical(payload)
	if err != nil {
		return nil, errors.Wrap(err, "canonicalizing payload for signing")
	}
	sigs, err := signer.Sign(keyIDs, canonical)
	if err != nil {
		return nil, errors.Wrap(err, "signing payload")
	}
	return &data.Signed[T]{Signed: payload, Signatures: sigs}, nil
}

// CheckThreshold reports whether sigs contains at least threshold distinct
// signatures from key IDs in authorizedKeyIDs, without re-verifying the
// cryptographic signature itself — Marshal's signer is trusted to have
// produced sigs honestly within this process. This lets a composition
// layer like the delegation package's sign-then-write operations fail
// immediately with the same ErrRoleThreshold a later Load would otherwise
// raise, rather than writing a file the loader's own Verify will reject.
func CheckThreshold(role string, sigs []data.Signature, authorizedKeyIDs []string, threshold int) error {
	authorized := make(map[string]struct{}, len(authorizedKeyIDs))
	for _, id := range authorizedKeyIDs {
		authorized[id] = struct{}{}
	}
	seen := make(map[string]struct{}, len(sigs))
	for _, sig := range sigs {
		if _, ok := authorized[sig.KeyID]; ok {
			seen[sig.KeyID] = struct{}{}
		}
	}
	if len(seen) < threshold {
		return ErrRoleThreshold{Role: role, Got: len(seen), Need: threshold}
	}
	return nil
}

// Resign recomputes signatures over s.Signed's current content for keyIDs,
// replacing any prior signature from the same key IDs and appending the
// rest untouched. It re-signs a payload after a staged mutation without
// disturbing co-signatures from keys the caller does not hold; the editor
// itself signs through Marshal, which starts from an empty signature list.
func Resign[T any](s *data.Signed[T], signer Signer, keyIDs []string) error {
	canonical, err := cjson.MarshalCanonical(s.Signed)
	if err != nil {
		return errors.Wrap(err, "canonicalizing payload for resigning")
	}
	fresh, err := signer.Sign(keyIDs, canonical)
	if err != nil {
		return errors.Wrap(err, "resigning payload")
	}
	replace := make(map[string]struct{}, len(fresh))
	for _, sig := range fresh {
		replace[sig.KeyID] = struct{}{}
	}
	kept := s.Signatures[:0]
	for _, sig := range s.Signatures {
		if _, ok := replace[sig.KeyID]; !ok {
			kept = append(kept, sig)
		}
	}
	s.Signatures = append(kept, fresh...)
	return nil
}

// verifySignature checks one signature against a public key, dispatching
// on the key's algorithm tag.
func verifySignature(canonical []byte, key *data.Key, sig data.Signature) error {
	sigBytes, err := hex.DecodeString(sig.Signature)
	if err != nil {
		return errors.Wrap(err, "decoding signature hex")
	}
	pubBytes, err := hex.DecodeString(key.Value.Public)
	if err != nil {
		return errors.Wrap(err, "decoding public key hex")
	}

	switch key.Type {
	case data.KeyTypeEd25519:
		if len(pubBytes) != ed25519.PublicKeySize {
			return errors.New("tuf: malformed ed25519 public key")
		}
		if !ed25519.Verify(ed25519.PublicKey(pubBytes), canonical, sigBytes) {
			return errors.New("tuf: ed25519 signature does not verify")
		}
		return nil

	case data.KeyTypeECDSA:
		pub, err := x509.ParsePKIXPublicKey(pubBytes)
		if err != nil {
			return errors.Wrap(err, "parsing ecdsa public key")
		}
		ecdsaPub, ok := pub.(*ecdsa.PublicKey)
		if !ok {
			return errors.New("tuf: key tagged ecdsa did not parse to an ecdsa public key")
		}
		digest := sha256.Sum256(canonical)
		if !ecdsa.VerifyASN1(ecdsaPub, digest[:], sigBytes) {
			return errors.New("tuf: ecdsa signature does not verify")
		}
		return nil

	case data.KeyTypeRSA:
		pub, err := x509.ParsePKIXPublicKey(pubBytes)
		if err != nil {
			return errors.Wrap(err, "parsing rsa public key")
		}
		rsaPub, ok := pub.(*rsa.PublicKey)
		if !ok {
			return errors.New("tuf: key tagged rsa did not parse to an rsa public key")
		}
		digest := sha256.Sum256(canonical)
		if err := rsa.VerifyPSS(rsaPub, crypto.SHA256, digest[:], sigBytes, nil); err != nil {
			return errors.Wrap(err, "rsa-pss signature does not verify")
		}
		return nil

	default:
		return ErrUnknownMethod{Method: key.Type}
	}
}
