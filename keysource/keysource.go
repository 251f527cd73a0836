// Package keysource resolves a key source URI named on the command line
// (or in config) to a signed.Signer capable of producing signatures for
// the key IDs it holds. Local, passphrase-protected PEM files are built
// in; any other scheme is rejected rather than silently ignored, since a
// misconfigured key source should fail the operation that needed it, not
// just sign with fewer keys than the caller expected.
package keysource

import (
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/hex"
	"fmt"
	"net/url"

	"github.com/pkg/errors"

	"github.com/theupdateframework/delegation/tuf/data"
)

// ErrUnsupportedKeySource is returned when a key source URI names a scheme
// this module does not implement, documenting the contract boundary with
// the external KMS resolvers out of scope for this editor.
type ErrUnsupportedKeySource struct {
	Scheme string
}

func (e ErrUnsupportedKeySource) Error() string {
	return fmt.Sprintf("tuf: unsupported key source scheme %q", e.Scheme)
}

// Resolve dispatches a key source URI to its Signer. A bare filesystem
// path (no scheme, or an explicit "file://") resolves to a directory-backed
// Local signer; anything else returns ErrUnsupportedKeySource.
func Resolve(uri string, passphraseRetriever PassphraseRetriever) (*Local, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return nil, errors.Wrap(err, "parsing key source URI")
	}
	switch u.Scheme {
	case "", "file":
		path := uri
		if u.Scheme == "file" {
			path = u.Path
		}
		return NewLocal(path, passphraseRetriever)
	default:
		return nil, errors.WithStack(ErrUnsupportedKeySource{Scheme: u.Scheme})
	}
}

// GenerateKeyPair creates a fresh private/public key pair for keyType,
// returning the data.Key record (public half, with its ID already
// computed) alongside the PKCS8-encoded private key bytes a caller can
// hand to Local.Import.
func GenerateKeyPair(keyType string) (*data.Key, []byte, error) {
	switch keyType {
	case data.KeyTypeEd25519:
		pub, priv, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			return nil, nil, errors.Wrap(err, "generating ed25519 key")
		}
		pkcs8, err := x509.MarshalPKCS8PrivateKey(priv)
		if err != nil {
			return nil, nil, errors.Wrap(err, "marshaling ed25519 private key")
		}
		return data.NewKey(data.KeyTypeEd25519, "ed25519", hex.EncodeToString(pub)), pkcs8, nil

	case data.KeyTypeECDSA:
		priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
		if err != nil {
			return nil, nil, errors.Wrap(err, "generating ecdsa key")
		}
		pub, err := x509.MarshalPKIXPublicKey(&priv.PublicKey)
		if err != nil {
			return nil, nil, errors.Wrap(err, "marshaling ecdsa public key")
		}
		pkcs8, err := x509.MarshalPKCS8PrivateKey(priv)
		if err != nil {
			return nil, nil, errors.Wrap(err, "marshaling ecdsa private key")
		}
		return data.NewKey(data.KeyTypeECDSA, "ecdsa-sha2-nistp256", hex.EncodeToString(pub)), pkcs8, nil

	case data.KeyTypeRSA:
		priv, err := rsa.GenerateKey(rand.Reader, 3072)
		if err != nil {
			return nil, nil, errors.Wrap(err, "generating rsa key")
		}
		pub, err := x509.MarshalPKIXPublicKey(&priv.PublicKey)
		if err != nil {
			return nil, nil, errors.Wrap(err, "marshaling rsa public key")
		}
		pkcs8, err := x509.MarshalPKCS8PrivateKey(priv)
		if err != nil {
			return nil, nil, errors.Wrap(err, "marshaling rsa private key")
		}
		return data.NewKey(data.KeyTypeRSA, "rsassa-pss-sha256", hex.EncodeToString(pub)), pkcs8, nil

	default:
		return nil, nil, errors.Errorf("tuf: unsupported key type %q", keyType)
	}
}
