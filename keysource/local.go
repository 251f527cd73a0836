package keysource

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"encoding/pem"
	"io/ioutil"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/theupdateframework/delegation/tuf/data"
)

const keyFileExtension = "key"

// PassphraseRetriever matches pkg/passphrase.Retriever's shape without
// importing it directly, so keysource stays usable without pulling in the
// terminal-prompt implementation in non-interactive callers (tests,
// programmatic use).
type PassphraseRetriever func(keyName, alias string, createNew bool, attempts int) (passphrase string, giveup bool, err error)

// ErrKeyNotFound is returned when a key ID has no corresponding file in
// the local store.
type ErrKeyNotFound struct {
	KeyID string
}

func (e ErrKeyNotFound) Error() string {
	return "tuf: key not found: " + e.KeyID
}

// Local is a directory-backed Signer: one PEM file per private key, named
// by the key's ID, optionally passphrase-encrypted. It loads lazily —
// keys are decrypted only when first needed by Sign or PublicKey — since a
// directory can hold keys for roles this invocation never touches.
type Local struct {
	dir        string
	retriever  PassphraseRetriever
	decrypted  map[string]loadedKey
}

type loadedKey struct {
	keyType string
	private interface{}
}

// NewLocal opens (creating if necessary) a directory-backed key store.
// retriever may be nil if every key file is unencrypted, matching how
// PromptRetriever is optional for non-interactive test fixtures.
func NewLocal(dir string, retriever PassphraseRetriever) (*Local, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, errors.Wrap(err, "creating local key store directory")
	}
	return &Local{dir: dir, retriever: retriever, decrypted: make(map[string]loadedKey)}, nil
}

func (l *Local) pathFor(keyID string) string {
	return filepath.Join(l.dir, keyID+"."+keyFileExtension)
}

// Import writes a newly generated or externally supplied private key
// (PKCS8 DER bytes) under its key ID, optionally encrypting it with a
// passphrase obtained from the retriever.
func (l *Local) Import(keyID, keyType string, pkcs8 []byte) error {
	block := &pem.Block{Type: "PRIVATE KEY", Bytes: pkcs8, Headers: map[string]string{"keytype": keyType}}

	if l.retriever != nil {
		pass, giveup, err := l.retriever(keyID, keyType, true, 0)
		if err != nil {
			return errors.Wrap(err, "retrieving new passphrase")
		}
		if giveup {
			return errors.New("tuf: passphrase entry aborted")
		}
		if pass != "" {
			encBlock, err := x509.EncryptPEMBlock(nil, block.Type, block.Bytes, []byte(pass), x509.PEMCipherAES256) //nolint:staticcheck
			if err != nil {
				return errors.Wrap(err, "encrypting private key")
			}
			encBlock.Headers["keytype"] = keyType
			block = encBlock
		}
	}

	logrus.Debugf("writing private key %s to %s", keyID, l.dir)
	return ioutil.WriteFile(l.pathFor(keyID), pem.EncodeToMemory(block), 0600)
}

// load reads and decrypts keyID's private key file, caching the parsed
// result so repeat Sign calls within one invocation don't re-prompt.
func (l *Local) load(keyID string) (loadedKey, error) {
	if lk, ok := l.decrypted[keyID]; ok {
		return lk, nil
	}

	raw, err := ioutil.ReadFile(l.pathFor(keyID))
	if err != nil {
		if os.IsNotExist(err) {
			return loadedKey{}, errors.WithStack(ErrKeyNotFound{KeyID: keyID})
		}
		return loadedKey{}, errors.Wrapf(err, "reading key file for %s", keyID)
	}

	block, _ := pem.Decode(raw)
	if block == nil {
		return loadedKey{}, errors.Errorf("tuf: %s is not a valid PEM file", keyID)
	}

	der := block.Bytes
	if x509.IsEncryptedPEMBlock(block) { //nolint:staticcheck
		if l.retriever == nil {
			return loadedKey{}, errors.Errorf("tuf: key %s is encrypted but no passphrase retriever was configured", keyID)
		}
		for attempt := 0; ; attempt++ {
			pass, giveup, err := l.retriever(keyID, block.Headers["keytype"], false, attempt)
			if err != nil {
				return loadedKey{}, errors.Wrap(err, "retrieving passphrase")
			}
			if giveup {
				return loadedKey{}, errors.New("tuf: passphrase entry aborted")
			}
			der, err = x509.DecryptPEMBlock(block, []byte(pass)) //nolint:staticcheck
			if err == nil {
				break
			}
			logrus.Debugf("incorrect passphrase for key %s (attempt %d)", keyID, attempt)
		}
	}

	priv, err := x509.ParsePKCS8PrivateKey(der)
	if err != nil {
		return loadedKey{}, errors.Wrapf(err, "parsing private key %s", keyID)
	}

	lk := loadedKey{keyType: block.Headers["keytype"], private: priv}
	l.decrypted[keyID] = lk
	return lk, nil
}

// PublicKey reconstructs keyID's public data.Key from its stored private
// key file, encoding it exactly as GenerateKeyPair would have (raw bytes
// for ed25519, PKIX DER for ecdsa/rsa) so the reconstructed key's ID
// matches the one computed when the pair was first generated.
func (l *Local) PublicKey(keyID string) (*data.Key, error) {
	lk, err := l.load(keyID)
	if err != nil {
		return nil, err
	}

	var pubHex string
	switch priv := lk.private.(type) {
	case ed25519.PrivateKey:
		pubHex = hex.EncodeToString(priv.Public().(ed25519.PublicKey))
	case *ecdsa.PrivateKey:
		der, err := x509.MarshalPKIXPublicKey(&priv.PublicKey)
		if err != nil {
			return nil, errors.Wrap(err, "marshaling ecdsa public key")
		}
		pubHex = hex.EncodeToString(der)
	case *rsa.PrivateKey:
		der, err := x509.MarshalPKIXPublicKey(&priv.PublicKey)
		if err != nil {
			return nil, errors.Wrap(err, "marshaling rsa public key")
		}
		pubHex = hex.EncodeToString(der)
	default:
		return nil, errors.New("tuf: unsupported private key type in local store")
	}

	return data.NewKey(lk.keyType, lk.keyType, pubHex), nil
}

// ListKeyIDs returns the key IDs held in this store's directory, derived
// from the ".key" filenames themselves rather than any file content —
// used by the CLI to discover which keys a freshly generated or imported
// key source directory actually holds, since create-role and add-key have
// no prior role spec to consult for an expected key ID list.
func (l *Local) ListKeyIDs() ([]string, error) {
	entries, err := ioutil.ReadDir(l.dir)
	if err != nil {
		return nil, errors.Wrap(err, "listing local key store directory")
	}
	var ids []string
	suffix := "." + keyFileExtension
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if len(name) > len(suffix) && name[len(name)-len(suffix):] == suffix {
			ids = append(ids, name[:len(name)-len(suffix)])
		}
	}
	return ids, nil
}

// Sign implements signed.Signer: it attempts every requested key ID,
// skipping (not erroring on) any it has no file for, since a Local store
// is commonly handed the union of keys a multi-role signing pass needs.
func (l *Local) Sign(keyIDs []string, canonical []byte) ([]data.Signature, error) {
	sigs := make([]data.Signature, 0, len(keyIDs))
	for _, keyID := range keyIDs {
		lk, err := l.load(keyID)
		if err != nil {
			if _, ok := errors.Cause(err).(ErrKeyNotFound); ok {
				continue
			}
			return nil, err
		}

		sigHex, err := signWith(lk, canonical)
		if err != nil {
			return nil, errors.Wrapf(err, "signing with key %s", keyID)
		}
		sigs = append(sigs, data.Signature{KeyID: keyID, Method: lk.keyType, Signature: sigHex})
	}
	return sigs, nil
}

func signWith(lk loadedKey, canonical []byte) (string, error) {
	switch priv := lk.private.(type) {
	case ed25519.PrivateKey:
		return hex.EncodeToString(ed25519.Sign(priv, canonical)), nil
	case *ecdsa.PrivateKey:
		digest := sha256.Sum256(canonical)
		sig, err := priv.Sign(rand.Reader, digest[:], crypto.SHA256)
		if err != nil {
			return "", err
		}
		return hex.EncodeToString(sig), nil
	case *rsa.PrivateKey:
		digest := sha256.Sum256(canonical)
		sig, err := rsa.SignPSS(rand.Reader, priv, crypto.SHA256, digest[:], nil)
		if err != nil {
			return "", err
		}
		return hex.EncodeToString(sig), nil
	default:
		return "", errors.New("tuf: unsupported private key type in local store")
	}
}
