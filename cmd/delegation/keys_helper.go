package main

import (
	"strings"

	"github.com/pkg/errors"

	"github.com/theupdateframework/delegation/keysource"
	"github.com/theupdateframework/delegation/tuf/data"
)

// resolveSigner fans uris out to a signer.Sign()-capable Local store per
// source, bundled behind multiSigner — the same construction
// buildContext uses for the shared --key flag, factored out so standalone
// commands (create-role) that never call buildContext can reuse it.
func resolveSigner(uris []string) (multiSigner, error) {
	var signers multiSigner
	for _, uri := range uris {
		local, err := keysource.Resolve(uri, keysource.PassphraseRetriever(retriever))
		if err != nil {
			return nil, err
		}
		signers = append(signers, local)
	}
	return signers, nil
}

// resolveKeyBundle resolves each key source URI to its Local store and
// lists every key ID that store holds, reconstructing the public data.Key
// for each — the public-key material a brand-new role's StandaloneRole
// (and a parent's add-role/add-key calls) need to declare a delegation,
// since a bare signature only ever carries a key ID, never recoverable
// public key bytes.
func resolveKeyBundle(uris []string) ([]*data.Key, []string, error) {
	var keys []*data.Key
	var keyIDs []string
	seen := make(map[string]struct{})
	for _, uri := range uris {
		local, err := keysource.Resolve(uri, keysource.PassphraseRetriever(retriever))
		if err != nil {
			return nil, nil, err
		}
		ids, err := local.ListKeyIDs()
		if err != nil {
			return nil, nil, err
		}
		for _, id := range ids {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			key, err := local.PublicKey(id)
			if err != nil {
				return nil, nil, err
			}
			keys = append(keys, key)
			keyIDs = append(keyIDs, id)
		}
	}
	return keys, keyIDs, nil
}

// ensureKey resolves uri to a Local key store and returns the single
// public key it holds, generating a fresh ed25519 pair and importing it
// first if the store is empty — the CLI's --new-key flag for add-key may
// name either a freshly minted key's destination directory or one that
// already holds the key a caller generated out-of-band.
func ensureKey(uri string) (*data.Key, error) {
	local, err := keysource.Resolve(uri, keysource.PassphraseRetriever(retriever))
	if err != nil {
		return nil, err
	}
	ids, err := local.ListKeyIDs()
	if err != nil {
		return nil, err
	}
	switch len(ids) {
	case 0:
		key, pkcs8, err := keysource.GenerateKeyPair(data.KeyTypeEd25519)
		if err != nil {
			return nil, err
		}
		if err := local.Import(key.ID(), key.Type, pkcs8); err != nil {
			return nil, err
		}
		return key, nil
	case 1:
		return local.PublicKey(ids[0])
	default:
		return nil, errors.Errorf("tuf: %s holds %d keys; --new-key expects exactly one", uri, len(ids))
	}
}

// qualifyRole prefixes name with "targets/" unless it is a top-level role
// name or already starts with "targets/" — every delegated role in this module's
// flat-tree model lives directly under "targets/" regardless of which
// parent actually delegates to it, so a bare "--delegated-role A" names
// the same role whether its parent is "targets" or a nested delegation.
func qualifyRole(name string) string {
	if _, ok := data.ValidTopLevelRoles[name]; ok {
		return name
	}
	if strings.HasPrefix(name, data.CanonicalTargetsRole+"/") {
		return name
	}
	return data.CanonicalTargetsRole + "/" + name
}
