package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"github.com/theupdateframework/delegation/config"
	"github.com/theupdateframework/delegation/delegation"
	"github.com/theupdateframework/delegation/keysource"
	"github.com/theupdateframework/delegation/tuf/data"
	"github.com/theupdateframework/delegation/tuf/signed"
	"github.com/theupdateframework/delegation/tuf/store"
)

// multiSigner fans a signing request out to every key source named on the
// command line, collecting whatever signatures each one can produce —
// mirroring how cmd/notary's CryptoService wraps several keystores behind
// one signer.
type multiSigner []signed.Signer

func (m multiSigner) Sign(keyIDs []string, canonical []byte) ([]data.Signature, error) {
	var sigs []data.Signature
	for _, s := range m {
		got, err := s.Sign(keyIDs, canonical)
		if err != nil {
			return nil, err
		}
		sigs = append(sigs, got...)
	}
	return sigs, nil
}

// loadConfiguration reads the config file parseConfig already located via
// viper, falling back to flag-only defaults if none was found.
func loadConfiguration() (*config.Configuration, error) {
	path := filepath.Join(configPath, configFileName+"."+configFileExt)
	f, err := os.Open(path)
	var cfg *config.Configuration
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, errors.Wrap(err, "opening configuration file")
		}
		cfg, err = config.Load(strings.NewReader("{}"))
		if err != nil {
			return nil, err
		}
	} else {
		defer f.Close()
		cfg, err = config.Load(f)
		if err != nil {
			return nil, err
		}
	}
	if trustDir != "" {
		cfg.TrustDir = trustDir
	}
	if metadataURL != "" {
		cfg.MetadataBaseURL = metadataURL
	}
	if targetsURL != "" {
		cfg.TargetsBaseURL = targetsURL
	}
	return cfg, nil
}

// readTrustedRoot loads a root.json-shaped file from disk without
// verifying it — the caller's loader.Load call performs the actual root
// chain verification against whatever this file claims.
func readTrustedRoot(path string) (*data.Signed[*data.RootPayload], error) {
	if path == "" {
		return nil, errors.New("delegation: --root is required")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading trusted root %s", path)
	}
	var s data.Signed[*data.RootPayload]
	if err := json.Unmarshal(b, &s); err != nil {
		return nil, errors.Wrapf(err, "parsing trusted root %s", path)
	}
	return &s, nil
}

// buildContext assembles a delegation.Context from the shared persistent
// and per-invocation flags every mutating subcommand registers.
func buildContext() (*delegation.Context, error) {
	parseConfig()
	cfg, err := loadConfiguration()
	if err != nil {
		return nil, err
	}

	source, err := store.NewFetcher(cfg.MetadataBaseURL)
	if err != nil {
		return nil, errors.Wrap(err, "resolving metadata source")
	}

	if outDir == "" {
		outDir = filepath.Join(trustDir, "staged")
	}
	output, err := store.NewFilesystemStore(outDir, "json")
	if err != nil {
		return nil, errors.Wrap(err, "opening output directory")
	}

	root, err := readTrustedRoot(rootPath)
	if err != nil {
		return nil, err
	}

	var signers multiSigner
	for _, uri := range keySources {
		local, err := keysource.Resolve(uri, keysource.PassphraseRetriever(retriever))
		if err != nil {
			return nil, errors.Wrapf(err, "resolving key source %s", uri)
		}
		signers = append(signers, local)
	}

	return &delegation.Context{
		Cfg:         cfg,
		Source:      source,
		Output:      output,
		Signer:      signers,
		SignAll:     signAll,
		TrustedRoot: root,
	}, nil
}
