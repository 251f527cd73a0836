package main

import (
	"github.com/spf13/cobra"
)

var cmdAddKey = &cobra.Command{
	Use:   "add-key",
	Short: "Register a new public key for a delegated role.",
	Long:  "add-key registers a public key in a parent role's delegation key set, authorizing it for --delegated-role, and re-signs the parent.",
	Run:   runAddKey,
}

var (
	addKeyNewKey          string
	addKeyDelegated       string
	addKeyVersion         uint64
	addKeyExpires         string
	addKeySnapshotExpires string
	addKeyTimestampExpires string
	addKeySnapshotVersion  uint64
	addKeyTimestampVersion uint64
)

func init() {
	cmdAddKey.Flags().StringVarP(&outDir, "output", "o", "", "staged output directory")
	cmdAddKey.Flags().StringVar(&addKeyNewKey, "new-key", "", "key source URI for the key being added (a new key is generated there if it holds none)")
	cmdAddKey.Flags().StringSliceVarP(&keySources, "key", "k", nil, "key source URI(s) authorized to sign the parent role")
	cmdAddKey.Flags().StringVar(&rootPath, "root", "", "path to the trusted root.json")
	cmdAddKey.Flags().StringVar(&metadataURL, "metadata-url", "", "base URL/path the working repository's metadata is read from")
	cmdAddKey.Flags().StringVarP(&addKeyExpires, "expires", "e", "", "new parent role expiry")
	cmdAddKey.Flags().Uint64VarP(&addKeyVersion, "version", "v", 0, "explicit parent role version (0 = current + 1)")
	cmdAddKey.Flags().StringVar(&addKeyDelegated, "delegated-role", "", "name of the delegated role receiving the new key")
	cmdAddKey.Flags().BoolVar(&signAll, "sign-all", false, "also refresh and sign snapshot/timestamp")
	cmdAddKey.Flags().StringVar(&addKeySnapshotExpires, "snapshot-expires", "", "refreshed snapshot expiry (requires --sign-all)")
	cmdAddKey.Flags().Uint64Var(&addKeySnapshotVersion, "snapshot-version", 0, "explicit snapshot version (0 = current + 1)")
	cmdAddKey.Flags().StringVar(&addKeyTimestampExpires, "timestamp-expires", "", "refreshed timestamp expiry (requires --sign-all)")
	cmdAddKey.Flags().Uint64Var(&addKeyTimestampVersion, "timestamp-version", 0, "explicit timestamp version (0 = prior + 1)")
}

func runAddKey(cmd *cobra.Command, args []string) {
	if addKeyDelegated == "" {
		fatalf("--delegated-role is required")
	}
	if addKeyNewKey == "" {
		fatalf("--new-key is required")
	}
	if signingRole == "" {
		fatalf("--signing-role is required")
	}

	ctx, err := buildContext()
	if err != nil {
		fatalf("%v", err)
	}
	ctx.Version = addKeyVersion
	ctx.SnapshotVersion = addKeySnapshotVersion
	ctx.TimestampVersion = addKeyTimestampVersion

	expires, err := parseExpiry(addKeyExpires)
	if err != nil {
		fatalf("%v", err)
	}
	if ctx.SnapshotExpires, err = parseExpiry(addKeySnapshotExpires); err != nil {
		fatalf("%v", err)
	}
	if ctx.TimestampExpires, err = parseExpiry(addKeyTimestampExpires); err != nil {
		fatalf("%v", err)
	}

	key, err := ensureKey(addKeyNewKey)
	if err != nil {
		fatalf("resolving --new-key: %v", err)
	}

	if _, err := ctx.AddKey(qualifyRole(signingRole), qualifyRole(addKeyDelegated), key, expires); err != nil {
		fatalf("adding key to %s: %v", addKeyDelegated, err)
	}
}
