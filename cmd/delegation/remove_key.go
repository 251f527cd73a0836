package main

import (
	"github.com/spf13/cobra"
)

var cmdRemoveKey = &cobra.Command{
	Use:   "remove-key",
	Short: "Revoke a key's authorization for a delegated role.",
	Long:  "remove-key drops a key ID from a delegated role's authorized set and garbage collects it from the parent's key map if no surviving role still references it. Metadata previously signed only by the removed key will fail to meet threshold on its next sign.",
	Run:   runRemoveKey,
}

var (
	removeKeyID               string
	removeKeyDelegated        string
	removeKeyVersion          uint64
	removeKeyExpires          string
	removeKeySnapshotExpires  string
	removeKeyTimestampExpires string
	removeKeySnapshotVersion  uint64
	removeKeyTimestampVersion uint64
)

func init() {
	cmdRemoveKey.Flags().StringVarP(&outDir, "output", "o", "", "staged output directory")
	cmdRemoveKey.Flags().StringVar(&removeKeyID, "keyid", "", "hex key ID to revoke")
	cmdRemoveKey.Flags().StringSliceVarP(&keySources, "key", "k", nil, "key source URI(s) authorized to sign the parent role")
	cmdRemoveKey.Flags().StringVar(&rootPath, "root", "", "path to the trusted root.json")
	cmdRemoveKey.Flags().StringVar(&metadataURL, "metadata-url", "", "base URL/path the working repository's metadata is read from")
	cmdRemoveKey.Flags().StringVarP(&removeKeyExpires, "expires", "e", "", "new parent role expiry")
	cmdRemoveKey.Flags().Uint64VarP(&removeKeyVersion, "version", "v", 0, "explicit parent role version (0 = current + 1)")
	cmdRemoveKey.Flags().StringVar(&removeKeyDelegated, "delegated-role", "", "name of the delegated role losing the key")
	cmdRemoveKey.Flags().BoolVar(&signAll, "sign-all", false, "also refresh and sign snapshot/timestamp")
	cmdRemoveKey.Flags().StringVar(&removeKeySnapshotExpires, "snapshot-expires", "", "refreshed snapshot expiry (requires --sign-all)")
	cmdRemoveKey.Flags().Uint64Var(&removeKeySnapshotVersion, "snapshot-version", 0, "explicit snapshot version (0 = current + 1)")
	cmdRemoveKey.Flags().StringVar(&removeKeyTimestampExpires, "timestamp-expires", "", "refreshed timestamp expiry (requires --sign-all)")
	cmdRemoveKey.Flags().Uint64Var(&removeKeyTimestampVersion, "timestamp-version", 0, "explicit timestamp version (0 = prior + 1)")
}

func runRemoveKey(cmd *cobra.Command, args []string) {
	if removeKeyID == "" {
		fatalf("--keyid is required")
	}
	if removeKeyDelegated == "" {
		fatalf("--delegated-role is required")
	}
	if signingRole == "" {
		fatalf("--signing-role is required")
	}

	ctx, err := buildContext()
	if err != nil {
		fatalf("%v", err)
	}
	ctx.Version = removeKeyVersion
	ctx.SnapshotVersion = removeKeySnapshotVersion
	ctx.TimestampVersion = removeKeyTimestampVersion

	expires, err := parseExpiry(removeKeyExpires)
	if err != nil {
		fatalf("%v", err)
	}
	if ctx.SnapshotExpires, err = parseExpiry(removeKeySnapshotExpires); err != nil {
		fatalf("%v", err)
	}
	if ctx.TimestampExpires, err = parseExpiry(removeKeyTimestampExpires); err != nil {
		fatalf("%v", err)
	}

	if _, err := ctx.RemoveKey(qualifyRole(signingRole), qualifyRole(removeKeyDelegated), removeKeyID, expires); err != nil {
		fatalf("removing key %s from %s: %v", removeKeyID, removeKeyDelegated, err)
	}
}
