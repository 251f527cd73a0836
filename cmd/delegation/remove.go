package main

import (
	"github.com/spf13/cobra"
)

var cmdRemove = &cobra.Command{
	Use:   "remove",
	Short: "Remove a delegated role from its parent.",
	Long:  "remove drops --delegated-role from the signing role's delegation list. Without --recursive, the call fails if the child has delegations of its own; with --recursive, the whole subtree is purged, its files deleted from the output store (kept when the root declares consistent_snapshot) and, with --sign-all, its entries dropped from the refreshed snapshot.",
	Run:   runRemove,
}

var (
	removeDelegated        string
	removeRecursive        bool
	removeVersion          uint64
	removeExpires          string
	removeSnapshotExpires  string
	removeTimestampExpires string
	removeSnapshotVersion  uint64
	removeTimestampVersion uint64
)

func init() {
	cmdRemove.Flags().StringVarP(&outDir, "output", "o", "", "staged output directory")
	cmdRemove.Flags().StringSliceVarP(&keySources, "key", "k", nil, "key source URI(s) authorized to sign the parent role")
	cmdRemove.Flags().StringVar(&rootPath, "root", "", "path to the trusted root.json")
	cmdRemove.Flags().StringVar(&metadataURL, "metadata-url", "", "base URL/path the working repository's metadata is read from")
	cmdRemove.Flags().StringVar(&removeDelegated, "delegated-role", "", "name of the delegated role to remove")
	cmdRemove.Flags().BoolVar(&removeRecursive, "recursive", false, "also purge every role reachable only through the removed delegation")
	cmdRemove.Flags().StringVarP(&removeExpires, "expires", "e", "", "new parent role expiry")
	cmdRemove.Flags().Uint64VarP(&removeVersion, "version", "v", 0, "explicit parent role version (0 = current + 1)")
	cmdRemove.Flags().BoolVar(&signAll, "sign-all", false, "also refresh and sign snapshot/timestamp")
	cmdRemove.Flags().StringVar(&removeSnapshotExpires, "snapshot-expires", "", "refreshed snapshot expiry (requires --sign-all)")
	cmdRemove.Flags().Uint64Var(&removeSnapshotVersion, "snapshot-version", 0, "explicit snapshot version (0 = current + 1)")
	cmdRemove.Flags().StringVar(&removeTimestampExpires, "timestamp-expires", "", "refreshed timestamp expiry (requires --sign-all)")
	cmdRemove.Flags().Uint64Var(&removeTimestampVersion, "timestamp-version", 0, "explicit timestamp version (0 = prior + 1)")
}

func runRemove(cmd *cobra.Command, args []string) {
	if removeDelegated == "" {
		fatalf("--delegated-role is required")
	}
	if signingRole == "" {
		fatalf("--signing-role is required")
	}

	ctx, err := buildContext()
	if err != nil {
		fatalf("%v", err)
	}
	ctx.Version = removeVersion
	ctx.SnapshotVersion = removeSnapshotVersion
	ctx.TimestampVersion = removeTimestampVersion

	expires, err := parseExpiry(removeExpires)
	if err != nil {
		fatalf("%v", err)
	}
	if ctx.SnapshotExpires, err = parseExpiry(removeSnapshotExpires); err != nil {
		fatalf("%v", err)
	}
	if ctx.TimestampExpires, err = parseExpiry(removeTimestampExpires); err != nil {
		fatalf("%v", err)
	}

	if _, err := ctx.RemoveRole(qualifyRole(signingRole), qualifyRole(removeDelegated), removeRecursive, expires); err != nil {
		fatalf("removing role %s: %v", removeDelegated, err)
	}
}
