package main

import (
	"github.com/spf13/cobra"
)

var cmdUpdateDelegatedTargets = &cobra.Command{
	Use:   "update-delegated-targets",
	Short: "Rescan a directory and replace the signing role's target file list.",
	Long:  "update-delegated-targets walks --targets-dir, computes length and hash metadata for every file found, replaces the signing role's staged target map wholesale, and re-signs it.",
	Run:   runUpdateDelegatedTargets,
}

var (
	updateTargetsDir              string
	updateTargetsVersion          uint64
	updateTargetsExpires          string
	updateTargetsSnapshotExpires  string
	updateTargetsTimestampExpires string
	updateTargetsSnapshotVersion  uint64
	updateTargetsTimestampVersion uint64
)

func init() {
	cmdUpdateDelegatedTargets.Flags().StringVarP(&outDir, "output", "o", "", "staged output directory")
	cmdUpdateDelegatedTargets.Flags().StringSliceVarP(&keySources, "key", "k", nil, "key source URI(s) authorized to sign the role")
	cmdUpdateDelegatedTargets.Flags().StringVar(&rootPath, "root", "", "path to the trusted root.json")
	cmdUpdateDelegatedTargets.Flags().StringVar(&metadataURL, "metadata-url", "", "base URL/path the working repository's metadata is read from")
	cmdUpdateDelegatedTargets.Flags().StringVarP(&updateTargetsDir, "targets-dir", "t", "", "directory to scan for target files")
	cmdUpdateDelegatedTargets.Flags().StringVarP(&updateTargetsExpires, "expires", "e", "", "new role expiry")
	cmdUpdateDelegatedTargets.Flags().Uint64VarP(&updateTargetsVersion, "version", "v", 0, "explicit role version (0 = current + 1)")
	cmdUpdateDelegatedTargets.Flags().BoolVar(&signAll, "sign-all", false, "also refresh and sign snapshot/timestamp")
	cmdUpdateDelegatedTargets.Flags().StringVar(&updateTargetsSnapshotExpires, "snapshot-expires", "", "refreshed snapshot expiry (requires --sign-all)")
	cmdUpdateDelegatedTargets.Flags().Uint64Var(&updateTargetsSnapshotVersion, "snapshot-version", 0, "explicit snapshot version (0 = current + 1)")
	cmdUpdateDelegatedTargets.Flags().StringVar(&updateTargetsTimestampExpires, "timestamp-expires", "", "refreshed timestamp expiry (requires --sign-all)")
	cmdUpdateDelegatedTargets.Flags().Uint64Var(&updateTargetsTimestampVersion, "timestamp-version", 0, "explicit timestamp version (0 = prior + 1)")
}

func runUpdateDelegatedTargets(cmd *cobra.Command, args []string) {
	if updateTargetsDir == "" {
		fatalf("--targets-dir is required")
	}
	if signingRole == "" {
		fatalf("--signing-role is required")
	}

	ctx, err := buildContext()
	if err != nil {
		fatalf("%v", err)
	}
	ctx.Version = updateTargetsVersion
	ctx.SnapshotVersion = updateTargetsSnapshotVersion
	ctx.TimestampVersion = updateTargetsTimestampVersion

	expires, err := parseExpiry(updateTargetsExpires)
	if err != nil {
		fatalf("%v", err)
	}
	if ctx.SnapshotExpires, err = parseExpiry(updateTargetsSnapshotExpires); err != nil {
		fatalf("%v", err)
	}
	if ctx.TimestampExpires, err = parseExpiry(updateTargetsTimestampExpires); err != nil {
		fatalf("%v", err)
	}

	if _, err := ctx.UpdateDelegatedTargets(qualifyRole(signingRole), updateTargetsDir, expires); err != nil {
		fatalf("updating targets for %s: %v", signingRole, err)
	}
}
