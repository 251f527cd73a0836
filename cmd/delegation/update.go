package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/theupdateframework/delegation/tuf/data"
)

var cmdUpdate = &cobra.Command{
	Use:   "update",
	Short: "Replace a role's staged content with one imported from elsewhere and re-sign it.",
	Long:  "update reads a targets metadata file produced by another invocation (--import-url) and replaces --role's target map and delegations with its content verbatim, then signs the result under this invocation's own keys. Unlike update-delegated-targets, which rebuilds a target map from a local directory scan, this imports content computed elsewhere wholesale.",
	Run:   runUpdate,
}

var (
	updateRole             string
	updateImportURL        string
	updateVersion          uint64
	updateExpires          string
	updateSnapshotExpires  string
	updateTimestampExpires string
	updateSnapshotVersion  uint64
	updateTimestampVersion uint64
)

func init() {
	cmdUpdate.Flags().StringVarP(&outDir, "output", "o", "", "staged output directory")
	cmdUpdate.Flags().StringSliceVarP(&keySources, "key", "k", nil, "key source URI(s) authorized to sign --role")
	cmdUpdate.Flags().StringVar(&rootPath, "root", "", "path to the trusted root.json")
	cmdUpdate.Flags().StringVar(&metadataURL, "metadata-url", "", "base URL/path the working repository's metadata is read from")
	cmdUpdate.Flags().StringVar(&updateRole, "role", "", "role whose content is being replaced")
	cmdUpdate.Flags().StringVarP(&updateImportURL, "import-url", "i", "", "path to the metadata file whose content is imported")
	cmdUpdate.Flags().StringVarP(&updateExpires, "targets-expires", "e", "", "new role expiry")
	cmdUpdate.Flags().Uint64VarP(&updateVersion, "targets-version", "v", 0, "explicit role version (0 = current + 1)")
	cmdUpdate.Flags().BoolVar(&signAll, "sign-all", false, "also refresh and sign snapshot/timestamp")
	cmdUpdate.Flags().StringVar(&updateSnapshotExpires, "snapshot-expires", "", "refreshed snapshot expiry (requires --sign-all)")
	cmdUpdate.Flags().Uint64Var(&updateSnapshotVersion, "snapshot-version", 0, "explicit snapshot version (0 = current + 1)")
	cmdUpdate.Flags().StringVar(&updateTimestampExpires, "timestamp-expires", "", "refreshed timestamp expiry (requires --sign-all)")
	cmdUpdate.Flags().Uint64Var(&updateTimestampVersion, "timestamp-version", 0, "explicit timestamp version (0 = prior + 1)")
}

func runUpdate(cmd *cobra.Command, args []string) {
	if updateRole == "" {
		fatalf("--role is required")
	}
	if updateImportURL == "" {
		fatalf("--import-url is required")
	}

	ctx, err := buildContext()
	if err != nil {
		fatalf("%v", err)
	}
	ctx.Version = updateVersion
	ctx.SnapshotVersion = updateSnapshotVersion
	ctx.TimestampVersion = updateTimestampVersion

	expires, err := parseExpiry(updateExpires)
	if err != nil {
		fatalf("%v", err)
	}
	if ctx.SnapshotExpires, err = parseExpiry(updateSnapshotExpires); err != nil {
		fatalf("%v", err)
	}
	if ctx.TimestampExpires, err = parseExpiry(updateTimestampExpires); err != nil {
		fatalf("%v", err)
	}

	imported, err := loadImportedTargets(updateImportURL)
	if err != nil {
		fatalf("loading import %s: %v", updateImportURL, err)
	}

	role := qualifyRole(updateRole)
	if _, err := ctx.ImportRole(role, imported, expires); err != nil {
		fatalf("importing %s: %v", role, err)
	}
}

// loadImportedTargets reads a signed targets metadata file from path and
// returns only its payload — update trusts the content as given by the
// caller and re-signs it under this invocation's own keys rather than
// verifying the imported file's existing signatures.
func loadImportedTargets(path string) (*data.TargetsPayload, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var signedRole data.Signed[*data.TargetsPayload]
	if err := json.Unmarshal(raw, &signedRole); err != nil {
		return nil, err
	}
	if signedRole.Signed == nil {
		var bare data.TargetsPayload
		if err := json.Unmarshal(raw, &bare); err != nil {
			return nil, err
		}
		return &bare, nil
	}
	return signedRole.Signed, nil
}
