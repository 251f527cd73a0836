package main

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/theupdateframework/delegation/delegation"
	"github.com/theupdateframework/delegation/tuf/data"
)

var cmdAddRole = &cobra.Command{
	Use:   "add-role",
	Short: "Wire a standalone child role into the working repository as a new delegation.",
	Long:  "add-role reads a standalone role produced by create-role, registers its keys into the parent's delegation key set, and inserts the delegation, signing the parent with the caller's keys.",
	Run:   runAddRole,
}

var (
	addRoleChildDir         string
	addRoleDelegated        string
	addRoleThreshold        int
	addRolePaths            []string
	addRoleTerminating      bool
	addRoleVersion          uint64
	addRoleExpires          string
	addRoleSnapshotExpires  string
	addRoleTimestampExpires string
	addRoleSnapshotVersion  uint64
	addRoleTimestampVersion uint64
)

func init() {
	cmdAddRole.Flags().StringVarP(&outDir, "output", "o", "", "staged output directory")
	cmdAddRole.Flags().StringVarP(&addRoleChildDir, "child-metadata-url", "i", "", "directory holding the standalone child role produced by create-role")
	cmdAddRole.Flags().StringSliceVarP(&keySources, "key", "k", nil, "key source URI(s) authorized to sign the parent role")
	cmdAddRole.Flags().StringVar(&rootPath, "root", "", "path to the trusted root.json")
	cmdAddRole.Flags().StringVar(&metadataURL, "metadata-url", "", "base URL/path the working repository's metadata is read from")
	cmdAddRole.Flags().StringVarP(&addRoleExpires, "expires", "e", "", "new parent role expiry")
	cmdAddRole.Flags().Uint64VarP(&addRoleVersion, "version", "v", 0, "explicit parent role version (0 = current + 1)")
	cmdAddRole.Flags().StringVar(&addRoleDelegated, "delegated-role", "", "name of the child role being wired in")
	cmdAddRole.Flags().IntVarP(&addRoleThreshold, "threshold", "t", 1, "signature threshold required of the child role")
	cmdAddRole.Flags().StringSliceVar(&addRolePaths, "paths", nil, "path globs the child role is scoped to")
	cmdAddRole.Flags().BoolVar(&addRoleTerminating, "terminating", false, "mark the delegation terminating")
	cmdAddRole.Flags().BoolVar(&signAll, "sign-all", false, "also refresh and sign snapshot/timestamp")
	cmdAddRole.Flags().StringVar(&addRoleSnapshotExpires, "snapshot-expires", "", "refreshed snapshot expiry (requires --sign-all)")
	cmdAddRole.Flags().Uint64Var(&addRoleSnapshotVersion, "snapshot-version", 0, "explicit snapshot version (0 = current + 1)")
	cmdAddRole.Flags().StringVar(&addRoleTimestampExpires, "timestamp-expires", "", "refreshed timestamp expiry (requires --sign-all)")
	cmdAddRole.Flags().Uint64Var(&addRoleTimestampVersion, "timestamp-version", 0, "explicit timestamp version (0 = prior + 1)")
}

func runAddRole(cmd *cobra.Command, args []string) {
	if addRoleDelegated == "" {
		fatalf("--delegated-role is required")
	}
	if addRoleChildDir == "" {
		fatalf("--child-metadata-url is required")
	}

	ctx, err := buildContext()
	if err != nil {
		fatalf("%v", err)
	}
	ctx.Version = addRoleVersion
	ctx.SnapshotVersion = addRoleSnapshotVersion
	ctx.TimestampVersion = addRoleTimestampVersion

	expires, err := parseExpiry(addRoleExpires)
	if err != nil {
		fatalf("%v", err)
	}
	if ctx.SnapshotExpires, err = parseExpiry(addRoleSnapshotExpires); err != nil {
		fatalf("%v", err)
	}
	if ctx.TimestampExpires, err = parseExpiry(addRoleTimestampExpires); err != nil {
		fatalf("%v", err)
	}

	child, err := loadStandaloneChild(addRoleChildDir, addRoleDelegated)
	if err != nil {
		fatalf("loading child role %s: %v", addRoleDelegated, err)
	}

	spec, err := data.NewRole(qualifyRole(addRoleDelegated), addRoleThreshold, nil, addRolePaths, nil)
	if err != nil {
		fatalf("%v", err)
	}
	spec.Terminating = addRoleTerminating

	if _, err := ctx.AddRole(qualifyRole(signingRole), spec, child, expires); err != nil {
		fatalf("adding role %s: %v", addRoleDelegated, err)
	}
}

// loadStandaloneChild reads the role+keys pair create-role wrote under
// dir, the bundle AddRole needs since a signature alone never carries
// recoverable public key material.
func loadStandaloneChild(dir, name string) (*delegation.StandaloneRole, error) {
	roleRaw, err := os.ReadFile(filepath.Join(dir, name+".json"))
	if err != nil {
		return nil, err
	}
	var signedRole data.Signed[*data.TargetsPayload]
	if err := json.Unmarshal(roleRaw, &signedRole); err != nil {
		return nil, err
	}

	keysRaw, err := os.ReadFile(filepath.Join(dir, name+".keys.json"))
	if err != nil {
		return nil, err
	}
	var keys []*data.Key
	if err := json.Unmarshal(keysRaw, &keys); err != nil {
		return nil, err
	}

	return &delegation.StandaloneRole{Role: &signedRole, Keys: keys}, nil
}
