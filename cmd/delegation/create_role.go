package main

import (
	"encoding/json"
	"os"
	"path/filepath"

	cjson "github.com/docker/go/canonical/json"
	"github.com/spf13/cobra"

	"github.com/theupdateframework/delegation/delegation"
)

var cmdCreateRole = &cobra.Command{
	Use:   "create-role ROLE",
	Short: "Create a standalone delegated role, signed but not yet wired into any repository.",
	Long:  "create-role produces a signed metadata file for a brand-new role with an empty target map and no child delegations. It never reads or writes the working repository — the result is meant for a later add-role call's --child-metadata-url.",
	Args:  cobra.ExactArgs(1),
	Run:   runCreateRole,
}

var (
	createRoleVersion uint64
	createRoleExpires string
)

func init() {
	cmdCreateRole.Flags().StringVarP(&outDir, "output", "o", "", "directory to write the standalone role file to")
	cmdCreateRole.Flags().StringSliceVarP(&keySources, "key", "k", nil, "key source URI(s) authorized to sign this role")
	cmdCreateRole.Flags().Uint64VarP(&createRoleVersion, "version", "v", 1, "starting version number for the new role")
	cmdCreateRole.Flags().StringVarP(&createRoleExpires, "expires", "e", "", "expiry (RFC 3339 or \"in N {minutes|hours|days|weeks}\")")
}

func runCreateRole(cmd *cobra.Command, args []string) {
	name := args[0]
	parseConfig()

	if outDir == "" {
		fatalf("--output is required")
	}
	if len(keySources) == 0 {
		fatalf("at least one --key source is required")
	}

	expires, err := parseExpiry(createRoleExpires)
	if err != nil {
		fatalf("%v", err)
	}

	signer, err := resolveSigner(keySources)
	if err != nil {
		fatalf("resolving signing keys: %v", err)
	}
	signingKeys, keyIDs, err := resolveKeyBundle(keySources)
	if err != nil {
		fatalf("resolving key material: %v", err)
	}
	if len(keyIDs) == 0 {
		fatalf("no keys found under the given --key sources; generate one first")
	}

	cfg, err := loadConfiguration()
	if err != nil {
		fatalf("%v", err)
	}
	ctx := &delegation.Context{Cfg: cfg, Signer: signer}

	result, err := ctx.CreateRole(name, signingKeys, keyIDs, createRoleVersion, expires)
	if err != nil {
		fatalf("creating role %s: %v", name, err)
	}

	if err := os.MkdirAll(outDir, 0755); err != nil {
		fatalf("creating output directory: %v", err)
	}
	raw, err := cjson.MarshalCanonical(result.Role)
	if err != nil {
		fatalf("canonicalizing new role: %v", err)
	}
	rolePath := filepath.Join(outDir, name+".json")
	if err := os.WriteFile(rolePath, raw, 0644); err != nil {
		fatalf("writing %s: %v", rolePath, err)
	}

	keysPath := filepath.Join(outDir, name+".keys.json")
	keysRaw, err := json.MarshalIndent(result.Keys, "", "  ")
	if err != nil {
		fatalf("marshaling role keys: %v", err)
	}
	if err := os.WriteFile(keysPath, keysRaw, 0644); err != nil {
		fatalf("writing %s: %v", keysPath, err)
	}
}
