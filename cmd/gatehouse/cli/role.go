package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

func newRoleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "role",
		Short: "Inspect the role hierarchy",
		Long:  "List the configured role tiers and seed them into the store.",
	}

	cmd.AddCommand(newRoleListCmd())
	cmd.AddCommand(newRoleSeedCmd())

	return cmd
}

// ---------- role list ----------

func newRoleListCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List role tiers, most senior first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRoleList(cmd.Context(), jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runRoleList(ctx context.Context, jsonOutput bool) error {
	if ctx == nil {
		ctx = context.Background()
	}
	auth, store, err := openAuthService(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	roles := auth.Roles()
	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(roles)
	}

	fmt.Printf("%-5s %-22s %-6s %s\n", "RANK", "NAME", "PERMS", "ALLOWED THROUGH")
	fmt.Printf("%-5s %-22s %-6s %s\n", "----", "----", "-----", "---------------")
	for _, r := range roles {
		fmt.Printf("%-5d %-22s %-6d %s\n", r.Rank, r.Name, len(auth.Hierarchy().Permissions(r.Name)), strings.Join(r.AllowedRoles, ", "))
	}
	return nil
}

// ---------- role seed ----------

func newRoleSeedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Insert configured roles missing from the store",
		Long:  "Insert the roles from auth.roles_file (or the built-in hierarchy) that the store does not have yet. Existing roles are left untouched.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			store, err := openStore()
			if err != nil {
				return fmt.Errorf("open store: %w", err)
			}
			defer store.Close()

			h, inserted, err := loadHierarchy(ctx, store)
			if err != nil {
				return err
			}
			fmt.Printf("Seeded %d role(s); %d role(s) in store\n", inserted, len(h.Roles()))
			return nil
		},
	}
}
