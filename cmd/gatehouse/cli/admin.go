package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/gatehouse-cms/gatehouse/internal/rbac"
	"github.com/gatehouse-cms/gatehouse/internal/service"
)

func newAdminCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Manage admin accounts",
		Long:  "Create and list back-office accounts, toggle their active state, clear lockouts and assign roles.",
	}

	cmd.AddCommand(newAdminCreateCmd())
	cmd.AddCommand(newAdminListCmd())
	cmd.AddCommand(newAdminSetActiveCmd("activate", true))
	cmd.AddCommand(newAdminSetActiveCmd("deactivate", false))
	cmd.AddCommand(newAdminUnlockCmd())
	cmd.AddCommand(newAdminSetRoleCmd())

	return cmd
}

// ---------- admin create ----------

func newAdminCreateCmd() *cobra.Command {
	var in service.NewAdmin

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new admin account",
		Example: `  gatehouse admin create --email chief@example.com --role "Editor-in-Chief"
  gatehouse admin create --email root@example.com  # Master Admin, prompts for password`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAdminCreate(cmd.Context(), in)
		},
	}

	cmd.Flags().StringVar(&in.Email, "email", "", "Admin email address (required)")
	cmd.Flags().StringVar(&in.Password, "password", "", "Admin password (prompted if omitted)")
	cmd.Flags().StringVar(&in.Name, "name", "", "Admin display name")
	cmd.Flags().StringVar(&in.Role, "role", rbac.MasterAdmin, "Role to assign")
	cmd.Flags().StringVar(&in.Department, "department", "", "Department")
	cmd.Flags().StringSliceVar(&in.Permissions, "permission", nil, "Individual permission beyond the role (repeatable)")
	cmd.MarkFlagRequired("email")

	return cmd
}

func runAdminCreate(ctx context.Context, in service.NewAdmin) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if in.Password == "" {
		pw, err := promptPassword()
		if err != nil {
			return err
		}
		in.Password = pw
	}

	auth, store, err := openAuthService(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	admin, err := auth.CreateAdmin(ctx, in)
	if err != nil {
		return err
	}
	fmt.Printf("Created admin %q (id=%d, role=%s)\n", admin.Email, admin.ID, admin.RoleName)
	return nil
}

func promptPassword() (string, error) {
	fmt.Print("Password: ")
	pwBytes, err := term.ReadPassword(int(os.Stdin.Fd()))
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	fmt.Println()

	fmt.Print("Confirm password: ")
	confirmBytes, err := term.ReadPassword(int(os.Stdin.Fd()))
	if err != nil {
		return "", fmt.Errorf("failed to read confirmation: %w", err)
	}
	fmt.Println()

	if string(pwBytes) != string(confirmBytes) {
		return "", fmt.Errorf("passwords do not match")
	}
	return string(pwBytes), nil
}

// ---------- admin list ----------

func newAdminListCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List all admin accounts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAdminList(cmd.Context(), jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runAdminList(ctx context.Context, jsonOutput bool) error {
	if ctx == nil {
		ctx = context.Background()
	}
	auth, store, err := openAuthService(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	admins, err := auth.ListAdmins(ctx)
	if err != nil {
		return err
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(admins)
	}

	if len(admins) == 0 {
		fmt.Println("No admin accounts. Use 'gatehouse admin create' to create one.")
		return nil
	}

	fmt.Printf("%-30s %-22s %-22s %-7s %-4s\n", "EMAIL", "NAME", "ROLE", "ACTIVE", "MFA")
	fmt.Printf("%-30s %-22s %-22s %-7s %-4s\n", "-----", "----", "----", "------", "---")
	for _, a := range admins {
		fmt.Printf("%-30s %-22s %-22s %-7s %-4s\n", a.Email, a.Name, a.Role, yesNo(a.IsActive), yesNo(a.MFAEnabled))
	}
	return nil
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

// ---------- admin activate / deactivate ----------

func newAdminSetActiveCmd(use string, active bool) *cobra.Command {
	short := "Reactivate an admin account"
	if !active {
		short = "Deactivate an admin account; its sessions stop working at once"
	}
	return &cobra.Command{
		Use:   use + " <email>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAuth(cmd.Context(), func(ctx context.Context, auth *service.AuthService) error {
				if err := auth.SetActive(ctx, args[0], active); err != nil {
					return err
				}
				fmt.Printf("Admin %q %sd\n", args[0], use)
				return nil
			})
		},
	}
}

// ---------- admin unlock ----------

func newAdminUnlockCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "unlock <email>",
		Short: "Clear a lockout and the failed attempt counter",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAuth(cmd.Context(), func(ctx context.Context, auth *service.AuthService) error {
				if err := auth.Unlock(ctx, args[0]); err != nil {
					return err
				}
				fmt.Printf("Admin %q unlocked\n", args[0])
				return nil
			})
		},
	}
}

// ---------- admin set-role ----------

func newAdminSetRoleCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "set-role <email> <role>",
		Short:   "Assign a role to an admin",
		Example: `  gatehouse admin set-role writer@example.com "Senior Writers"`,
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAuth(cmd.Context(), func(ctx context.Context, auth *service.AuthService) error {
				if err := auth.AssignRole(ctx, args[0], args[1]); err != nil {
					return err
				}
				fmt.Printf("Admin %q now has role %q\n", args[0], args[1])
				return nil
			})
		},
	}
}

// withAuth opens the store for a single operator action.
func withAuth(ctx context.Context, fn func(context.Context, *service.AuthService) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	auth, store, err := openAuthService(ctx)
	if err != nil {
		return err
	}
	defer store.Close()
	return fn(ctx, auth)
}
