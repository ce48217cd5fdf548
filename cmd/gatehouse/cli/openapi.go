package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/gatehouse-cms/gatehouse/internal/openapi"
	"github.com/gatehouse-cms/gatehouse/internal/rbac"
)

func newOpenAPICmd() *cobra.Command {
	var (
		baseURL    string
		outputFile string
	)

	cmd := &cobra.Command{
		Use:   "openapi",
		Short: "Generate the OpenAPI specification of the admin API",
		Example: `  gatehouse openapi
  gatehouse openapi --base-url https://cms.example.com -o admin-api.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOpenAPI(baseURL, outputFile)
		},
	}

	cmd.Flags().StringVar(&baseURL, "base-url", "http://localhost:8080", "Server URL written into the spec")
	cmd.Flags().StringVarP(&outputFile, "output", "o", "", "Write spec to file instead of stdout")

	return cmd
}

func runOpenAPI(baseURL, outputFile string) error {
	roles, err := loadRoles()
	if err != nil {
		return err
	}
	h, err := rbac.New(roles)
	if err != nil {
		return fmt.Errorf("invalid role definitions: %w", err)
	}

	doc := openapi.GenerateAdminSpec(openapi.Options{
		BaseURL:     baseURL,
		Version:     versionString(),
		MasterRoles: h.AllowedRoles(rbac.MasterAdmin),
	})
	jsonBytes, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal spec: %w", err)
	}

	if outputFile == "" {
		fmt.Println(string(jsonBytes))
		return nil
	}
	if err := os.WriteFile(outputFile, jsonBytes, 0644); err != nil {
		return fmt.Errorf("write spec: %w", err)
	}
	fmt.Printf("Wrote %s\n", outputFile)
	return nil
}
