package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/wonny/screener/internal/models"
	"github.com/wonny/screener/pkg/logger"
)

// modelsCmd represents the models command
var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "스코어링 모델 카탈로그",
}

var (
	modelsListCmd = &cobra.Command{
		Use:   "list",
		Short: "등록된 모델 목록",
		RunE:  listModels,
	}

	modelsValidateCmd = &cobra.Command{
		Use:   "validate [catalog.yaml]",
		Short: "카탈로그 검증 및 해시 출력",
		Args:  cobra.MaximumNArgs(1),
		RunE:  validateCatalog,
	}
)

func init() {
	rootCmd.AddCommand(modelsCmd)
	modelsCmd.AddCommand(modelsListCmd)
	modelsCmd.AddCommand(modelsValidateCmd)
}

// catalogPath 인자 > --catalog > 기본 경로
func catalogPath(args []string) string {
	switch {
	case len(args) > 0:
		return args[0]
	case modelsFile != "":
		return modelsFile
	default:
		return "config/models.yaml"
	}
}

func listModels(cmd *cobra.Command, args []string) error {
	reg, hash, err := loadRegistry(catalogPath(args), logger.NewNop())
	if err != nil {
		return err
	}

	if jsonOutput {
		type row struct {
			ID             string   `json:"id"`
			Category       string   `json:"category"`
			RequiredFields []string `json:"required_fields"`
		}
		rows := []row{}
		for _, m := range reg.List() {
			rows = append(rows, row{ID: m.ID(), Category: string(m.Category()), RequiredFields: m.RequiredFields()})
		}
		return PrintJSON(map[string]interface{}{"models": rows, "catalog_hash": hash})
	}

	PrintHeader("Scoring Models", fmt.Sprintf("Catalog hash : %s", hash))
	fmt.Printf("  %-18s %-12s %s\n", "ID", "Category", "Required fields")
	PrintSeparator()
	for _, m := range reg.List() {
		fmt.Printf("  %-18s %-12s %s\n", m.ID(), m.Category(), strings.Join(m.RequiredFields(), ","))
	}
	return nil
}

func validateCatalog(cmd *cobra.Command, args []string) error {
	path := catalogPath(args)
	cat, _, err := models.LoadCatalog(path)
	if err != nil {
		return err
	}
	hash, err := models.Hash(cat)
	if err != nil {
		return err
	}

	enabled := 0
	for _, spec := range cat.Models {
		if spec.IsEnabled() {
			enabled++
		}
	}
	fmt.Printf("✅ %s is valid (%d models, %d enabled)\n", path, len(cat.Models), enabled)
	fmt.Printf("   hash: %s\n", hash)
	return nil
}
