package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"species-catalog/internal/repository"
	"species-catalog/internal/service"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

var seedCmd = &cobra.Command{
	Use:   "seed <file.json|file.yaml>",
	Short: "Load species from a file through the bulk insert path",
	Long: `Reads a document of the form {"items": [...]} from a JSON or YAML
file and inserts it with the same validation and transaction as
POST /api/species/bulk. Nothing is inserted if any item is invalid.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := setup()
		if err != nil {
			return err
		}
		defer log.Sync()

		body, err := readSeedFile(args[0])
		if err != nil {
			return err
		}

		dbService, err := openDatabase(cfg, log)
		if err != nil {
			return err
		}
		defer dbService.Close()

		svc := service.NewSpeciesService(repository.NewSpeciesRepository(dbService.DB()))
		result, err := seedCatalog(cmd.Context(), svc, body)
		if err != nil {
			log.Error("Seed failed", zap.String("file", args[0]), zap.Error(err))
			return err
		}

		log.Info("Seed completed",
			zap.String("file", args[0]),
			zap.String("batch_id", result.BatchID.String()),
			zap.Int("inserted", result.Inserted),
		)
		return nil
	},
}

// readSeedFile returns the seed document as JSON. YAML files are converted.
func readSeedFile(path string) ([]byte, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		var doc interface{}
		if err := yaml.Unmarshal(raw, &doc); err != nil {
			return nil, fmt.Errorf("failed to parse seed file: %w", err)
		}
		body, err := json.Marshal(doc)
		if err != nil {
			return nil, fmt.Errorf("failed to convert seed file: %w", err)
		}
		return body, nil
	default:
		return raw, nil
	}
}

func seedCatalog(ctx context.Context, svc service.SpeciesService, body []byte) (*service.BulkResult, error) {
	items, err := service.DecodeBulkRequest(body)
	if err != nil {
		return nil, err
	}
	return svc.BulkCreate(ctx, items)
}
