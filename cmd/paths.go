package main

import (
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/pathlight-hq/pathlight/internal/model"
)

var pathsCmd = &cobra.Command{
	Use:   "paths",
	Short: "Manage the strategic path catalog",
}

// pathCatalog is the YAML seed file format. Seeding only touches descriptive
// fields; published metrics belong to the recalculator.
type pathCatalog struct {
	Paths []struct {
		Slug    string `yaml:"slug"`
		Name    string `yaml:"name"`
		Summary string `yaml:"summary"`
		Active  *bool  `yaml:"active"`
	} `yaml:"paths"`
}

var pathsSeedFile string

var pathsSeedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load or update the path catalog from a YAML file",
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, err := os.ReadFile(pathsSeedFile)
		if err != nil {
			return eris.Wrap(err, "read catalog file")
		}
		var catalog pathCatalog
		if err := yaml.Unmarshal(raw, &catalog); err != nil {
			return eris.Wrap(err, "parse catalog file")
		}
		if len(catalog.Paths) == 0 {
			return eris.New("catalog file contains no paths")
		}

		st, err := initStore(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close()

		now := time.Now()
		for _, entry := range catalog.Paths {
			if entry.Slug == "" || entry.Name == "" {
				return eris.Errorf("catalog entry missing slug or name: %+v", entry)
			}
			active := true
			if entry.Active != nil {
				active = *entry.Active
			}
			p := model.StrategicPath{
				ID:        uuid.NewString(),
				Slug:      entry.Slug,
				Name:      entry.Name,
				Summary:   entry.Summary,
				Active:    active,
				CreatedAt: now,
				UpdatedAt: now,
			}
			if err := st.UpsertPath(cmd.Context(), p); err != nil {
				return eris.Wrapf(err, "seed path %s", entry.Slug)
			}
		}

		zap.L().Info("catalog seeded", zap.Int("paths", len(catalog.Paths)))
		return nil
	},
}

var pathsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List active strategic paths with their published metrics",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := initStore(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close()

		paths, err := st.ListActivePaths(cmd.Context())
		if err != nil {
			return err
		}
		return printJSON(paths)
	},
}

func init() {
	pathsSeedCmd.Flags().StringVar(&pathsSeedFile, "file", "paths.yaml", "catalog YAML file")
	pathsCmd.AddCommand(pathsSeedCmd, pathsListCmd)
	rootCmd.AddCommand(pathsCmd)
}
