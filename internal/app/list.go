package app

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/appregistry/internal/output"
	"github.com/blackwell-systems/appregistry/internal/registry"
)

var (
	listSort    string
	listPackage string

	listCmd = &cobra.Command{
		Use:   "list",
		Short: "List registered applications",
		Long: `List every application in the registry with its title, icon and launch
count. Titles and icons come from the icon cache, which is seeded from the
stored icons and falls back to the provider on a miss.`,
		Example: `  # All applications, oldest record first
  appregistry list

  # Most launched first
  appregistry list --sort launches

  # One package as JSON
  appregistry list --package com.example --format json`,
		Args: cobra.NoArgs,
		RunE: runList,
	}
)

func init() {
	listCmd.Flags().StringVar(&listSort, "sort", "id", "sort order: id or launches")
	listCmd.Flags().StringVar(&listPackage, "package", "", "only list applications of this package")
}

// viewJSON is the machine-readable form of a registry view.
type viewJSON struct {
	ID           int64  `json:"id"`
	Identity     string `json:"identity"`
	Title        string `json:"title"`
	IconBytes    int    `json:"icon_bytes"`
	IconFallback bool   `json:"icon_fallback"`
	LaunchCount  int64  `json:"launch_count"`
}

func runList(cmd *cobra.Command, args []string) error {
	if listSort != "id" && listSort != "launches" {
		return fmt.Errorf("invalid --sort %q: must be id or launches", listSort)
	}

	e, err := openEnv()
	if err != nil {
		return err
	}
	defer e.Close()

	views, err := e.engine.ListAll(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to list registry: %w", err)
	}
	views = filterPackage(views, listPackage)
	if listSort == "launches" {
		registry.SortByLaunches(views)
	}

	if outputFormat == formatJSON {
		out := make([]viewJSON, 0, len(views))
		for _, v := range views {
			out = append(out, viewJSON{
				ID:           v.ID,
				Identity:     v.Identity.String(),
				Title:        v.Title,
				IconBytes:    len(v.Icon),
				IconFallback: v.IconFallback,
				LaunchCount:  v.LaunchCount,
			})
		}
		return writeJSON(cmd.OutOrStdout(), out)
	}

	fmt.Fprint(cmd.OutOrStdout(), output.RenderRegistryTable(views))
	return nil
}

func filterPackage(views []registry.View, pkg string) []registry.View {
	if pkg == "" {
		return views
	}
	filtered := views[:0]
	for _, v := range views {
		if v.Identity.Package == pkg {
			filtered = append(filtered, v)
		}
	}
	return filtered
}
