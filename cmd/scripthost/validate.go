// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/holomush/scripthost/internal/plugin"
)

// CodeValidationFailed marks a validate run that found a bad manifest.
const CodeValidationFailed = "VALIDATION_FAILED"

// NewValidateCmd creates the validate subcommand.
func NewValidateCmd(app *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "validate [PATH...]",
		Short: "Check plugin manifests",
		Long: `Check plugin manifests against the manifest schema, the version
rules and the host API version, and confirm each entry script exists.

A PATH is a plugin.yaml file, a plugin directory, or a directory of
plugin directories. With no PATH the configured plugins directory is
checked.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				if app.cfg.Plugins.Dir == "" {
					return oops.Code("CONFIG_INVALID").Errorf("no PATH given and plugins.dir is not configured")
				}
				args = []string{app.cfg.Plugins.Dir}
			}
			return validatePaths(cmd.OutOrStdout(), args)
		},
	}
}

// validatePaths checks every manifest under paths and prints one line per
// manifest.
func validatePaths(out io.Writer, paths []string) error {
	var manifests []string
	for _, p := range paths {
		found, err := manifestFiles(p)
		if err != nil {
			return err
		}
		manifests = append(manifests, found...)
	}
	if len(manifests) == 0 {
		return oops.Code(CodeValidationFailed).With("paths", paths).Errorf("no %s found", plugin.ManifestFile)
	}

	failed := 0
	for _, path := range manifests {
		m, err := validateManifest(path)
		if err != nil {
			failed++
			_, _ = fmt.Fprintf(out, "FAIL %s: %s\n", path, err)
			continue
		}
		_, _ = fmt.Fprintf(out, "ok   %s %s (%s)\n", m.Name, m.Version, path)
	}

	if failed > 0 {
		return oops.Code(CodeValidationFailed).With("failed", failed).
			Errorf("%d of %d manifests are invalid", failed, len(manifests))
	}
	return nil
}

// manifestFiles resolves a PATH argument to manifest files, sorted.
func manifestFiles(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, oops.Code(CodeValidationFailed).With("path", path).Wrap(err)
	}
	if !info.IsDir() {
		return []string{path}, nil
	}

	direct := filepath.Join(path, plugin.ManifestFile)
	if _, err := os.Stat(direct); err == nil {
		return []string{direct}, nil
	}

	found, err := filepath.Glob(filepath.Join(path, "*", plugin.ManifestFile))
	if err != nil {
		return nil, oops.Code(CodeValidationFailed).With("path", path).Wrap(err)
	}
	sort.Strings(found)
	return found, nil
}

func validateManifest(path string) (*plugin.Manifest, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from the command line
	if err != nil {
		return nil, err
	}
	if err := plugin.ValidateSchema(data); err != nil {
		return nil, fmt.Errorf("%s", plugin.FormatSchemaError(err))
	}
	m, err := plugin.ParseManifest(data)
	if err != nil {
		return nil, err
	}
	entry := m.EntryPath(filepath.Dir(path))
	if _, err := os.Stat(entry); err != nil {
		return nil, fmt.Errorf("entry %s: %w", m.Entry, err)
	}
	return m, nil
}
