package main

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/metalagman/ttdr/internal/app"
	"github.com/metalagman/ttdr/internal/logging"
	"github.com/metalagman/ttdr/internal/vector"
	"github.com/spf13/cobra"
)

var ingestExtensions = map[string]bool{
	".md":       true,
	".markdown": true,
	".txt":      true,
}

func ingestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest <path>...",
		Short: "Import documents into the vector store",
		Long:  "Split Markdown and text files into chunks and import them into the configured Weaviate class. Directories are walked recursively.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadGlobalConfig()
			if err != nil {
				return err
			}
			docs, err := collectDocuments(args)
			if err != nil {
				return err
			}
			if len(docs) == 0 {
				return fmt.Errorf("no .md, .markdown or .txt files found")
			}

			a, err := app.NewVector(cmd.Context(), cfg, logging.Component("app"))
			if err != nil {
				return err
			}
			defer func() { _ = a.Close(cmd.Context()) }()

			if err := a.Vector.EnsureClass(cmd.Context()); err != nil {
				return err
			}
			splitter := vector.NewSplitter(cfg.Vector.ChunkSize, cfg.Vector.Overlap)
			stored, err := a.Vector.Ingest(cmd.Context(), splitter, docs)
			if err != nil {
				return fmt.Errorf("ingest: %w (stored %d chunks)", err, stored)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "ingested %d documents (%d chunks)\n", len(docs), stored)
			return nil
		},
	}
	return cmd
}

func collectDocuments(paths []string) ([]vector.Document, error) {
	var docs []vector.Document
	add := func(path string) error {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		if strings.TrimSpace(string(data)) == "" {
			return nil
		}
		docs = append(docs, vector.Document{Source: path, Content: string(data)})
		return nil
	}
	for _, root := range paths {
		info, err := os.Stat(root)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			if err := add(root); err != nil {
				return nil, err
			}
			continue
		}
		err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				if path != root && strings.HasPrefix(d.Name(), ".") {
					return filepath.SkipDir
				}
				return nil
			}
			if !ingestExtensions[strings.ToLower(filepath.Ext(path))] {
				return nil
			}
			return add(path)
		})
		if err != nil {
			return nil, err
		}
	}
	return docs, nil
}
