package notebook

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/vk/cellgridgo/internal/cell"
	"github.com/vk/cellgridgo/internal/ctxlog"
)

// BlockName is the top-level block type wrapping one cell in a notebook file.
const BlockName = "cell"

// Source is one cell sliced out of a notebook file, in document order.
type Source struct {
	ID     cell.ID
	File   string
	Source []byte
}

// Notebook is the ordered list of cell sources across the loaded files.
type Notebook struct {
	Cells []Source
}

// Load reads every .hcl file under the given paths and slices out its cell
// blocks. Files are visited in path order, directories lexically, and cells
// keep their in-file order, so the resulting sequence is the notebook's
// document order. Duplicate cell ids across files are an error.
func Load(ctx context.Context, paths ...string) (*Notebook, error) {
	logger := ctxlog.FromContext(ctx)

	files, err := findNotebookFiles(paths)
	if err != nil {
		return nil, err
	}
	logger.Debug("Discovered notebook files.", "count", len(files))

	nb := &Notebook{}
	parser := hclparse.NewParser()
	seen := make(map[cell.ID]string)

	for _, file := range files {
		src, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("reading notebook file %s: %w", file, err)
		}
		cells, err := sliceCells(parser, src, file)
		if err != nil {
			return nil, err
		}
		for _, c := range cells {
			if prev, dup := seen[c.ID]; dup {
				return nil, fmt.Errorf("cell %q defined in both %s and %s", c.ID, prev, file)
			}
			seen[c.ID] = file
			nb.Cells = append(nb.Cells, c)
		}
		logger.Debug("Loaded notebook file.", "file", file, "cells", len(cells))
	}
	return nb, nil
}

// sliceCells parses one file and cuts each cell block's body text out of the
// raw source, so the kernel re-parses exactly what the author wrote between
// the braces.
func sliceCells(parser *hclparse.Parser, src []byte, filename string) ([]Source, error) {
	hclFile, diags := parser.ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse notebook file %s: %w", filename, diags)
	}
	body, ok := hclFile.Body.(*hclsyntax.Body)
	if !ok {
		return nil, fmt.Errorf("notebook file %s: unexpected body type %T", filename, hclFile.Body)
	}

	var out []Source
	for _, block := range body.Blocks {
		if block.Type != BlockName {
			return nil, fmt.Errorf("notebook file %s: unsupported block %q at %s",
				filename, block.Type, block.TypeRange.String())
		}
		if len(block.Labels) != 1 {
			return nil, fmt.Errorf("notebook file %s: cell block at %s needs exactly one id label",
				filename, block.TypeRange.String())
		}
		out = append(out, Source{
			ID:     cell.ID(block.Labels[0]),
			File:   filename,
			Source: bodyText(src, block),
		})
	}
	if len(body.Attributes) > 0 {
		var first *hclsyntax.Attribute
		for _, attr := range body.Attributes {
			if first == nil || attr.SrcRange.Start.Byte < first.SrcRange.Start.Byte {
				first = attr
			}
		}
		return nil, fmt.Errorf("notebook file %s: attribute %q at %s is outside any cell block",
			filename, first.Name, first.SrcRange.String())
	}
	return out, nil
}

// bodyText returns the raw bytes between a block's braces.
func bodyText(src []byte, block *hclsyntax.Block) []byte {
	start := block.OpenBraceRange.End.Byte
	end := block.CloseBraceRange.Start.Byte
	if start < 0 || end > len(src) || start > end {
		return nil
	}
	return append([]byte(nil), src[start:end]...)
}

// findNotebookFiles walks all given paths and returns a flat, deduplicated
// list of .hcl files.
func findNotebookFiles(paths []string) ([]string, error) {
	var allFiles []string
	seen := make(map[string]struct{})

	add := func(p string) {
		if _, wasSeen := seen[p]; !wasSeen {
			allFiles = append(allFiles, p)
			seen[p] = struct{}{}
		}
	}

	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return nil, fmt.Errorf("error accessing path %s: %w", path, err)
		}
		if info.IsDir() {
			err := filepath.Walk(path, func(p string, info os.FileInfo, err error) error {
				if err != nil {
					return err
				}
				if !info.IsDir() && filepath.Ext(p) == ".hcl" {
					add(p)
				}
				return nil
			})
			if err != nil {
				return nil, err
			}
		} else if filepath.Ext(path) == ".hcl" {
			add(path)
		}
	}
	return allFiles, nil
}
