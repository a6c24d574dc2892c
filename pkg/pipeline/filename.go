package pipeline

import (
	"path/filepath"
	"strings"
)

// OutputName derives the path for a persisted product from the exposure it
// was produced from. Product file names follow the stem grammar
// <base>_<tag><ext>: the last "_"-delimited segment of the stem is the
// product type tag and is replaced by suffix, preserving the extension. A
// stem with no underscore gains "_<suffix>" instead, which keeps the
// transform idempotent.
//
// When outputDir is non-empty the input's directory component is discarded
// and the file is re-rooted under outputDir.
func OutputName(outputDir, inputPath, suffix string) string {
	dir, file := filepath.Split(inputPath)
	if outputDir != "" {
		dir = outputDir
	}

	ext := filepath.Ext(file)
	stem := strings.TrimSuffix(file, ext)
	if i := strings.LastIndex(stem, "_"); i >= 0 {
		stem = stem[:i]
	}

	return filepath.Join(dir, stem+"_"+suffix+ext)
}
