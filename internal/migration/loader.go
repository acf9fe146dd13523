package migration

import (
	"fmt"
	"os"

	json "github.com/goccy/go-json"
	"go.uber.org/zap"
)

// LoadExport reads a legacy export file. A missing file is treated as an
// empty export so a fresh deployment can run the same startup path; a
// malformed file is an error.
func LoadExport(path string, logger *zap.Logger) (*Export, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Warn("legacy-export-missing", zap.String("path", path))
			return &Export{}, nil
		}
		return nil, fmt.Errorf("read legacy export: %w", err)
	}

	var export Export
	err = json.Unmarshal(data, &export)
	if err != nil {
		return nil, fmt.Errorf("parse legacy export: %w", err)
	}

	return &export, nil
}
