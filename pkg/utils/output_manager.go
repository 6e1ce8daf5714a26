package utils

import (
	"fmt"
	"os"
	"path/filepath"
)

// OutputManager resolves where run output files live
type OutputManager struct {
	BaseOutputDir string
}

// NewOutputManager creates a new output manager
func NewOutputManager(baseOutputDir string) *OutputManager {
	return &OutputManager{
		BaseOutputDir: baseOutputDir,
	}
}

// GetOutputFilePath returns the path for fileName. Absolute names are kept
// as given; relative ones are placed under the base directory, which is
// created if needed.
func (om *OutputManager) GetOutputFilePath(fileName string) (string, error) {
	if filepath.IsAbs(fileName) || om.BaseOutputDir == "" {
		return filepath.Clean(fileName), nil
	}

	if err := om.EnsureOutputDirExists(); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}
	return filepath.Join(om.BaseOutputDir, filepath.Clean(fileName)), nil
}

// GetFileSize returns the size of a file in bytes
func (om *OutputManager) GetFileSize(filePath string) (int64, error) {
	fileInfo, err := os.Stat(filePath)
	if err != nil {
		return 0, err
	}
	if fileInfo.IsDir() {
		return 0, fmt.Errorf("%s is a directory", filePath)
	}
	return fileInfo.Size(), nil
}

// EnsureOutputDirExists ensures the base output directory exists
func (om *OutputManager) EnsureOutputDirExists() error {
	return os.MkdirAll(om.BaseOutputDir, 0755)
}
