package ckan

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"os"

	"gopkg.in/yaml.v3"
)

const (
	DefaultBaseURL   = "https://ckan0.cf.opendata.inter.prod-toronto.ca/api/3/action"
	DefaultPackageID = "21c83b32-d5a8-4106-a54f-010dbe49f6f2"
	DefaultPageSize  = 5000
	DefaultTimeout   = 30
)

// DefaultSource describes the City of Toronto daily shelter occupancy dataset.
func DefaultSource() *Source {
	return &Source{
		BaseURL:   DefaultBaseURL,
		PackageID: DefaultPackageID,
		Settings: SourceSettings{
			PageSize: DefaultPageSize,
			Timeout:  DefaultTimeout,
		},
	}
}

// LoadSource reads the source file at path. A missing file yields DefaultSource.
func LoadSource(path string) (*Source, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		slog.Debug("Source file not found, using defaults", "path", path)
		return DefaultSource(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	var source Source
	if err := yaml.Unmarshal(data, &source); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if source.BaseURL == "" {
		source.BaseURL = DefaultBaseURL
	}
	if source.Settings.PageSize == 0 {
		source.Settings.PageSize = DefaultPageSize
	}
	if source.Settings.Timeout == 0 {
		source.Settings.Timeout = DefaultTimeout
	}

	if err := validateSource(&source); err != nil {
		return nil, fmt.Errorf("invalid source %s: %w", path, err)
	}

	slog.Debug("Source loaded", "base_url", source.BaseURL, "package_id", source.PackageID, "resource_id", source.ResourceID)

	return &source, nil
}

func validateSource(source *Source) error {
	if _, err := url.ParseRequestURI(source.BaseURL); err != nil {
		return fmt.Errorf("base URL is invalid: %w", err)
	}

	if source.PackageID == "" && source.ResourceID == "" {
		return fmt.Errorf("package id or resource id is required")
	}

	nonNegativeFields := map[string]int{
		"page size": source.Settings.PageSize,
		"timeout":   source.Settings.Timeout,
	}

	for fieldName, fieldValue := range nonNegativeFields {
		if fieldValue < 0 {
			return fmt.Errorf("%s must be non-negative", fieldName)
		}
	}

	return nil
}
