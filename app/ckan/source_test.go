package ckan

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadSourceMissingFileUsesDefaults(t *testing.T) {
	source, err := LoadSource(filepath.Join(t.TempDir(), "missing.yml"))
	if err != nil {
		t.Fatal(err)
	}

	if source.BaseURL != DefaultBaseURL {
		t.Errorf("Expected default base URL, got '%s'", source.BaseURL)
	}
	if source.PackageID != DefaultPackageID {
		t.Errorf("Expected default package id, got '%s'", source.PackageID)
	}
	if source.Settings.PageSize != DefaultPageSize || source.Settings.Timeout != DefaultTimeout {
		t.Errorf("Unexpected default settings: %+v", source.Settings)
	}
}

func TestLoadSourceAppliesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "source.yml")
	content := `
package_id: "daily-shelter-overnight-service-occupancy-capacity"

settings:
  timeout: 15
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	source, err := LoadSource(path)
	if err != nil {
		t.Fatal(err)
	}

	if source.BaseURL != DefaultBaseURL {
		t.Errorf("Expected default base URL, got '%s'", source.BaseURL)
	}
	if source.PackageID != "daily-shelter-overnight-service-occupancy-capacity" {
		t.Errorf("Unexpected package id '%s'", source.PackageID)
	}
	if source.Settings.Timeout != 15 {
		t.Errorf("Expected timeout 15, got %d", source.Settings.Timeout)
	}
	if source.Settings.PageSize != DefaultPageSize {
		t.Errorf("Expected default page size, got %d", source.Settings.PageSize)
	}
}

func TestLoadSourceRejectsInvalidConfig(t *testing.T) {
	cases := map[string]string{
		"no dataset":    "base_url: \"https://example.com/api/3/action\"\n",
		"negative page": "package_id: \"pkg\"\nsettings:\n  page_size: -1\n",
		"bad base url":  "base_url: \"not a url\"\npackage_id: \"pkg\"\n",
		"bad yaml":      "package_id: [\n",
	}

	for name, content := range cases {
		path := filepath.Join(t.TempDir(), "source.yml")
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}

		_, err := LoadSource(path)
		if err == nil {
			t.Errorf("%s: expected an error", name)
			continue
		}
		if name != "bad yaml" && !strings.Contains(err.Error(), "invalid source") {
			t.Errorf("%s: expected validation error, got %v", name, err)
		}
	}
}
