// Package metadata reads the per-package metadata file kept on each package branch.
package metadata

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

var (
	// ErrNotFound is returned when no metadata file exists in the checkout
	ErrNotFound = errors.New("package metadata not found")
	// ErrInvalid is returned when the metadata file cannot be parsed
	ErrInvalid = errors.New("package metadata is invalid")
)

// FileNames lists accepted metadata file names in lookup order
var FileNames = []string{".metadata.yaml", "metadata.yaml", ".metadata.yml", "metadata.yml"}

// Autoupdate identifies the package in the release-monitoring service
type Autoupdate struct {
	UpstreamPkgName string `yaml:"upstream_pkg_name"`
	// Backend is spelled the way existing metadata files spell it
	Backend string `yaml:"anytia_backend"`
}

// Maintainer is one person responsible for the package
type Maintainer struct {
	Nick  string `yaml:"nick,omitempty"`
	Email string `yaml:"email"`
}

// Metadata is the parsed metadata file of one package
type Metadata struct {
	PackageType string       `yaml:"package_type,omitempty"`
	Autoupdate  *Autoupdate  `yaml:"autoupdate,omitempty"`
	Maintainers []Maintainer `yaml:"maintainers"`
}

// HasAutoupdate reports whether an update source is configured
func (m *Metadata) HasAutoupdate() bool {
	return m.Autoupdate != nil &&
		strings.TrimSpace(m.Autoupdate.UpstreamPkgName) != "" &&
		strings.TrimSpace(m.Autoupdate.Backend) != ""
}

// MaintainerEmails returns non-empty, de-duplicated maintainer addresses
func (m *Metadata) MaintainerEmails() []string {
	seen := make(map[string]bool)
	var emails []string
	for _, maint := range m.Maintainers {
		email := strings.TrimSpace(maint.Email)
		if email == "" || seen[strings.ToLower(email)] {
			continue
		}
		seen[strings.ToLower(email)] = true
		emails = append(emails, email)
	}
	return emails
}

// Parse parses metadata file content
func Parse(data []byte) (*Metadata, error) {
	var m Metadata
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return &m, nil
}

// Store loads metadata from a package checkout
type Store struct{}

// NewStore creates a metadata store
func NewStore() *Store {
	return &Store{}
}

// Load reads the metadata file of the checkout rooted at dir
func (s *Store) Load(dir string) (*Metadata, error) {
	for _, name := range FileNames {
		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("failed to read %s: %w", name, err)
		}
		m, err := Parse(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		return m, nil
	}
	return nil, fmt.Errorf("%w in %s", ErrNotFound, dir)
}
