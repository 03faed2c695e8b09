package recipe

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

var (
	ErrRecipeNotFound = errors.New("recipe file not found")
	ErrTagNotFound    = errors.New("tag not found in recipe")
	ErrEmptyValue     = errors.New("tag value is empty")
)

// tagLineRegex matches preamble tags like "Version:    1.2.0"
var tagLineRegex = regexp.MustCompile(`^(\s*)([A-Za-z][A-Za-z0-9]*)(\s*:\s*)(.*?)(\s*)$`)

// macroDefRegex matches %global and %define lines
var macroDefRegex = regexp.MustCompile(`^\s*%(global|define)\s+([A-Za-z_][A-Za-z0-9_]*)\s+(.*?)\s*$`)

// macroRefRegex matches %{name}, %{?name} and %name references
var macroRefRegex = regexp.MustCompile(`%\{(\??)([A-Za-z_][A-Za-z0-9_]*)\}|%([A-Za-z_][A-Za-z0-9_]*)`)

// bareMacroRegex matches a value that is nothing but a single macro reference
var bareMacroRegex = regexp.MustCompile(`^%\{?([A-Za-z_][A-Za-z0-9_]*)\}?$`)

const maxExpansionDepth = 10

// SpecFile is an RPM spec file held in memory. Edits touch only the value
// part of the affected line so formatting and comments survive a round trip.
type SpecFile struct {
	Path  string
	lines []string
}

// FileName returns the recipe file name for a package
func FileName(pkg string) string {
	return pkg + ".spec"
}

// Open reads and parses a spec file from disk
func Open(path string) (*SpecFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrRecipeNotFound, path)
		}
		return nil, fmt.Errorf("failed to read recipe: %w", err)
	}
	s := Parse(string(data))
	s.Path = path
	return s, nil
}

// Parse parses spec file content
func Parse(content string) *SpecFile {
	return &SpecFile{lines: strings.Split(content, "\n")}
}

// String returns the full file content
func (s *SpecFile) String() string {
	return strings.Join(s.lines, "\n")
}

// Save writes the spec file back to its path
func (s *SpecFile) Save() error {
	if s.Path == "" {
		return errors.New("recipe has no path")
	}
	info, err := os.Stat(s.Path)
	mode := os.FileMode(0644)
	if err == nil {
		mode = info.Mode().Perm()
	}
	return os.WriteFile(s.Path, []byte(s.String()), mode)
}

// findTag returns the line index and submatches of the first preamble tag
// with the given name. The preamble ends at the first section marker.
func (s *SpecFile) findTag(name string) (int, []string) {
	for i, line := range s.lines {
		trimmed := strings.TrimSpace(line)
		if isSectionMarker(trimmed) {
			break
		}
		m := tagLineRegex.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		if strings.EqualFold(m[2], name) {
			return i, m
		}
	}
	return -1, nil
}

func isSectionMarker(line string) bool {
	for _, section := range []string{"%description", "%prep", "%build", "%install", "%files", "%changelog", "%package"} {
		if line == section || strings.HasPrefix(line, section+" ") {
			return true
		}
	}
	return false
}

// Tag returns the raw, unexpanded value of a preamble tag
func (s *SpecFile) Tag(name string) (string, error) {
	_, m := s.findTag(name)
	if m == nil {
		return "", fmt.Errorf("%w: %s", ErrTagNotFound, name)
	}
	return m[4], nil
}

// Macros returns macros defined with %global or %define, last definition wins
func (s *SpecFile) Macros() map[string]string {
	macros := make(map[string]string)
	for _, line := range s.lines {
		if m := macroDefRegex.FindStringSubmatch(line); m != nil {
			macros[m[2]] = m[3]
		}
	}
	return macros
}

// Expand substitutes macros defined in this file. Undefined conditional
// macros (%{?name}) expand to nothing, other undefined macros stay as they are.
func (s *SpecFile) Expand(value string) string {
	macros := s.Macros()
	for i := 0; i < maxExpansionDepth && strings.Contains(value, "%"); i++ {
		next := macroRefRegex.ReplaceAllStringFunc(value, func(ref string) string {
			m := macroRefRegex.FindStringSubmatch(ref)
			name, conditional := m[2], m[1] == "?"
			if name == "" {
				name = m[3]
			}
			if v, ok := macros[name]; ok {
				return v
			}
			if conditional {
				return ""
			}
			return ref
		})
		if next == value {
			break
		}
		value = next
	}
	return value
}

// ExpandedTag returns the value of a tag with macros expanded
func (s *SpecFile) ExpandedTag(name string) (string, error) {
	raw, err := s.Tag(name)
	if err != nil {
		return "", err
	}
	value := strings.TrimSpace(s.Expand(raw))
	if value == "" {
		return "", fmt.Errorf("%w: %s", ErrEmptyValue, name)
	}
	return value, nil
}

// SetTag replaces the value of a preamble tag. When the tag value is a bare
// reference to a macro defined in this file, the macro definition is updated
// instead so the indirection is kept.
func (s *SpecFile) SetTag(name, value string) error {
	idx, m := s.findTag(name)
	if m == nil {
		return fmt.Errorf("%w: %s", ErrTagNotFound, name)
	}
	if value == "" {
		return fmt.Errorf("%w: %s", ErrEmptyValue, name)
	}

	if ref := bareMacroRegex.FindStringSubmatch(m[4]); ref != nil {
		if s.setMacro(ref[1], value) {
			return nil
		}
	}

	s.lines[idx] = m[1] + m[2] + m[3] + value + m[5]
	return nil
}

// setMacro rewrites the last definition of a macro, reporting whether one was found
func (s *SpecFile) setMacro(name, value string) bool {
	for i := len(s.lines) - 1; i >= 0; i-- {
		loc := macroDefRegex.FindStringSubmatchIndex(s.lines[i])
		if loc == nil || s.lines[i][loc[4]:loc[5]] != name {
			continue
		}
		s.lines[i] = s.lines[i][:loc[5]] + " " + value
		return true
	}
	return false
}

// Version returns the expanded Version tag
func (s *SpecFile) Version() (string, error) {
	return s.ExpandedTag("Version")
}

// SetVersion sets the Version tag
func (s *SpecFile) SetVersion(version string) error {
	return s.SetTag("Version", version)
}

// Editor reads and bumps the declared version of <pkg>.spec inside a checkout
type Editor struct{}

// NewEditor creates a recipe editor
func NewEditor() *Editor {
	return &Editor{}
}

// ReadVersion returns the expanded declared version of the package recipe in dir
func (e *Editor) ReadVersion(dir, pkg string) (string, error) {
	spec, err := Open(filepath.Join(dir, FileName(pkg)))
	if err != nil {
		return "", err
	}
	return spec.Version()
}

// WriteVersion sets the declared version and saves the recipe. It returns
// the recipe path relative to dir, ready to be staged.
func (e *Editor) WriteVersion(dir, pkg, version string) (string, error) {
	name := FileName(pkg)
	spec, err := Open(filepath.Join(dir, name))
	if err != nil {
		return "", err
	}
	if err := spec.SetVersion(version); err != nil {
		return "", err
	}
	if err := spec.Save(); err != nil {
		return "", fmt.Errorf("failed to save recipe: %w", err)
	}
	return name, nil
}
