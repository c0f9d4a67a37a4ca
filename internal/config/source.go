package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// Source reads the configuration and logging documents for one LaunchMode.
type Source interface {
	Mode() LaunchMode
	// ConfigFile returns the contents of config/<file> and where it was read from.
	ConfigFile(file string) (data []byte, location string, err error)
	// LoggingDocument returns the document referenced by logging.log_config.
	LoggingDocument(ref string) (data []byte, location string, err error)
}

// DirectorySource reads from the filesystem.
type DirectorySource struct {
	// Root is the directory containing config/.
	Root string
	// WorkDir anchors relative logging document references.
	WorkDir string
}

// NewDirectorySource returns a source rooted at root, resolving logging
// documents against the current working directory.
func NewDirectorySource(root string) (*DirectorySource, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("get working directory: %w", err)
	}
	return &DirectorySource{Root: root, WorkDir: wd}, nil
}

func (s *DirectorySource) Mode() LaunchMode {
	return DirectoryMode
}

func (s *DirectorySource) ConfigFile(file string) ([]byte, string, error) {
	p, err := filepath.Abs(filepath.Join(s.Root, "config", file))
	if err != nil {
		return nil, "", fmt.Errorf("resolve config path: %w", err)
	}

	info, err := os.Stat(p)
	if err != nil || !info.Mode().IsRegular() {
		return nil, p, fmt.Errorf("%w: %s", ErrConfigNotFound, p)
	}

	data, err := os.ReadFile(p)
	if err != nil {
		return nil, p, fmt.Errorf("read config file %s: %w", p, err)
	}
	return data, p, nil
}

// LoggingDocument resolves relative references against WorkDir, not Root.
func (s *DirectorySource) LoggingDocument(ref string) ([]byte, string, error) {
	p := ref
	if !filepath.IsAbs(p) {
		p = filepath.Join(s.WorkDir, p)
	}

	data, err := os.ReadFile(p)
	if err != nil {
		return nil, p, fmt.Errorf("%w: %v", ErrLoggingDocument, err)
	}
	return data, p, nil
}

// BundleSource reads from an embedded resource bundle.
type BundleSource struct {
	FS fs.FS
}

func (s BundleSource) Mode() LaunchMode {
	return ArchiveMode
}

func (s BundleSource) ConfigFile(file string) ([]byte, string, error) {
	p := path.Join("config", file)
	data, err := fs.ReadFile(s.FS, p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, bundleLocation(p), fmt.Errorf("%w: %s", ErrConfigNotFound, bundleLocation(p))
	}
	if err != nil {
		return nil, bundleLocation(p), fmt.Errorf("read bundled config %s: %w", p, err)
	}
	return data, bundleLocation(p), nil
}

func (s BundleSource) LoggingDocument(ref string) ([]byte, string, error) {
	p := path.Clean(strings.TrimPrefix(filepath.ToSlash(ref), "/"))
	data, err := fs.ReadFile(s.FS, p)
	if err != nil {
		return nil, bundleLocation(p), fmt.Errorf("%w: %v", ErrLoggingDocument, err)
	}
	return data, bundleLocation(p), nil
}

func bundleLocation(p string) string {
	return "bundle:" + p
}
