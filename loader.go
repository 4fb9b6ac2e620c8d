package manager

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"plugin"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/DataDog/reload-manager/internal"
	"github.com/DataDog/reload-manager/symtab"
)

// Library - Code mapped into the process. *plugin.Plugin implements it.
type Library interface {
	Lookup(name string) (plugin.Symbol, error)
}

// OpenFunc - Maps the artifact at path into the process
type OpenFunc func(path string) (Library, error)

// SymbolsFunc - Lists the symbols of an in-memory artifact
type SymbolsFunc func(data []byte) ([]symtab.Symbol, error)

// ModTimeFunc - Returns the last modification time of a file
type ModTimeFunc func(path string) (time.Time, error)

// OpenPlugin - Opens a Go plugin
func OpenPlugin(path string) (Library, error) {
	p, err := plugin.Open(path)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Artifact - Snapshot of the artifact a unit was loaded from
type Artifact struct {
	Path string
	// ModTime - Modification time observed right before the artifact was read
	ModTime time.Time
	Size    int64
}

// LoaderOptions - Options of a Loader
type LoaderOptions struct {
	// CacheDir - Directory receiving a private copy of every loaded artifact. The runtime refuses to open the same
	// file twice, so each generation is opened from its own copy. Defaults to $TMPDIR/reload-manager.
	CacheDir string

	// LoadRetry - Number of times reading and parsing the artifact is retried, while the build tool may still be
	// writing it
	LoadRetry uint

	// LoadRetryDelay - Initial delay between two read attempts, doubled after each failed attempt. Defaults to 50ms.
	LoadRetryDelay time.Duration

	// Open - Maps an artifact into the process. Defaults to OpenPlugin.
	Open OpenFunc

	// Symbols - Lists the symbols of an artifact. Defaults to symtab.Parse.
	Symbols SymbolsFunc

	// ModTime - Returns the modification time of the artifact
	ModTime ModTimeFunc

	// Registry - Registry retaining the loaded units. Defaults to DefaultRegistry.
	Registry *Registry

	// Logger - Defaults to the logrus standard logger
	Logger logrus.FieldLogger
}

// Loader - Loads successive generations of a unit
type Loader struct {
	options LoaderOptions
}

// NewLoader - Returns a loader, filling the unset options with their defaults
func NewLoader(options LoaderOptions) *Loader {
	if options.CacheDir == "" {
		options.CacheDir = filepath.Join(os.TempDir(), "reload-manager")
	}
	if options.LoadRetryDelay == 0 {
		options.LoadRetryDelay = 50 * time.Millisecond
	}
	if options.Open == nil {
		options.Open = OpenPlugin
	}
	if options.Symbols == nil {
		options.Symbols = symtab.Parse
	}
	if options.ModTime == nil {
		options.ModTime = internal.ModTime
	}
	if options.Registry == nil {
		options.Registry = DefaultRegistry
	}
	if options.Logger == nil {
		options.Logger = logrus.StandardLogger()
	}
	return &Loader{options: options}
}

// Registry - Returns the registry retaining the units of the loader
func (l *Loader) Registry() *Registry {
	return l.options.Registry
}

// Load - Reads the artifact at path, lists its symbols, and maps a private copy of it into the process. The unit
// is registered and retained for the lifetime of the process.
func (l *Loader) Load(ctx context.Context, path string) (*LoadedUnit, error) {
	var (
		artifact Artifact
		data     []byte
		symbols  []symtab.Symbol
	)
	err := internal.Retry(ctx, func() error {
		modTime, err := l.options.ModTime(path)
		if err != nil {
			return err
		}
		data, err = os.ReadFile(path)
		if err != nil {
			return err
		}
		symbols, err = l.options.Symbols(data)
		if err != nil {
			return fmt.Errorf("couldn't list symbols: %w", err)
		}
		artifact = Artifact{Path: path, ModTime: modTime, Size: int64(len(data))}
		return nil
	}, l.options.LoadRetry, l.options.LoadRetryDelay, 10*l.options.LoadRetryDelay)
	if err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}

	staged, err := l.stage(path, data)
	if err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}

	library, err := l.options.Open(staged)
	if err != nil {
		_ = os.Remove(staged)
		return nil, &LoadError{Path: path, Err: fmt.Errorf("couldn't open %s: %w", staged, err)}
	}

	unit := &LoadedUnit{
		Artifact:   artifact,
		StagedPath: staged,
		library:    library,
		symbols:    symbols,
		resolved:   make(map[string]EntryPoint),
	}
	l.options.Registry.register(unit)

	l.options.Logger.WithFields(logrus.Fields{
		"generation": unit.Generation,
		"artifact":   path,
		"staged":     staged,
		"symbols":    len(symbols),
	}).Info("unit loaded")
	return unit, nil
}

// stage - Writes data to a new file of the cache directory and returns its path
func (l *Loader) stage(path string, data []byte) (string, error) {
	if err := os.MkdirAll(l.options.CacheDir, 0o755); err != nil {
		return "", fmt.Errorf("couldn't create cache directory: %w", err)
	}
	base := filepath.Base(path)
	ext := filepath.Ext(base)
	staged := filepath.Join(l.options.CacheDir, fmt.Sprintf("%s-%s%s", strings.TrimSuffix(base, ext), uuid.NewString(), ext))
	if err := os.WriteFile(staged, data, 0o755); err != nil {
		return "", fmt.Errorf("couldn't stage artifact: %w", err)
	}
	return staged, nil
}
