package manager

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/DataDog/reload-manager/abi"
)

// FatalExitCode - Exit status of a host aborted by a load, resolution or reconciliation failure. A capsule may
// fail with the same code: Run tells the two apart by its error, which is only set when the host aborted.
//
//	code  error  meaning
//	0     nil    the capsule succeeded
//	1-255 nil    the capsule failed with code
//	2     set    the host aborted
const FatalExitCode = 2

// Options - Options of a Manager. These options define how a manager should be initialized.
type Options struct {
	// ArtifactPath - Path of the unit to load and watch
	ArtifactPath string

	// CacheDir - Directory receiving the private copy of every loaded generation. See LoaderOptions.
	CacheDir string

	// PollInterval - Delay between two polls of the artifact modification time. Defaults to 100ms.
	PollInterval time.Duration

	// MaxPollBackoff - Upper bound of the delay between two stat retries within a poll. Defaults to 2s.
	MaxPollBackoff time.Duration

	// StatRetry - Number of times a failed stat is retried within a poll. Defaults to 5.
	StatRetry uint

	// LoadRetry - Number of times reading the artifact is retried. Set it when the build tool does not replace the
	// artifact atomically.
	LoadRetry uint

	// LoadRetryDelay - Initial delay between two read attempts. Defaults to 50ms.
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

	// OnReload - Called with the new generation after each successful reload
	OnReload func(generation uint64)
}

// Manager - Drives the load, run and reload cycles of a unit. Exactly one capsule is live at any time: it is held
// by the manager between two cycles, and by the unit while it runs or is reconciled.
type Manager struct {
	options   Options
	loader    *Loader
	state     state
	stateLock sync.RWMutex
	logger    logrus.FieldLogger

	unit    *LoadedUnit
	entries *EntryPoints
	capsule abi.CapsuleHandle
	reloads uint64
}

// Init - Initialize the manager with the default options
func (m *Manager) Init(artifactPath string) error {
	return m.InitWithOptions(Options{ArtifactPath: artifactPath})
}

// InitWithOptions - Initialize the manager: load the artifact, bind its entry points and create the first capsule.
func (m *Manager) InitWithOptions(options Options) error {
	m.stateLock.Lock()
	defer m.stateLock.Unlock()
	if m.state > initialized {
		return ErrManagerRunning
	}
	if options.ArtifactPath == "" {
		return ErrNoArtifactPath
	}
	if options.Logger == nil {
		options.Logger = logrus.StandardLogger()
	}

	m.options = options
	m.logger = options.Logger.WithField("artifact", options.ArtifactPath)
	m.loader = NewLoader(LoaderOptions{
		CacheDir:       options.CacheDir,
		LoadRetry:      options.LoadRetry,
		LoadRetryDelay: options.LoadRetryDelay,
		Open:           options.Open,
		Symbols:        options.Symbols,
		ModTime:        options.ModTime,
		Registry:       options.Registry,
		Logger:         options.Logger,
	})
	m.state = loading

	unit, entries, err := m.load(context.Background())
	if err != nil {
		m.state = reset
		return err
	}
	handle, err := entries.CreateCapsule()
	if err != nil {
		m.state = reset
		return fmt.Errorf("couldn't create capsule: %w", err)
	}

	m.unit, m.entries, m.capsule = unit, entries, handle
	m.reloads = 0
	m.state = initialized
	m.logger.WithField("generation", unit.Generation).Debug("manager initialized")
	return nil
}

// Run - Runs the capsule, reloading the unit each time its artifact changes, until the capsule succeeds or fails.
// It returns the exit status of the process: 0 on success, the failure code of the capsule, or FatalExitCode
// along with the error that aborted the manager. ctx bounds the watcher and the loading retries; a running
// capsule is only stopped by its own driver.
func (m *Manager) Run(ctx context.Context) (int, error) {
	m.stateLock.Lock()
	if m.state < initialized {
		m.stateLock.Unlock()
		return FatalExitCode, ErrManagerNotInitialized
	}
	if m.state > initialized {
		m.stateLock.Unlock()
		return FatalExitCode, ErrManagerRunning
	}
	m.state = running
	m.stateLock.Unlock()

	for {
		code, paused, err := m.runCycle(ctx)
		if err != nil {
			m.setState(exiting)
			m.logger.WithError(err).Error("run cycle failed")
			return FatalExitCode, err
		}
		if paused.IsZero() {
			m.setState(exiting)
			m.logger.WithFields(logrus.Fields{
				"code":    code,
				"reloads": m.Reloads(),
			}).Info("capsule exited")
			return code, nil
		}
		if err = m.reload(ctx, paused); err != nil {
			m.setState(exiting)
			m.logger.WithError(err).Error("reload failed")
			return FatalExitCode, err
		}
	}
}

// runCycle - Runs the live capsule once, with a watcher raising its change flag. It returns either the exit code of
// the capsule, or the paused capsule when a reload was requested.
func (m *Manager) runCycle(ctx context.Context) (int, abi.CapsuleHandle, error) {
	entries := m.entries
	flag, err := entries.GetChangeFlag(m.capsule)
	if err != nil {
		return 0, abi.CapsuleHandle{}, fmt.Errorf("couldn't borrow change flag: %w", err)
	}

	watchCtx, cancel := context.WithCancel(ctx)
	watcher := StartWatcher(watchCtx, m.options.ArtifactPath, m.unit.Artifact.ModTime, func() {
		if err := entries.SetChangeFlag(flag); err != nil {
			m.logger.WithError(err).Warn("couldn't raise change flag")
		}
	}, WatcherOptions{
		PollInterval: m.options.PollInterval,
		StatRetry:    m.options.StatRetry,
		MaxBackoff:   m.options.MaxPollBackoff,
		ModTime:      m.loader.options.ModTime,
		Logger:       m.options.Logger,
	})

	exit, err := entries.RunCapsule(m.capsule)
	cancel()
	<-watcher.Done()
	m.capsule = abi.CapsuleHandle{}
	if err != nil {
		return 0, abi.CapsuleHandle{}, fmt.Errorf("couldn't run capsule: %w", err)
	}

	code, err := entries.ExitCode(exit)
	if err != nil {
		return 0, abi.CapsuleHandle{}, fmt.Errorf("couldn't read exit code: %w", err)
	}
	switch {
	case code == abi.ReloadSentinel:
		paused, err := entries.ExitIntoCapsule(exit)
		if err != nil {
			return 0, abi.CapsuleHandle{}, fmt.Errorf("couldn't extract paused capsule: %w", err)
		}
		return 0, paused, nil
	case code >= 0 && code <= 255:
		return code, abi.CapsuleHandle{}, nil
	default:
		return 0, abi.CapsuleHandle{}, fmt.Errorf("%w: exit code %d out of range", abi.ErrContractViolation, code)
	}
}

// reload - Loads the next generation of the unit and reconciles the paused capsule with a capsule built by it
func (m *Manager) reload(ctx context.Context, paused abi.CapsuleHandle) error {
	m.setState(reloading)
	m.logger.WithField("generation", m.unit.Generation).Info("reloading unit")

	unit, entries, err := m.load(ctx)
	if err != nil {
		return err
	}
	fresh, err := entries.CreateCapsule()
	if err != nil {
		return &ReconciliationError{Generation: unit.Generation, Err: fmt.Errorf("couldn't create capsule: %w", err)}
	}
	merged, err := entries.Reconcile(paused, fresh)
	if err != nil {
		return &ReconciliationError{Generation: unit.Generation, Err: err}
	}

	m.stateLock.Lock()
	m.unit, m.entries, m.capsule = unit, entries, merged
	m.reloads++
	reloads := m.reloads
	m.state = running
	m.stateLock.Unlock()

	m.logger.WithFields(logrus.Fields{
		"generation": unit.Generation,
		"reloads":    reloads,
	}).Info("unit reloaded")
	if m.options.OnReload != nil {
		m.options.OnReload(unit.Generation)
	}
	return nil
}

// load - Loads the artifact and binds the entry points of the new unit
func (m *Manager) load(ctx context.Context) (*LoadedUnit, *EntryPoints, error) {
	unit, err := m.loader.Load(ctx, m.options.ArtifactPath)
	if err != nil {
		return nil, nil, err
	}
	entries, err := unit.Bind()
	if err != nil {
		var loadErr *LoadError
		if errors.As(err, &loadErr) {
			return nil, nil, err
		}
		return nil, nil, fmt.Errorf("couldn't bind entry points of generation %d: %w", unit.Generation, err)
	}
	return unit, entries, nil
}

func (m *Manager) setState(s state) {
	m.stateLock.Lock()
	defer m.stateLock.Unlock()
	m.state = s
}

// State - Returns the current state of the manager
func (m *Manager) State() string {
	m.stateLock.RLock()
	defer m.stateLock.RUnlock()
	return m.state.String()
}

// Generation - Returns the generation of the unit currently driving the capsule, 0 before Init
func (m *Manager) Generation() uint64 {
	m.stateLock.RLock()
	defer m.stateLock.RUnlock()
	if m.unit == nil {
		return 0
	}
	return m.unit.Generation
}

// Reloads - Returns the number of successful reloads since Init
func (m *Manager) Reloads() uint64 {
	m.stateLock.RLock()
	defer m.stateLock.RUnlock()
	return m.reloads
}

// Registry - Returns the registry retaining the loaded units, nil before Init
func (m *Manager) Registry() *Registry {
	m.stateLock.RLock()
	defer m.stateLock.RUnlock()
	if m.loader == nil {
		return nil
	}
	return m.loader.Registry()
}
