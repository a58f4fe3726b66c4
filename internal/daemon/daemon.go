// Package daemon hosts one session with its control socket, config watcher,
// audit log and status file.
package daemon

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/sync/errgroup"

	"github.com/msageha/bankstander/internal/config"
	"github.com/msageha/bankstander/internal/events"
	"github.com/msageha/bankstander/internal/lock"
	"github.com/msageha/bankstander/internal/logging"
	"github.com/msageha/bankstander/internal/model"
	"github.com/msageha/bankstander/internal/notify"
	"github.com/msageha/bankstander/internal/session"
	"github.com/msageha/bankstander/internal/setup"
	"github.com/msageha/bankstander/internal/sim"
	"github.com/msageha/bankstander/internal/uds"
	"github.com/msageha/bankstander/internal/wait"
	"github.com/msageha/bankstander/internal/world"
	atomicyaml "github.com/msageha/bankstander/internal/yaml"
)

const defaultShutdownTimeout = 10 * time.Second

// Daemon is a running bankstander session process.
type Daemon struct {
	paths   setup.Paths
	loaded  *config.Loaded
	logger  *logging.Logger
	logFile io.Closer

	fileLock *lock.FileLock
	server   *uds.Server
	watcher  *fsnotify.Watcher
	bus      *events.Bus
	audit    *events.AuditLogger

	world   world.World
	sim     *sim.World
	clock   wait.Clock
	session atomic.Pointer[session.Session]

	// filePaused is the last session.paused value seen in the config file.
	cfgMu      sync.Mutex
	filePaused bool

	statusMu sync.Mutex

	ctx      context.Context
	cancel   context.CancelFunc
	shutdown sync.Once
}

// New creates a daemon logging to the workspace daemon.log.
func New(paths setup.Paths, loaded *config.Loaded) (*Daemon, error) {
	logPath := paths.DaemonLog()
	if err := os.MkdirAll(filepath.Dir(logPath), 0755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	logFile, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("open daemon log: %w", err)
	}
	return newDaemon(paths, loaded, logFile, logFile), nil
}

func newDaemon(paths setup.Paths, loaded *config.Loaded, w io.Writer, closer io.Closer) *Daemon {
	ctx, cancel := context.WithCancel(context.Background())
	logger := logging.New(w, logging.ParseLevel(loaded.Config.Logging.Level))
	return &Daemon{
		paths:      paths,
		loaded:     loaded,
		logger:     logger.With("daemon"),
		logFile:    closer,
		fileLock:   lock.NewFileLock(paths.Lock()),
		server:     uds.NewServer(paths.Socket(), logger),
		clock:      wait.RealClock,
		filePaused: loaded.Config.Session.Paused,
		ctx:        ctx,
		cancel:     cancel,
	}
}

// SetWorld attaches a client binding. Without one the daemon drives the
// simulated world described by the simulation section. Must be called
// before Run.
func (d *Daemon) SetWorld(w world.World) {
	d.world = w
}

// SetClock replaces the clock used by the session and the simulated world.
// Must be called before Run.
func (d *Daemon) SetClock(c wait.Clock) {
	d.clock = c
}

// Session returns the hosted session once Run has started it.
func (d *Daemon) Session() *session.Session {
	return d.session.Load()
}

// Run starts the session and blocks until it ends, ctx is cancelled or a
// stop request arrives. Shutdown has completed when Run returns.
func (d *Daemon) Run(ctx context.Context) error {
	if err := d.fileLock.TryLock(); err != nil {
		d.closeLog()
		return fmt.Errorf("session lock: %w", err)
	}
	d.logger.Infof("daemon starting pid=%d workspace=%s", os.Getpid(), d.paths.Base)

	if err := d.start(); err != nil {
		d.logger.Errorf("start failed: %v", err)
		d.Shutdown()
		return err
	}
	stop := context.AfterFunc(ctx, d.Shutdown)
	defer stop()

	sess := d.Session()
	g, gctx := errgroup.WithContext(d.ctx)
	g.Go(func() error {
		d.configLoop(gctx)
		return nil
	})
	g.Go(func() error {
		select {
		case <-sess.Done():
			d.logger.Infof("session ended: %s", sess.Status().StoppedReason)
		case <-gctx.Done():
		}
		d.Shutdown()
		return nil
	})

	d.logger.Infof("daemon ready socket=%s", d.paths.Socket())
	return g.Wait()
}

func (d *Daemon) start() error {
	cfg := d.loaded.Config

	maxSize := int64(cfg.Logging.AuditMaxMiB) << 20
	if maxSize <= 0 {
		maxSize = events.DefaultMaxLogSize
	}
	audit, err := events.NewAuditLogger(d.paths.AuditLog(), maxSize)
	if err != nil {
		return fmt.Errorf("open audit log: %w", err)
	}
	d.audit = audit
	d.bus = events.NewBus(256)
	d.audit.Attach(d.bus, func(err error) { d.logger.Warnf("audit: %v", err) })
	d.bus.Subscribe(func(events.Event) { d.writeStatus() }, events.AllEventTypes...)

	w := d.world
	if !w.Complete() {
		d.logger.Infof("no client binding attached; driving the simulated world")
		d.sim = sim.FromConfig(d.clock, cfg.Simulation, d.loaded.Run)
		w = d.sim.Bind()
	}
	w.Notifier = d.notifier(w.Notifier)

	opts := []session.Option{
		session.WithClock(d.clock),
		session.WithLogger(d.logger.With("session")),
		session.WithBus(d.bus),
		session.WithPaused(cfg.Session.Paused),
	}
	if cfg.Simulation.Seed != 0 {
		opts = append(opts, session.WithSeed(cfg.Simulation.Seed))
	}
	sess, err := session.Start(d.ctx, d.loaded.Run, w, opts...)
	if err != nil {
		return fmt.Errorf("start session: %w", err)
	}
	d.session.Store(sess)
	d.writeStatus()

	d.registerHandlers()
	if err := d.server.Start(); err != nil {
		return fmt.Errorf("start control socket: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fsnotify watcher: %w", err)
	}
	d.watcher = watcher
	if err := watcher.Add(d.paths.Base); err != nil {
		return fmt.Errorf("watch %s: %w", d.paths.Base, err)
	}
	return nil
}

func (d *Daemon) notifier(existing world.Notifier) world.Notifier {
	n := notify.Multi{notify.Log{Logger: d.logger.With("notify")}}
	if d.loaded.Config.Notify.Desktop {
		n = append(n, notify.Desktop{Title: d.loaded.Config.Notify.Title, Logger: d.logger.With("notify")})
	}
	if existing != nil {
		n = append(n, existing)
	}
	return n
}

func (d *Daemon) writeStatus() {
	sess := d.Session()
	if sess == nil {
		return
	}
	d.statusMu.Lock()
	defer d.statusMu.Unlock()
	sf := model.NewStatusFile(sess.Status(), os.Getpid(), time.Now())
	if err := atomicyaml.AtomicWrite(d.paths.StatusFile(), sf); err != nil {
		d.logger.Warnf("write status file: %v", err)
	}
}

// Shutdown stops the session and releases every resource. Idempotent.
func (d *Daemon) Shutdown() {
	d.shutdown.Do(func() {
		d.logger.Infof("shutdown started")

		if d.server != nil {
			_ = d.server.Stop()
		}
		if sess := d.Session(); sess != nil {
			d.stopSession(sess)
		}
		d.cancel()
		if d.watcher != nil {
			_ = d.watcher.Close()
		}
		if d.bus != nil {
			d.bus.Close()
		}
		d.writeStatus()
		if d.audit != nil {
			if err := d.audit.Close(); err != nil {
				d.logger.Warnf("close audit log: %v", err)
			}
		}
		if err := d.fileLock.Unlock(); err != nil {
			d.logger.Warnf("release lock: %v", err)
		}
		d.logger.Infof("daemon stopped")
		d.closeLog()
	})
}

func (d *Daemon) stopSession(sess *session.Session) {
	timeout := time.Duration(d.loaded.Config.Daemon.ShutdownTimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = defaultShutdownTimeout
	}
	done := make(chan struct{})
	go func() {
		sess.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
		d.logger.Warnf("session did not stop within %s", timeout)
	}
}

func (d *Daemon) closeLog() {
	if d.logFile != nil {
		_ = d.logFile.Close()
		d.logFile = nil
	}
}
