package daemon

import (
	"context"
	"path/filepath"
	"reflect"

	"github.com/fsnotify/fsnotify"

	"github.com/msageha/bankstander/internal/config"
)

// configLoop reacts to edits of config.yaml. Editors and AtomicWrite replace
// the file by rename, so the workspace directory is watched rather than the
// file itself.
func (d *Daemon) configLoop(ctx context.Context) {
	target := filepath.Clean(d.paths.Config())
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-d.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				d.logger.Debugf("fsnotify event=%s file=%s", event.Op, event.Name)
				d.reloadConfig()
			}
		case err, ok := <-d.watcher.Errors:
			if !ok {
				return
			}
			d.logger.Errorf("fsnotify error=%v", err)
		}
	}
}

// reloadConfig applies a changed session.paused flag. Every other setting
// is fixed for the lifetime of a session.
func (d *Daemon) reloadConfig() {
	l, err := config.Load(d.paths.Config())
	if err != nil {
		d.logger.Warnf("ignoring config change: %v", err)
		return
	}

	if !reflect.DeepEqual(l.Run, d.loaded.Run) {
		d.logger.Warnf("session settings changed on disk; restart to apply them")
	}

	d.cfgMu.Lock()
	paused := l.Config.Session.Paused
	changed := paused != d.filePaused
	d.filePaused = paused
	d.cfgMu.Unlock()
	if !changed {
		return
	}

	sess := d.Session()
	var perr error
	if paused {
		perr = sess.Pause()
	} else {
		perr = sess.Resume()
	}
	if perr != nil {
		d.logger.Warnf("apply session.paused=%t: %v", paused, perr)
		return
	}
	d.logger.Infof("session.paused=%t applied from config", paused)
}
