package daemon

import (
	"context"
	"errors"
	"os"

	"github.com/msageha/bankstander/internal/config"
	"github.com/msageha/bankstander/internal/model"
	"github.com/msageha/bankstander/internal/session"
	"github.com/msageha/bankstander/internal/uds"
)

// PauseParams are the optional parameters of pause and resume.
type PauseParams struct {
	// Persist also writes session.paused to the config file.
	Persist bool `json:"persist,omitempty"`
}

func (d *Daemon) registerHandlers() {
	d.server.Handle(uds.CmdPing, func(ctx context.Context, req *uds.Request) *uds.Response {
		return uds.SuccessResponse(map[string]any{
			"status":     "ok",
			"pid":        os.Getpid(),
			"session_id": d.Session().ID(),
		})
	})
	d.server.Handle(uds.CmdStatus, d.handleStatus)
	d.server.Handle(uds.CmdPause, func(ctx context.Context, req *uds.Request) *uds.Response {
		return d.handlePause(req, true)
	})
	d.server.Handle(uds.CmdResume, func(ctx context.Context, req *uds.Request) *uds.Response {
		return d.handlePause(req, false)
	})
	d.server.Handle(uds.CmdStop, func(ctx context.Context, req *uds.Request) *uds.Response {
		d.logger.Infof("stop requested via control socket")
		go d.Shutdown()
		return uds.SuccessResponse(map[string]string{"status": "stopping"})
	})
}

func (d *Daemon) handleStatus(ctx context.Context, req *uds.Request) *uds.Response {
	return uds.SuccessResponse(model.StatusReport{
		Snapshot:   d.Session().Status(),
		PID:        os.Getpid(),
		ConfigPath: d.paths.Config(),
	})
}

func (d *Daemon) handlePause(req *uds.Request, pause bool) *uds.Response {
	var p PauseParams
	if err := req.Decode(&p); err != nil {
		return uds.ErrorResponse(uds.ErrCodeValidation, err.Error())
	}

	sess := d.Session()
	var err error
	if pause {
		err = sess.Pause()
	} else {
		err = sess.Resume()
	}
	if errors.Is(err, session.ErrStopped) {
		return uds.ErrorResponse(uds.ErrCodeSessionStopped, err.Error())
	}
	if err != nil {
		return uds.ErrorResponse(uds.ErrCodeInternal, err.Error())
	}

	if p.Persist {
		d.cfgMu.Lock()
		err := config.SetPaused(d.paths.Config(), pause)
		if err == nil {
			d.filePaused = pause
		}
		d.cfgMu.Unlock()
		if err != nil {
			return uds.ErrorResponse(uds.ErrCodeInternal, "persist paused flag: "+err.Error())
		}
	}
	return uds.SuccessResponse(model.StatusReport{
		Snapshot:   sess.Status(),
		PID:        os.Getpid(),
		ConfigPath: d.paths.Config(),
	})
}
