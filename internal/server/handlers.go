package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/loykin/appconnect/internal/address"
	"github.com/loykin/appconnect/internal/connect"
	"github.com/loykin/appconnect/internal/event"
	"github.com/loykin/appconnect/internal/oserr"
	"github.com/loykin/appconnect/internal/resolver"
	"github.com/loykin/appconnect/internal/transport"
)

const (
	kindBadRequest  = "bad_request"
	kindRateLimited = "rate_limited"
	kindInternal    = "internal"

	defaultSendTimeout = time.Minute
	maxSendTimeout     = 10 * time.Minute
)

type errorResp struct {
	Error string `json:"error"`
	Code  int    `json:"code,omitempty"`
	Kind  string `json:"kind"`
}

type okResp struct {
	OK bool `json:"ok"`
}

type pathReq struct {
	Path string `json:"path"`
}

type launchReq struct {
	Path  string  `json:"path"`
	Event string  `json:"event"`
	Flags *uint32 `json:"flags,omitempty"`
}

type sendReq struct {
	Address address.Descriptor `json:"address"`
	Event   string             `json:"event"`
	Timeout string             `json:"timeout,omitempty"`
	Reply   bool               `json:"reply"`
}

type runningResp struct {
	Running bool `json:"running"`
}

type addressResp struct {
	Address address.Descriptor `json:"address"`
}

type handleResp struct {
	Handle address.ProcessHandle `json:"handle"`
}

type replyResp struct {
	Reply event.Reply `json:"reply"`
}

func badRequest(c *gin.Context, msg string) {
	writeJSON(c, http.StatusBadRequest, errorResp{Error: msg, Kind: kindBadRequest})
}

// writeError maps a transport or coordinator error onto a status code.
// The body keeps the OS status code so clients can rebuild the error.
func (r *Router) writeError(c *gin.Context, err error) {
	if errors.Is(err, resolver.ErrNotRunning) {
		writeJSON(c, http.StatusNotFound, errorResp{Error: err.Error(), Code: oserr.CodeProcNotFound, Kind: oserr.KindNotRunning})
		return
	}
	kind, code, ok := oserr.KindOf(err)
	if !ok {
		r.logger.Error("request failed", "path", c.Request.URL.Path, "error", err)
		writeJSON(c, http.StatusInternalServerError, errorResp{Error: err.Error(), Kind: kindInternal})
		return
	}
	status := http.StatusBadGateway
	switch kind {
	case oserr.KindNotRunning:
		status = http.StatusNotFound
	case oserr.KindCantLaunch:
		status = http.StatusConflict
	}
	writeJSON(c, status, errorResp{Error: err.Error(), Code: code, Kind: kind})
}

func (r *Router) bindPath(c *gin.Context) (string, bool) {
	var req pathReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid JSON: "+err.Error())
		return "", false
	}
	return checkPath(c, req.Path)
}

func checkPath(c *gin.Context, p string) (string, bool) {
	if p == "" {
		badRequest(c, "path required")
		return "", false
	}
	if !isSafeAbsPath(p) {
		badRequest(c, "invalid path: must be absolute path without traversal")
		return "", false
	}
	return p, true
}

func (r *Router) handleHealth(c *gin.Context) {
	writeJSON(c, http.StatusOK, okResp{OK: true})
}

func (r *Router) handleRunning(c *gin.Context) {
	p, ok := checkPath(c, c.Query("path"))
	if !ok {
		return
	}
	running, err := r.coord.IsRunning(p)
	if err != nil {
		r.writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, runningResp{Running: running})
}

func (r *Router) handleQuery(c *gin.Context) {
	p, ok := checkPath(c, c.Query("path"))
	if !ok {
		return
	}
	h, err := r.t.QueryProcessByPath(p)
	if err != nil {
		r.writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, handleResp{Handle: h})
}

func (r *Router) handleConnect(c *gin.Context) {
	p, ok := r.bindPath(c)
	if !ok {
		return
	}
	addr, err := r.coord.EnsureRunningAddress(p)
	if err != nil {
		r.writeError(c, err)
		return
	}
	r.logger.Info("connected", "path", p, "address", addr.String())
	writeJSON(c, http.StatusOK, addressResp{Address: addr})
}

func (r *Router) handleNotify(c *gin.Context) {
	p, ok := r.bindPath(c)
	if !ok {
		return
	}
	if err := r.coord.EnsureRunningAndNotify(p); err != nil {
		r.writeError(c, err)
		return
	}
	r.logger.Info("notified", "path", p)
	writeJSON(c, http.StatusOK, okResp{OK: true})
}

func (r *Router) handleLaunch(c *gin.Context) {
	var req launchReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid JSON: "+err.Error())
		return
	}
	p, ok := checkPath(c, req.Path)
	if !ok {
		return
	}
	ev, err := event.Parse(req.Event)
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	flags := connect.SilentLaunch
	if req.Flags != nil {
		flags = transport.LaunchFlags(*req.Flags)
	}
	h, err := r.t.Launch(p, ev, flags)
	if err != nil {
		r.writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, handleResp{Handle: h})
}

func (r *Router) handleSend(c *gin.Context) {
	var req sendReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid JSON: "+err.Error())
		return
	}
	if req.Address.IsZero() {
		badRequest(c, "address required")
		return
	}
	ev, err := event.Parse(req.Event)
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	timeout := defaultSendTimeout
	if req.Timeout != "" {
		d, err := time.ParseDuration(req.Timeout)
		if err != nil || d <= 0 || d > maxSendTimeout {
			badRequest(c, "invalid timeout: want a positive duration up to "+maxSendTimeout.String())
			return
		}
		timeout = d
	}
	mode := event.NoReply
	if req.Reply {
		mode = event.WaitReply
	}
	reply, err := r.t.Send(ev, req.Address, timeout, mode)
	if err != nil {
		r.writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, replyResp{Reply: reply})
}
