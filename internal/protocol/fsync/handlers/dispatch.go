package handlers

import (
	"github.com/marmos91/fsyncd/internal/logger"
	"github.com/marmos91/fsyncd/internal/protocol/fsync"
)

// CommandHandler processes one request and writes its response.
type CommandHandler func(h *Handler, ctx *RequestContext, req *fsync.Request, w *fsync.ResponseWriter) error

// CommandInfo contains metadata about a command for dispatch.
type CommandInfo struct {
	// Name is the command token, for logging and metrics
	Name string

	// Handler processes the command
	Handler CommandHandler

	// Blocking marks commands that wait for other clients (SLEEP). The
	// connection watches the peer while they run so a disconnect or new
	// data cancels the wait.
	Blocking bool
}

// DispatchTable maps every known command to its handler. CommandUnknown has
// no entry; the codec never produces it.
var DispatchTable map[fsync.Command]*CommandInfo

func init() {
	DispatchTable = map[fsync.Command]*CommandInfo{
		fsync.CommandGet:   {Name: "GET", Handler: (*Handler).Get},
		fsync.CommandPut:   {Name: "PUT", Handler: (*Handler).Put},
		fsync.CommandDel:   {Name: "DEL", Handler: (*Handler).Del},
		fsync.CommandMkdir: {Name: "MKDIR", Handler: (*Handler).Mkdir},
		fsync.CommandRmdir: {Name: "RMDIR", Handler: (*Handler).Rmdir},
		fsync.CommandStat:  {Name: "STAT", Handler: (*Handler).Stat},
		fsync.CommandList:  {Name: "LIST", Handler: (*Handler).List},
		fsync.CommandCd:    {Name: "CD", Handler: (*Handler).Cd},
		fsync.CommandPwd:   {Name: "PWD", Handler: (*Handler).Pwd},
		fsync.CommandSleep: {Name: "SLEEP", Handler: (*Handler).Sleep, Blocking: true},
		fsync.CommandQuit:  {Name: "QUIT", Handler: (*Handler).Quit},
	}
}

// Lookup returns the dispatch entry for cmd, or nil.
func Lookup(cmd fsync.Command) *CommandInfo {
	return DispatchTable[cmd]
}

// Dispatch runs the handler for req.
//
// If the handler leaves part of a PUT payload unread, the rest is drained so
// the next request starts on a frame boundary.
func (h *Handler) Dispatch(ctx *RequestContext, req *fsync.Request, w *fsync.ResponseWriter) error {
	info := Lookup(req.Command)
	if info == nil {
		logger.Warn("No handler for command %s from %s", req.Command, ctx.Session.ClientAddr)
		return w.WriteError(fsync.MsgInvalidRequest)
	}

	logger.Debug("%s %v from %s", info.Name, req.Args, ctx.Session.ClientAddr)

	err := info.Handler(h, ctx, req, w)

	if req.Payload != nil && !req.Payload.Done() && err == nil {
		err = req.Payload.Drain()
	}
	return err
}
