// Package rpc serves the engine over newline-delimited JSON-RPC 2.0 on
// stdio or TCP.
package rpc

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net"
	"sync"

	"cci/internal/config"
	"cci/internal/engine"
	cerr "cci/internal/errors"
	"cci/internal/logging"
	"cci/internal/query"
	"cci/internal/registry"
)

// maxLineBytes bounds a single request line.
const maxLineBytes = 16 * 1024 * 1024

// Server answers JSON-RPC requests against a lazily initialized engine.
type Server struct {
	logger *logging.Logger

	mu       sync.RWMutex
	eng      *engine.Engine
	shutdown bool
}

// NewServer creates an RPC server. The engine is created by the initialize
// method.
func NewServer(logger *logging.Logger) *Server {
	return &Server{logger: logger}
}

// ServeStdio runs the read loop over a reader/writer pair until EOF or
// shutdown.
func (s *Server) ServeStdio(ctx context.Context, in io.Reader, out io.Writer) error {
	return s.serve(ctx, in, out)
}

// ServeTCP accepts connections on addr, one read loop per connection.
func (s *Server) ServeTCP(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return cerr.Wrap(cerr.IO, "failed to listen on "+addr, err)
	}
	defer ln.Close()
	go func() {
		<-ctx.Done()
		ln.Close()
	}()
	s.logger.Info("rpc listening", map[string]interface{}{"addr": addr})
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		go func() {
			defer conn.Close()
			_ = s.serve(ctx, conn, conn)
		}()
	}
}

func (s *Server) serve(ctx context.Context, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)
	var writeMu sync.Mutex

	write := func(resp *Response) {
		resp.Jsonrpc = "2.0"
		data, err := json.Marshal(resp)
		if err != nil {
			s.logger.Error("failed to encode response", map[string]interface{}{"error": err.Error()})
			return
		}
		writeMu.Lock()
		defer writeMu.Unlock()
		_, _ = out.Write(append(data, '\n'))
	}

	for scanner.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req Request
		if err := json.Unmarshal(line, &req); err != nil {
			write(&Response{Error: &ErrorObject{Code: ParseError, Message: "parse error"}})
			continue
		}

		resp := s.dispatch(ctx, &req)
		// Notifications are never answered.
		if req.Id != nil && resp != nil {
			resp.Id = req.Id
			write(resp)
		}

		s.mu.RLock()
		done := s.shutdown
		s.mu.RUnlock()
		if done {
			return nil
		}
	}
	return scanner.Err()
}

func (s *Server) dispatch(ctx context.Context, req *Request) *Response {
	switch req.Method {
	case "initialize":
		return s.handleInitialize(req)
	case "query":
		return s.handleQuery(ctx, req)
	case "status":
		return s.handleStatus()
	case "shutdown":
		s.mu.Lock()
		s.shutdown = true
		s.mu.Unlock()
		return &Response{Result: map[string]bool{"ok": true}}
	case "file/didChange":
		return s.handleFile(req, false)
	case "file/didDelete":
		return s.handleFile(req, true)
	default:
		return &Response{Error: &ErrorObject{
			Code:    MethodNotFound,
			Message: "method not found: " + req.Method,
		}}
	}
}

func (s *Server) handleInitialize(req *Request) *Response {
	var params InitializeParams
	if err := json.Unmarshal(req.Params, &params); err != nil || params.RootPath == "" {
		return &Response{Error: &ErrorObject{Code: InvalidParams, Message: "rootPath required"}}
	}

	result, err := config.Load(params.RootPath)
	if err != nil {
		return &Response{Error: &ErrorObject{Code: InternalError, Message: err.Error()}}
	}
	cfg := result.Config
	if params.LanguageId != "" {
		cfg.Language.ID = params.LanguageId
	}
	opts := engine.Options{Mode: registry.WorkspaceMode}
	if params.UseCache != nil {
		cfg.UseCache = *params.UseCache
	}
	if params.LoadDependencies != nil {
		opts.LoadDependencies = *params.LoadDependencies
	}

	eng, err := engine.New(params.RootPath, cfg, s.logger, opts)
	if err != nil {
		return &Response{Error: &ErrorObject{
			Code: InternalError, Message: err.Error(),
			Data: map[string]string{"kind": string(cerr.KindOf(err))},
		}}
	}

	s.mu.Lock()
	if s.eng != nil {
		_ = s.eng.Close()
	}
	s.eng = eng
	s.mu.Unlock()

	return &Response{Result: eng.Status()}
}

func (s *Server) handleQuery(ctx context.Context, req *Request) *Response {
	eng := s.engine()
	if eng == nil {
		return &Response{Error: &ErrorObject{Code: InvalidRequest, Message: "not initialized"}}
	}
	var params QueryParams
	if err := json.Unmarshal(req.Params, &params); err != nil || params.Query == "" {
		return &Response{Error: &ErrorObject{Code: InvalidParams, Message: "query required"}}
	}

	result := eng.Query(ctx, params.Query)
	if params.Format == "text" {
		return &Response{Result: map[string]string{"text": query.ToText(result)}}
	}
	return &Response{Result: query.ToJSON(result)}
}

func (s *Server) handleStatus() *Response {
	eng := s.engine()
	if eng == nil {
		return &Response{Error: &ErrorObject{Code: InvalidRequest, Message: "not initialized"}}
	}
	return &Response{Result: eng.Status()}
}

func (s *Server) handleFile(req *Request, deleted bool) *Response {
	eng := s.engine()
	if eng == nil {
		return &Response{Error: &ErrorObject{Code: InvalidRequest, Message: "not initialized"}}
	}
	var params FileParams
	if err := json.Unmarshal(req.Params, &params); err != nil || params.Path == "" {
		return &Response{Error: &ErrorObject{Code: InvalidParams, Message: "path required"}}
	}

	var err error
	if deleted {
		err = eng.FileDeleted(params.Path)
	} else {
		err = eng.FileChanged(params.Path)
	}
	if err != nil {
		return &Response{Error: &ErrorObject{
			Code: InternalError, Message: err.Error(),
			Data: map[string]string{"kind": string(cerr.KindOf(err))},
		}}
	}
	return &Response{Result: map[string]bool{"ok": true}}
}

func (s *Server) engine() *engine.Engine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.eng
}
