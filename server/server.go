package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net"
	"net/http"
	"syscall"
	"time"

	"github.com/0xPolygonHermez/zkevm-tx-engine/log"
	"github.com/didip/tollbooth/v6"
	"golang.org/x/sync/errgroup"
)

const (
	maxRequestContentLength = 1024 * 1024 * 5
	contentType             = "application/json"
	banner                  = "zkEVM Tx Engine"
)

// https://www.jsonrpc.org/historical/json-rpc-over-http.html#http-header
var acceptedContentTypes = []string{contentType, "application/json-rpc", "application/jsonrequest"}

// Server serves the tx engine endpoints over JSON-RPC 2.0 on HTTP
type Server struct {
	config     Config
	handler    *Handler
	httpServer *http.Server
}

// NewServer creates a server for the flows of executor and the queries of repo
func NewServer(cfg Config, executor executorInterface, repo repositoryInterface) *Server {
	return &Server{
		config:  cfg,
		handler: newHandler(NewEndpoints(cfg, executor, repo)),
	}
}

// Start listens on the configured address and blocks serving requests until Stop is called
func (s *Server) Start() error {
	if s.httpServer != nil {
		return fmt.Errorf("HTTP server already started")
	}

	address := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	lis, err := net.Listen("tcp", address)
	if err != nil {
		return fmt.Errorf("failed to create TCP listener, error: %w", err)
	}

	s.httpServer = &http.Server{
		Handler:           s.routes(),
		ReadHeaderTimeout: s.config.ReadTimeout.Duration,
		ReadTimeout:       s.config.ReadTimeout.Duration,
		WriteTimeout:      s.config.WriteTimeout.Duration,
	}
	log.Infof("HTTP server started at %s", address)

	err = s.httpServer.Serve(lis)
	if errors.Is(err, http.ErrServerClosed) {
		log.Infof("HTTP server stopped")
		return nil
	}
	return fmt.Errorf("closed HTTP connection, error: %w", err)
}

// Stop waits for the calls in flight, bounded by ctx, and closes the server
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return err
	}
	if err := s.httpServer.Close(); err != nil {
		return err
	}
	s.httpServer = nil
	return nil
}

func (s *Server) routes() http.Handler {
	lmt := tollbooth.NewLimiter(s.config.MaxRequestsPerIPAndSecond, nil)
	mux := http.NewServeMux()
	mux.Handle("/", tollbooth.LimitFuncHandler(lmt, s.handle))
	if s.config.WebSocketPath != "" {
		mux.Handle(s.config.WebSocketPath, tollbooth.LimitFuncHandler(lmt, s.handleWs))
	}
	return mux
}

func (s *Server) handle(w http.ResponseWriter, req *http.Request) {
	setHeaders(w)

	switch req.Method {
	case http.MethodOptions:
		return
	case http.MethodGet:
		if _, err := w.Write([]byte(banner)); err != nil {
			log.Error(err)
		}
		return
	}

	if code, err := validateRequest(req); err != nil {
		writeInvalidRequest(w, err, code)
		return
	}

	data, err := io.ReadAll(http.MaxBytesReader(w, req.Body, maxRequestContentLength))
	if err != nil {
		writeError(w, err)
		return
	}

	start := time.Now()
	status, written := s.serve(req, w, data)
	s.logRequest(req, start, status, written)
}

// serve answers the single or batch call carried by data and returns the status and size of the response
func (s *Server) serve(httpRequest *http.Request, w http.ResponseWriter, data []byte) (int, int) {
	response, status, err := s.dispatch(httpRequest, data)
	if err != nil {
		writeInvalidRequest(w, err, status)
		return status, 0
	}
	return http.StatusOK, writeJSON(w, response)
}

// dispatch serves the single or batch call carried by data. A rejected payload returns the
// HTTP status of the rejection.
func (s *Server) dispatch(httpRequest *http.Request, data []byte) (interface{}, int, error) {
	body := bytes.TrimLeft(data, " \t\r\n")
	if len(body) == 0 {
		return nil, http.StatusBadRequest, fmt.Errorf("empty request body")
	}

	if body[0] != '[' {
		var request Request
		if err := json.Unmarshal(body, &request); err != nil {
			return nil, http.StatusBadRequest, fmt.Errorf("invalid json object request body")
		}
		return s.handler.Handle(handleRequest{Request: request, HttpRequest: httpRequest}), http.StatusOK, nil
	}

	if !s.config.BatchRequestsEnabled {
		return nil, http.StatusBadRequest, ErrBatchRequestsDisabled
	}
	var requests []Request
	if err := json.Unmarshal(body, &requests); err != nil {
		return nil, http.StatusBadRequest, fmt.Errorf("invalid json array request body")
	}
	if s.config.BatchRequestsLimit > 0 && len(requests) > int(s.config.BatchRequestsLimit) {
		return nil, http.StatusRequestEntityTooLarge, ErrBatchRequestsLimitExceeded
	}
	return s.handleBatch(httpRequest, requests), http.StatusOK, nil
}

// handleBatch serves the calls of a batch concurrently. Responses keep the order of the requests.
func (s *Server) handleBatch(httpRequest *http.Request, requests []Request) []Response {
	responses := make([]Response, len(requests))

	var g errgroup.Group
	g.SetLimit(max(1, int(s.config.BatchRequestsConcurrency)))
	for i, request := range requests {
		g.Go(func() error {
			responses[i] = s.handler.Handle(handleRequest{Request: request, HttpRequest: httpRequest})
			return nil
		})
	}
	_ = g.Wait()

	return responses
}

// validateRequest returns a non-zero response code and error message if the
// request is invalid.
func validateRequest(req *http.Request) (int, error) {
	if req.Method != http.MethodPost {
		return http.StatusMethodNotAllowed, errors.New("method " + req.Method + " not allowed")
	}

	if req.ContentLength > maxRequestContentLength {
		return http.StatusRequestEntityTooLarge, fmt.Errorf("content length too large (%d > %d)", req.ContentLength, maxRequestContentLength)
	}

	if mt, _, err := mime.ParseMediaType(req.Header.Get("content-type")); err == nil {
		for _, accepted := range acceptedContentTypes {
			if accepted == mt {
				return 0, nil
			}
		}
	}
	return http.StatusUnsupportedMediaType, fmt.Errorf("invalid content type, only %s is supported", contentType)
}

func setHeaders(w http.ResponseWriter) {
	h := w.Header()
	h.Set("Content-Type", contentType)
	h.Set("Access-Control-Allow-Origin", "*")
	h.Set("Access-Control-Allow-Methods", "POST, OPTIONS")
	h.Set("Access-Control-Allow-Headers", "Accept, Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization")
}

// writeJSON writes v and returns the number of bytes written
func writeJSON(w http.ResponseWriter, v interface{}) int {
	respBytes, err := json.Marshal(v)
	if err != nil {
		writeError(w, err)
		return 0
	}
	if _, err := w.Write(respBytes); err != nil {
		writeError(w, err)
		return 0
	}
	return len(respBytes)
}

func writeInvalidRequest(w http.ResponseWriter, err error, code int) {
	log.Debugf("invalid request, error: %v", err)
	http.Error(w, err.Error(), code)
}

func writeError(w http.ResponseWriter, err error) {
	// the client is gone
	if errors.Is(err, syscall.EPIPE) {
		return
	}
	log.Errorf("error processing request, error: %v", err)
	http.Error(w, err.Error(), http.StatusInternalServerError)
}

// RPCErrorResponse formats error to be returned through RPC
func RPCErrorResponse(code int, message string, err error, logError bool) (interface{}, Error) {
	return RPCErrorResponseWithData(code, message, nil, err, logError)
}

// RPCErrorResponseWithData formats error to be returned through RPC
func RPCErrorResponseWithData(code int, message string, data []byte, err error, logError bool) (interface{}, Error) {
	if logError {
		if err != nil {
			log.Debugf("%v: %v", message, err.Error())
		} else {
			log.Debug(message)
		}
	}
	return nil, NewServerErrorWithData(code, message, data)
}

func (s *Server) logRequest(r *http.Request, start time.Time, status, size int) {
	if !s.config.EnableHttpLog {
		return
	}
	log.Infow("http request",
		"remote", r.RemoteAddr,
		"method", r.Method,
		"path", r.URL.Path,
		"proto", r.Proto,
		"status", status,
		"size", size,
		"duration", time.Since(start),
		"userAgent", r.UserAgent(),
	)
}
