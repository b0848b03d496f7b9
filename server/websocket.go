package server

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/0xPolygonHermez/zkevm-tx-engine/log"
	"github.com/gorilla/websocket"
)

const wsBufferSizeLimitInBytes = 1024

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  wsBufferSizeLimitInBytes,
	WriteBufferSize: wsBufferSizeLimitInBytes,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// handleWs serves the calls received on a WebSocket connection. Each message is a single or
// batch call answered on the same connection; calls of one connection are served concurrently.
func (s *Server) handleWs(w http.ResponseWriter, req *http.Request) {
	conn, err := wsUpgrader.Upgrade(w, req, nil)
	if err != nil {
		log.Errorf("unable to upgrade to a WS connection, error: %v", err)
		return
	}
	conn.SetReadLimit(maxRequestContentLength)
	log.Debugf("WS connection opened from %s", req.RemoteAddr)

	var (
		wg         sync.WaitGroup
		writeMutex sync.Mutex
	)
	defer func() {
		wg.Wait()
		if err := conn.Close(); err != nil {
			log.Debugf("error closing WS connection, error: %v", err)
		}
	}()

	for {
		msgType, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				log.Debugf("WS connection from %s closed", req.RemoteAddr)
			} else {
				log.Warnf("unable to read WS message from %s, error: %v", req.RemoteAddr, err)
			}
			return
		}
		if msgType != websocket.TextMessage && msgType != websocket.BinaryMessage {
			continue
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			data := s.wsResponse(req, message)

			writeMutex.Lock()
			defer writeMutex.Unlock()
			if err := conn.WriteMessage(msgType, data); err != nil {
				log.Warnf("unable to write WS response to %s, error: %v", req.RemoteAddr, err)
			}
		}()
	}
}

// wsResponse serves message. A rejected payload is answered with an invalid request error
// without id, there is no HTTP status to carry it.
func (s *Server) wsResponse(req *http.Request, message []byte) []byte {
	response, _, err := s.dispatch(req, message)
	if err != nil {
		log.Debugf("invalid WS request, error: %v", err)
		response = NewResponse(Request{JSONRPC: "2.0"}, nil, NewServerError(InvalidRequestErrorCode, err.Error()))
	}

	data, err := json.Marshal(response)
	if err != nil {
		log.Errorf("error encoding WS response, error: %v", err)
		data, _ = json.Marshal(NewResponse(Request{JSONRPC: "2.0"}, nil, NewServerError(InternalErrorCode, internalErrorMessage)))
	}
	return data
}
