package provider

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"syscall"

	"github.com/0xPolygonHermez/zkevm-tx-engine/retry"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/rpc"
)

var (
	// ErrCircuitOpen is returned while the node circuit breaker is open
	ErrCircuitOpen = errors.New("node circuit breaker is open")
	// ErrPrivateRelayNotConfigured is returned for private submissions on a chain without relay
	ErrPrivateRelayNotConfigured = errors.New("private relay not configured for chain")
	// ErrUnknownChain is returned when no client is configured for the chain id
	ErrUnknownChain = errors.New("unknown chain")
)

// node messages signalling a temporary condition
var transientMessages = []string{
	"timeout",
	"timed out",
	"rate limit",
	"too many requests",
	"header not found",
	"service unavailable",
	"connection reset",
	"connection refused",
	"try again",
}

// isAlreadyKnown returns true when the node already holds the broadcast payload
func isAlreadyKnown(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "already known") || strings.Contains(msg, "known transaction")
}

// isTransient returns true for failures caused by the node or the network rather than by the request
func isTransient(err error) bool {
	if err == nil || errors.Is(err, ethereum.NotFound) || errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) || errors.Is(err, ErrCircuitOpen) {
		return true
	}

	var httpErr rpc.HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode >= http.StatusInternalServerError || httpErr.StatusCode == http.StatusTooManyRequests
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, m := range transientMessages {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}

// classifyError marks transient errors as retryable
func classifyError(err error) error {
	if isTransient(err) {
		return retry.Retryable(err)
	}
	return err
}
