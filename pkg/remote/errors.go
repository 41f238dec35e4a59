package remote

import (
	"errors"
	"fmt"
)

var (
	// ErrNoEndpoints is returned when the pool has no endpoints at all.
	ErrNoEndpoints = errors.New("no RPC endpoints available")

	// ErrAccountNotFound is returned when the cluster reports no account at the address.
	ErrAccountNotFound = errors.New("account not found on cluster")

	// ErrUnsupportedEncoding is returned when the node answers with an encoding other than base64.
	ErrUnsupportedEncoding = errors.New("unsupported account data encoding")
)

// RPCError represents a JSON-RPC error response.
type RPCError struct {
	Code    int
	Message string
}

// Error implements the error interface.
func (e *RPCError) Error() string {
	return fmt.Sprintf("RPC error %d: %s", e.Code, e.Message)
}
