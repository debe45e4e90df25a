// Package arkrpc is the wire protocol between arkclient and arkd: request
// and response messages for the round participation RPCs, the round
// event stream, and conversions to and from the domain types in
// arkd/round and ark/rounds.
//
// The wire messages are plain Go structs rather than protoc-generated
// ones; see jsonCodec and DESIGN.md for why.
package arkrpc

import (
	"github.com/btcsuite/btclog"
)

var log = btclog.Disabled

// UseLogger sets the package-wide logger.
func UseLogger(l btclog.Logger) { log = l }
