package arena

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/swingmate-app/challenge-engine/internal/obslog"
)

var ErrNotConnected = errors.New("ws not connected")

// Egress pushes command frames over the socket for low-latency fan-out to
// other viewers. It is strictly best effort: the durable REST call is what
// guarantees the command, so a disconnected channel is not an error worth
// surfacing.
type Egress struct {
	sock   *Socket
	dryrun bool
	logger *zap.Logger
}

func NewEgress(sock *Socket, dryrun bool) *Egress {
	return &Egress{sock: sock, dryrun: dryrun, logger: obslog.L()}
}

// Push writes one command frame when the channel is up; silently skips
// otherwise.
func (e *Egress) Push(ctx context.Context, frame any) {
	if e == nil || e.sock == nil {
		return
	}
	if e.dryrun {
		e.logger.Info("egress_dryrun", zap.Any("frame", frame))
		return
	}
	if err := e.sock.SendJSON(ctx, frame); err != nil {
		if errors.Is(err, ErrNotConnected) {
			return
		}
		e.logger.Warn("egress_push_failed", zap.Error(err))
	}
}
