package adapter

import (
	"io"

	"github.com/srediag/plugin-bus/api"
	"github.com/srediag/plugin-bus/internal/logging"
	"github.com/srediag/plugin-bus/pkg/bus"
)

// AuditLog records every bus interaction as an info-level log line. Drops
// and skips are silent on the bus itself; attach this observer when an
// audit trail is wanted.
type AuditLog struct {
	log *logging.Logger
}

// NewAuditLog writes audit lines to stdout.
func NewAuditLog() *AuditLog {
	return &AuditLog{log: logging.New("audit")}
}

// NewAuditLogWithWriter writes audit lines to out.
func NewAuditLogWithWriter(out io.Writer) *AuditLog {
	return &AuditLog{log: logging.NewWithWriter("audit", out)}
}

func (a *AuditLog) EventPublished(ev api.OutboundEvent) {
	a.log.Infof("published module=%s event=%s", ev.Module, ev.Event)
}

func (a *AuditLog) PublishSkipped(ev api.OutboundEvent) {
	a.log.Infof("skipped module=%s event=%s (no bridge)", ev.Module, ev.Event)
}

func (a *AuditLog) CallDispatched(call api.InboundCall) {
	a.log.Infof("dispatched module=%s method=%s args=%d", call.Module, call.Method, len(call.Data))
}

func (a *AuditLog) CallDropped(call api.InboundCall, reason bus.DropReason) {
	a.log.Infof("dropped module=%s method=%s reason=%s", call.Module, call.Method, reason)
}

func (a *AuditLog) CallFailed(call api.InboundCall, err error) {
	a.log.Infof("failed module=%s method=%s err=%v", call.Module, call.Method, err)
}
