// Package alert defines the outbound alerter interface the change
// propagator and dependency monitor consume. This is the spec's
// explicitly out-of-scope "outbound webhook alerter" — only the interface
// is a core dependency; webhook.Notifier below is provided so the
// repository runs end-to-end.
package alert

import (
	"context"

	"github.com/jasonwang1/registercenter/internal/model"
)

// Notifier delivers human-facing alerts for registration lifecycle events
// and unsatisfied dependency coverage.
type Notifier interface {
	// NotifyChange announces a service instance reaching Register, Online,
	// or Offline status.
	NotifyChange(ctx context.Context, inst model.ServiceInstance) error

	// NotifyDependencyGap announces that no Online instance of relyType
	// satisfies relySemver for any of the demanding instances, using
	// exemplar as the representative candidate instance of that type.
	NotifyDependencyGap(ctx context.Context, group string, exemplar model.ServiceInstance, relyType int, relySemver string, demandedBy []string) error
}

// Noop discards every alert. Used when no webhook URL is configured.
type Noop struct{}

func (Noop) NotifyChange(context.Context, model.ServiceInstance) error { return nil }
func (Noop) NotifyDependencyGap(context.Context, string, model.ServiceInstance, int, string, []string) error {
	return nil
}
