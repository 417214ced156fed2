package notifications

import (
	"github.com/containrrr/shoutrrr/pkg/router"
	"github.com/containrrr/shoutrrr/pkg/types"
	"github.com/sirupsen/logrus"
)

// Notifier fans user-facing alerts out to external services via
// Shoutrrr. Delivery is best effort: failures are logged, never
// propagated to the caller.
type Notifier struct {
	sr *router.ServiceRouter
}

// NewNotifier initializes a Notifier for the given Shoutrrr URLs.
func NewNotifier(urls []string) (*Notifier, error) {
	sr, err := router.New(nil, urls...)
	if err != nil {
		return nil, err
	}
	return &Notifier{sr: sr}, nil
}

// Send delivers a message to all configured services. A nil Notifier
// is a no-op, so callers need not guard the optional case.
func (n *Notifier) Send(title, message string) {
	if n == nil {
		return
	}

	params := types.Params{
		"title": title,
	}
	for _, err := range n.sr.Send(message, &params) {
		if err != nil {
			logrus.WithError(err).Error("Failed to send notification")
		}
	}
}
