// Package notification delivers out-of-band alerts through shoutrrr
// service URLs (telegram, discord, smtp, ...). An empty URL list keeps
// the notifier as a silent no-op so callers never branch on config.
package notification

import (
	"context"
	"log/slog"
	"time"

	"github.com/nicholas-fedor/shoutrrr"
	"github.com/nicholas-fedor/shoutrrr/pkg/router"
	"github.com/nicholas-fedor/shoutrrr/pkg/types"

	"github.com/adityasharma0903/CCTVattendance/internal/conf"
	"github.com/adityasharma0903/CCTVattendance/internal/errors"
	"github.com/adityasharma0903/CCTVattendance/internal/logging"
)

// Notifier fans one alert out to every configured service URL.
type Notifier struct {
	sender  *router.ServiceRouter
	timeout time.Duration
	logger  *slog.Logger
}

// New creates a notifier. With no URLs configured the returned notifier
// silently drops everything.
func New(settings *conf.NotificationSettings) (*Notifier, error) {
	n := &Notifier{
		timeout: settings.Timeout,
		logger:  logging.ForService("notification"),
	}
	if len(settings.Urls) == 0 {
		return n, nil
	}

	sender, err := shoutrrr.CreateSender(settings.Urls...)
	if err != nil {
		return nil, errors.New(err).
			Component("notification").
			Category(errors.CategoryConfiguration).
			Build()
	}
	n.sender = sender
	return n, nil
}

// Send delivers one alert to all services, bounded by the configured
// timeout and the context. Partial delivery failures are reported as a
// single error after every service was attempted.
func (n *Notifier) Send(ctx context.Context, title, message string) error {
	if n.sender == nil {
		return nil
	}

	if n.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, n.timeout)
		defer cancel()
	}

	done := make(chan error, 1)
	go func() {
		done <- n.firstError(n.sender.Send(message, &types.Params{"title": title}))
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return errors.New(ctx.Err()).
			Component("notification").
			Category(errors.CategoryNotification).
			Build()
	}
}

func (n *Notifier) firstError(errs []error) error {
	var first error
	for _, err := range errs {
		if err == nil {
			continue
		}
		n.logger.Warn("notification delivery failed", "error", err)
		if first == nil {
			first = err
		}
	}
	if first == nil {
		return nil
	}
	return errors.New(first).
		Component("notification").
		Category(errors.CategoryNotification).
		Build()
}
