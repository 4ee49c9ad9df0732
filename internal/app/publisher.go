package app

import (
	"context"
	"errors"

	"quiz-arena/internal/domain"
)

// MultiPublisher fans an event out to several publishers. Every publisher is
// attempted; failures are joined.
type MultiPublisher []Publisher

func (m MultiPublisher) Publish(ctx context.Context, topic string, ev domain.Event) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, topic, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
