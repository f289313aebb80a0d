package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"github.com/shaiso/Foundry/internal/domain"
	"github.com/shaiso/Foundry/internal/mq"
)

// handleJobSubmitted обрабатывает заявку на job из jobs.submitted.
//
// Невалидный spec подтверждается и отбрасывается: повторная доставка
// его не исправит. Битый payload уходит в DLQ.
func (o *Orchestrator) handleJobSubmitted(ctx context.Context, delivery *mq.Delivery) error {
	payload, err := mq.ParsePayload[mq.JobSubmittedPayload](&delivery.Message)
	if err != nil {
		return fmt.Errorf("%w: parse job.submitted: %v", mq.ErrReject, err)
	}

	id, err := o.Submit(ctx, payload.Spec)
	switch {
	case errors.Is(err, domain.ErrInvalidJobSpec):
		o.logger.Warn("dropping invalid job spec",
			"message_id", delivery.Message.ID,
			"error", err,
		)
		return nil
	case err != nil:
		return err
	}

	o.logger.Debug("job accepted from queue",
		"message_id", delivery.Message.ID,
		"job_id", id,
	)
	return nil
}
