package cli

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shaiso/Foundry/internal/domain"
	"github.com/shaiso/Foundry/internal/mq"
)

// brokerTimeout ограничивает подключение и публикацию заявки.
const brokerTimeout = 10 * time.Second

// BrokerSubmitter публикует заявки job.submitted напрямую в брокер.
// Сервер принимает их своим consumer'ом, минуя HTTP API.
type BrokerSubmitter interface {
	PublishJobSubmitted(ctx context.Context, spec domain.JobSpec) error
	Close() error
}

// DialFunc открывает BrokerSubmitter по amqp:// адресу.
type DialFunc func(ctx context.Context, url string) (BrokerSubmitter, error)

type brokerSubmitter struct {
	*mq.Publisher
	conn *mq.Connection
}

func (s *brokerSubmitter) Close() error {
	return s.conn.Close()
}

// DialBroker подключается к брокеру и объявляет топологию foundry.jobs,
// чтобы заявка не потерялась до первого запуска сервера.
func DialBroker(ctx context.Context, url string) (BrokerSubmitter, error) {
	logger := slog.New(slog.DiscardHandler)

	conn, err := mq.NewConnection(mq.ConnectionConfig{URL: url, Logger: logger})
	if err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}

	if err := mq.SetupTopology(ctx, conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("setup topology: %w", err)
	}

	return &brokerSubmitter{Publisher: mq.NewPublisher(conn, logger), conn: conn}, nil
}

// ToDomain переводит запрос в domain.JobSpec.
func (r JobSpecRequest) ToDomain() domain.JobSpec {
	stages := make([]domain.StageName, len(r.Stages))
	for i, s := range r.Stages {
		stages[i] = domain.StageName(s)
	}

	return domain.JobSpec{
		RequiredCapabilities: r.RequiredCapabilities,
		Priority:             r.Priority,
		WorkerCount:          r.WorkerCount,
		Payload:              r.Payload,
		Stages:               stages,
		TimeoutSec:           r.TimeoutSec,
	}
}

// publishToBroker валидирует spec локально и публикует его: ответа с ID
// через брокер нет, поэтому ошибки формата ловятся до отправки.
func publishToBroker(dial DialFunc, url string, req JobSpecRequest) error {
	spec := req.ToDomain()
	if err := spec.Validate(); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), brokerTimeout)
	defer cancel()

	pub, err := dial(ctx, url)
	if err != nil {
		return err
	}
	defer pub.Close()

	if err := pub.PublishJobSubmitted(ctx, spec); err != nil {
		return fmt.Errorf("publish job spec: %w", err)
	}
	return nil
}
