package service

import (
    "context"
    "encoding/json"
    "time"

    amqp "github.com/rabbitmq/amqp091-go"
    "go.uber.org/zap"

    "github.com/iliyamo/authledger/internal/queue"
)

// Publisher announces recorded versions to other systems.
type Publisher interface {
    PublishVersionRecorded(ctx context.Context, ev queue.VersionRecordedEvent) error
}

// NopPublisher drops every event.
type NopPublisher struct{}

func (NopPublisher) PublishVersionRecorded(context.Context, queue.VersionRecordedEvent) error {
    return nil
}

// AMQPPublisher publishes events to RabbitMQ. Each publish dials its own
// connection, so a broker outage never outlives the failing call.
type AMQPPublisher struct {
    URL         string
    DialTimeout time.Duration // zero means 3s
    Log         *zap.Logger
}

// PublishVersionRecorded sends ev to the durable version.recorded queue as
// a persistent JSON message. Errors are logged and returned so the caller
// can decide to ignore them.
func (p *AMQPPublisher) PublishVersionRecorded(ctx context.Context, ev queue.VersionRecordedEvent) error {
    log := p.Log
    if log == nil {
        log = zap.NewNop()
    }
    timeout := p.DialTimeout
    if timeout <= 0 {
        timeout = 3 * time.Second
    }
    conn, err := amqp.DialConfig(p.URL, amqp.Config{
        Heartbeat: 10 * time.Second,
        Locale:    "en_US",
        Dial:      amqp.DefaultDial(timeout),
    })
    if err != nil {
        log.Warn("rabbitmq: dial failed", zap.Error(err))
        return err
    }
    defer func() { _ = conn.Close() }()

    ch, err := conn.Channel()
    if err != nil {
        log.Warn("rabbitmq: channel open failed", zap.Error(err))
        return err
    }
    defer func() { _ = ch.Close() }()

    // idempotent; durable so messages survive broker restarts
    if _, err := ch.QueueDeclare(
        queue.VersionRecordedQueue, // name
        true,                       // durable
        false,                      // autoDelete
        false,                      // exclusive
        false,                      // noWait
        nil,                        // args
    ); err != nil {
        log.Warn("rabbitmq: queue declare failed", zap.Error(err))
        return err
    }

    body, err := json.Marshal(ev)
    if err != nil {
        return err
    }
    pub := amqp.Publishing{
        ContentType:  "application/json",
        DeliveryMode: amqp.Persistent,
        Timestamp:    time.Now().UTC(),
        Body:         body,
    }
    if err := ch.PublishWithContext(ctx, "", queue.VersionRecordedQueue, false, false, pub); err != nil {
        log.Warn("rabbitmq: publish failed", zap.Error(err))
        return err
    }
    return nil
}
