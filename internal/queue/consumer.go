package queue

import (
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "os"
    "path/filepath"
    "strings"
    "time"

    amqp "github.com/rabbitmq/amqp091-go"
    "go.uber.org/zap"
)

// AuditConsumer listens to the version.recorded queue and appends one
// line per event to an audit log file.
type AuditConsumer struct {
    URL     string
    LogPath string
    Log     *zap.Logger
}

// Run connects to the broker and consumes until ctx is cancelled. Broker
// failures trigger a reconnect with exponential backoff capped at 30s.
func (c *AuditConsumer) Run(ctx context.Context) error {
    backoff := time.Second
    for {
        conn, err := amqp.Dial(c.URL)
        if err != nil {
            c.Log.Warn("audit-consumer: dial failed", zap.Error(err), zap.Duration("retry_in", backoff))
            if err := wait(ctx, backoff); err != nil {
                return err
            }
            if backoff < 30*time.Second {
                backoff *= 2
            }
            continue
        }
        backoff = time.Second

        err = c.consume(ctx, conn)
        _ = conn.Close()
        if ctx.Err() != nil {
            return ctx.Err()
        }
        c.Log.Warn("audit-consumer: consume loop ended, reconnecting", zap.Error(err))
        if err := wait(ctx, 2*time.Second); err != nil {
            return err
        }
    }
}

func (c *AuditConsumer) consume(ctx context.Context, conn *amqp.Connection) error {
    ch, err := conn.Channel()
    if err != nil {
        return fmt.Errorf("channel open: %w", err)
    }
    defer func() { _ = ch.Close() }()

    if err := ch.Qos(50, 0, false); err != nil {
        c.Log.Warn("audit-consumer: set QoS failed", zap.Error(err))
    }
    if _, err := ch.QueueDeclare(VersionRecordedQueue, true, false, false, false, nil); err != nil {
        return fmt.Errorf("queue declare: %w", err)
    }
    msgs, err := ch.Consume(VersionRecordedQueue, "", false, false, false, false, nil)
    if err != nil {
        return fmt.Errorf("queue consume: %w", err)
    }

    for {
        var d amqp.Delivery
        var ok bool
        select {
        case <-ctx.Done():
            return ctx.Err()
        case d, ok = <-msgs:
        }
        if !ok {
            return errors.New("deliveries channel closed")
        }
        if err := c.Handle(d.Body); err != nil {
            c.Log.Error("audit-consumer: handle message failed", zap.Error(err))
            _ = d.Nack(false, false) // no requeue, avoids a hot loop on poison messages
            continue
        }
        _ = d.Ack(false)
    }
}

// Handle decodes one message body and appends it to the audit log.
func (c *AuditConsumer) Handle(body []byte) error {
    var ev VersionRecordedEvent
    if err := json.Unmarshal(body, &ev); err != nil {
        return fmt.Errorf("unmarshal: %w", err)
    }
    if ev.App == "" || ev.RegID == 0 {
        return errors.New("event without app or reg_id")
    }
    if dir := filepath.Dir(c.LogPath); dir != "." {
        if err := os.MkdirAll(dir, 0o755); err != nil {
            return fmt.Errorf("mkdir %s: %w", dir, err)
        }
    }
    f, err := os.OpenFile(c.LogPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
    if err != nil {
        return fmt.Errorf("open audit log: %w", err)
    }
    defer f.Close()

    if _, err := f.WriteString(FormatAuditLine(ev)); err != nil {
        return fmt.Errorf("write audit log: %w", err)
    }
    return nil
}

// FormatAuditLine renders an event as a single newline-terminated line.
func FormatAuditLine(ev VersionRecordedEvent) string {
    tables := "[]"
    if len(ev.Tables) > 0 {
        tables = "[" + strings.Join(ev.Tables, ",") + "]"
    }
    return fmt.Sprintf("[%s] Version recorded | app=%s | reg_id=%d | ver_id=%d | user_id=%d | hash=%s | tables=%s\n",
        ev.RecordedAt, ev.App, ev.RegID, ev.Seq, ev.UserID, ev.Hash, tables)
}

func wait(ctx context.Context, d time.Duration) error {
    t := time.NewTimer(d)
    defer t.Stop()
    select {
    case <-ctx.Done():
        return ctx.Err()
    case <-t.C:
        return nil
    }
}
