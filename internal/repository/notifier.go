package repository

import (
	"context"

	"FinSignal/internal/domain/models"
	applogger "FinSignal/pkg/logger"
)

// Publisher is the part of pkg/kafka.Producer used for alerts.
type Publisher interface {
	Publish(ctx context.Context, key []byte, value interface{}) error
	Close() error
}

// KafkaNotifier publishes alerts keyed by symbol.
type KafkaNotifier struct {
	pub Publisher
}

func NewKafkaNotifier(pub Publisher) *KafkaNotifier {
	return &KafkaNotifier{pub: pub}
}

func (n *KafkaNotifier) Notify(ctx context.Context, alert models.Alert) error {
	return n.pub.Publish(ctx, []byte(alert.Signal.Symbol), alert)
}

func (n *KafkaNotifier) Close() error { return n.pub.Close() }

// LogNotifier writes alerts to the application log.
type LogNotifier struct {
	l *applogger.Logger
}

func NewLogNotifier(l *applogger.Logger) *LogNotifier {
	return &LogNotifier{l: l}
}

func (n *LogNotifier) Notify(_ context.Context, alert models.Alert) error {
	n.l.Info("signal alert",
		applogger.String("text", alert.Text),
		applogger.String("id", alert.Signal.ID),
	)
	return nil
}

func (n *LogNotifier) Close() error { return nil }
