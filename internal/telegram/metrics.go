package telegram

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	messagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "timeline_watch_telegram_messages_total",
			Help: "Telegram messages by result (sent, failed, retry).",
		},
		[]string{"result"},
	)
	recipientsGauge = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "timeline_watch_telegram_recipients",
			Help: "Number of chats notifications are delivered to.",
		},
	)
)
