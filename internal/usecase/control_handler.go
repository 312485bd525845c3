package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"AnomalyReplay/internal/domain/models"
	domrepo "AnomalyReplay/internal/domain/repository"
	pkgkafka "AnomalyReplay/pkg/kafka"
	applogger "AnomalyReplay/pkg/logger"
)

// Controller is the control surface of the playback driver.
type Controller interface {
	Play(ctx context.Context) (models.PlaybackStatus, error)
	Pause(ctx context.Context) (models.PlaybackStatus, error)
	Stop(ctx context.Context) (models.PlaybackStatus, error)
	SetSpeed(ctx context.Context, speed float64) (models.PlaybackStatus, error)
	Status(ctx context.Context) (models.PlaybackStatus, error)
	View(ctx context.Context, zoom models.TimeRange) (*models.View, error)
}

var _ Controller = (*Driver)(nil)

// ControlHandler applies remote control commands read from Kafka.
type ControlHandler struct {
	topic   string
	ctrl    Controller
	metrics domrepo.Metrics
	log     *applogger.Logger
}

func NewControlHandler(topic string, ctrl Controller, metrics domrepo.Metrics, log *applogger.Logger) *ControlHandler {
	if log == nil {
		log = applogger.Nop()
	}
	return &ControlHandler{topic: topic, ctrl: ctrl, metrics: metrics, log: log.Component("control_consumer")}
}

func (h *ControlHandler) Topic() string { return h.topic }

// Handle decodes {"action": "play|pause|stop|speed", "speed": x}. Malformed
// commands are permanent failures; a closed driver is retried.
func (h *ControlHandler) Handle(ctx context.Context, b []byte) error {
	var cmd models.ControlCommand
	if err := json.Unmarshal(b, &cmd); err != nil {
		h.metrics.RecordError("control_unmarshal")
		return pkgkafka.Permanent(fmt.Errorf("decode control command: %w", err))
	}

	start := time.Now()
	st, err := Apply(ctx, h.ctrl, cmd)
	h.metrics.RecordLatency("control_kafka", time.Since(start).Seconds())
	if err != nil {
		h.metrics.RecordError("control_apply")
		if errors.Is(err, ErrDriverClosed) {
			return err
		}
		h.log.Warn("control rejected", applogger.Any("command", cmd), applogger.Error(err))
		return pkgkafka.Permanent(err)
	}
	h.log.Info("control applied",
		applogger.String("action", cmd.Action),
		applogger.String("state", string(st.State)),
		applogger.Int("index", st.Index),
		applogger.String("trace_id", pkgkafka.TraceID(ctx)),
	)
	return nil
}

// Apply dispatches one command to ctrl.
func Apply(ctx context.Context, ctrl Controller, cmd models.ControlCommand) (models.PlaybackStatus, error) {
	switch strings.ToLower(strings.TrimSpace(cmd.Action)) {
	case "play":
		return ctrl.Play(ctx)
	case "pause":
		return ctrl.Pause(ctx)
	case "stop":
		return ctrl.Stop(ctx)
	case "speed":
		return ctrl.SetSpeed(ctx, cmd.Speed)
	default:
		return models.PlaybackStatus{}, fmt.Errorf("unknown action %q", cmd.Action)
	}
}

var _ pkgkafka.MessageHandler = (*ControlHandler)(nil)
