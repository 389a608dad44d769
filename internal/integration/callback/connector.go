package callback

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/futig/risk-report-backend/internal/config"
	"github.com/futig/risk-report-backend/internal/entity"
	"github.com/futig/risk-report-backend/internal/integration/common"
	pkghttp "github.com/futig/risk-report-backend/pkg/http"
	"github.com/grpc-ecosystem/go-grpc-middleware/logging/zap/ctxzap"
	"go.uber.org/zap"
)

type Connector struct {
	config    config.CallbackConnectorConfig
	connector *pkghttp.Connector
	logger    *zap.Logger
}

func NewConnector(
	cfg config.CallbackConnectorConfig,
	logger *zap.Logger,
) *Connector {
	return &Connector{
		connector: common.NewBaseConnector(cfg.HTTPClientConfig, logger),
		config:    cfg,
		logger:    logger,
	}
}

// SendReportDone sends the finished report to the specified callback URL
func (c *Connector) SendReportDone(ctx context.Context, callbackURL string, runID string, report *entity.GeneratedReport) {
	err := c.Send(ctx, callbackURL, runID, &entity.CallbackEvent{
		Event: entity.CallbackEventTypeReportDone,
		Data:  report,
	})
	if err != nil {
		ctxzap.Error(ctx, "failed to send report callback", zap.Error(err))
	}
}

// SendError sends an error event to the specified callback URL
func (c *Connector) SendError(ctx context.Context, callbackURL string, runID string, message string, details map[string]any) {
	err := c.Send(ctx, callbackURL, runID, &entity.CallbackEvent{
		Event: entity.CallbackEventTypeError,
		Data: &entity.CallbackErrorData{
			Error: entity.CallbackErrorDetails{
				Message: message,
				Details: details,
			},
		},
	})
	if err != nil {
		ctxzap.Error(ctx, "failed to send error callback", zap.Error(err))
	}
}

func (c *Connector) Send(ctx context.Context, callbackURL string, runID string, event *entity.CallbackEvent) error {
	if event.Timestamp == "" {
		event.Timestamp = time.Now().UTC().Format(time.RFC3339)
	}
	event.RunID = runID

	ctxzap.Debug(ctx, "sending callback event",
		zap.String("event_type", string(event.Event)),
		zap.String("callback_url", callbackURL),
		zap.String("run_id", runID),
		zap.String("timestamp", event.Timestamp),
	)

	opts := []pkghttp.RequestOpt{
		pkghttp.WithHeader("X-Request-ID", runID),
		pkghttp.WithURL(callbackURL),
	}

	err := retry.Do(func() error {
		return c.connector.DoRequest(ctx, http.MethodPost, "", event, nil, opts...)
	}, c.config.Retry.ToRetryOptions(ctx)...)
	if err != nil {
		return fmt.Errorf("failed to send callback, event_type: %s, url: %s, error: %w", string(event.Event), callbackURL, err)
	}

	ctxzap.Info(ctx, "callback sent successfully",
		zap.String("event_type", string(event.Event)),
		zap.String("callback_url", callbackURL),
		zap.String("run_id", runID),
	)
	return nil
}

// Sink returns an event sink that forwards the terminal events of one run to callbackURL.
func (c *Connector) Sink(callbackURL, runID string) *Sink {
	return &Sink{connector: c, callbackURL: callbackURL, runID: runID}
}

type Sink struct {
	connector   *Connector
	callbackURL string
	runID       string
}

// Emit delivers done and error events. Delivery outlives the cancellation of the run.
func (s *Sink) Emit(ctx context.Context, event entity.WorkflowEvent) {
	ctx = context.WithoutCancel(ctx)

	switch event.Type {
	case entity.EventDone:
		s.connector.SendReportDone(ctx, s.callbackURL, s.runID, event.Report)
	case entity.EventError:
		s.connector.SendError(ctx, s.callbackURL, s.runID, event.Message, nil)
	}
}
