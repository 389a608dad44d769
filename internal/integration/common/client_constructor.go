package common

import (
	"strings"

	"github.com/futig/risk-report-backend/internal/config"
	pkgHTTP "github.com/futig/risk-report-backend/pkg/http"
	"go.uber.org/zap"
)

const userAgent = "risk-report-backend/1.0"

func NewBaseConnector(cfg config.HTTPClientConfig, logger *zap.Logger, extra ...pkgHTTP.HttpOpts) *pkgHTTP.Connector {
	connCfg := &pkgHTTP.ConnectorConfig{
		Logger:  logger,
		BaseURL: strings.TrimRight(cfg.Url, "/"),
	}

	opts := []pkgHTTP.HttpOpts{
		pkgHTTP.WithRequestTimeout(cfg.RequestTimeout),
		pkgHTTP.WithConnClientTimeout(cfg.ConnTimeout),
		pkgHTTP.WithClientKeepAlive(cfg.KeepAlive),
		pkgHTTP.WithIdleConnTimeout(cfg.IdleConnTimeout),
		pkgHTTP.WithResponseHeaderTimeout(cfg.ResponseHeaderTimeout),
		pkgHTTP.WithRequestLogging(),
	}
	opts = append(opts, extra...)
	opts = append(opts, pkgHTTP.WithAuthToken(cfg.Token), pkgHTTP.WithUserAgent(userAgent))

	return pkgHTTP.NewConnector(connCfg, opts...)
}
