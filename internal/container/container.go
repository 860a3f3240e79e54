// Package container holds the constructed infrastructure the router wires modules from.
package container

import (
	"github.com/elastic/go-elasticsearch/v8"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/swordot/portal/config"
	"github.com/swordot/portal/internal/application"
	"github.com/swordot/portal/internal/domain/repository"
	"github.com/swordot/portal/internal/infrastructure/elastic"
	"github.com/swordot/portal/internal/metrics"
	"github.com/swordot/portal/pkg/helpers"
)

// Container is built once in main and passed to router.InitModules. Optional
// infrastructure (PGPool, Redis, ES, RabbitPub, Gatherer) may be nil.
type Container struct {
	Config *config.Config
	Logger *logrus.Logger

	PGPool    *pgxpool.Pool
	Redis     *redis.Client
	ES        *elasticsearch.Client
	RabbitPub *helpers.RabbitPublisher

	Accounts repository.AccountRepository
	Hasher   application.Hasher
	JWT      *helpers.JWTManager

	Metrics  metrics.Recorder
	Gatherer prometheus.Gatherer
}

// AccountIndex returns the search index, or nil when Elasticsearch is not configured.
func (c *Container) AccountIndex() application.AccountIndex {
	if c.ES == nil || !c.Config.SearchEnabled {
		return nil
	}
	return elastic.NewAccountIndex(c.ES, c.Config.ESAccountsIndex)
}

// EmailPublisher returns the welcome-mail queue, or nil when sending is off.
func (c *Container) EmailPublisher() application.EmailPublisher {
	if c.RabbitPub == nil || !c.Config.MailSendEnabled {
		return nil
	}
	return c.RabbitPub
}

// Recorder never returns nil.
func (c *Container) Recorder() metrics.Recorder {
	if c.Metrics == nil {
		return metrics.Nop{}
	}
	return c.Metrics
}
