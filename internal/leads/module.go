// Package leads is the lead management module: CRUD, import, stats and
// score breakdowns over the leads table.
package leads

import (
	"sales_crm_backend/internal/events"
	apphttp "sales_crm_backend/internal/http"
	"sales_crm_backend/internal/leads/handler"
	"sales_crm_backend/internal/leads/management"
	"sales_crm_backend/internal/leads/repository"
	"sales_crm_backend/platform/config"
	"sales_crm_backend/platform/logger"
	"sales_crm_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Module implements http.Module for leads.
type Module struct {
	handler    *handler.Handler
	management *management.Service
	repo       *repository.Repository
}

func NewModule(pool *pgxpool.Pool, eventBus events.Bus, val *validator.Validator, cfg config.LeadsConfig, log *logger.Logger) *Module {
	repo := repository.New(pool)
	mgmt := management.New(repo, eventBus, log, cfg.GetPhoneDefaultRegion())

	return &Module{
		handler:    handler.New(mgmt, val),
		management: mgmt,
		repo:       repo,
	}
}

func (m *Module) Name() string {
	return "leads"
}

// Management exposes the service for other composition roots such as cmd/lead-rescore.
func (m *Module) Management() *management.Service {
	return m.management
}

// Repository exposes the lead repository for modules that write lead fields,
// such as follow-up scheduling.
func (m *Module) Repository() *repository.Repository {
	return m.repo
}

func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	m.handler.RegisterRoutes(ctx.Protected.Group("/leads"))
}

var _ apphttp.Module = (*Module)(nil)
