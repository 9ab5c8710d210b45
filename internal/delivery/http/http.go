package http

import (
	"context"

	goValidator "github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"crypto-signals/internal/contract"
	"crypto-signals/internal/service"
)

type HttpAPIHandler struct {
	echo      *echo.Echo
	validator *goValidator.Validate
	service   *service.Service
	auth      contract.TokenAuthenticator
}

func NewHttpAPIHandler(ctx context.Context, echo *echo.Echo, validator *goValidator.Validate, service *service.Service, auth contract.TokenAuthenticator) *HttpAPIHandler {
	return &HttpAPIHandler{
		echo:      echo,
		validator: validator,
		service:   service,
		auth:      auth,
	}
}

func (h *HttpAPIHandler) SetupRoutes() {
	base := h.echo.Group("/api")
	h.SetupSignals(base)
	h.SetupPositions(base)
}
