package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"crypto-signals/internal/dto"
	"crypto-signals/internal/repository"
)

func (h *HttpAPIHandler) SetupSignals(base *echo.Group) {
	v1 := base.Group("/v1/signals")
	{
		v1.GET("/latest", h.GetLatestSignals)
		v1.GET("/:id", h.GetSignal)
		v1.POST("/refresh", h.RefreshSignals)
	}
}

func (h *HttpAPIHandler) GetLatestSignals(c echo.Context) error {
	symbol := c.QueryParam("symbol")

	signals, err := h.service.SignalService.GetLatestSignals(c.Request().Context(), symbol)
	if err != nil {
		response := dto.NewBaseResponse(http.StatusInternalServerError, err.Error(), nil)
		return c.JSON(response.Code, response)
	}

	response := dto.NewSuccessResponse("Latest signals", signals)
	return c.JSON(response.Code, response)
}

func (h *HttpAPIHandler) GetSignal(c echo.Context) error {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		response := dto.NewBadRequestResponse("invalid signal id")
		return c.JSON(response.Code, response)
	}

	signal, err := h.service.SignalService.GetSignal(c.Request().Context(), uint(id))
	if err != nil {
		if errors.Is(err, repository.ErrSignalNotFound) {
			response := dto.NewBaseResponse(http.StatusNotFound, "signal not found", nil)
			return c.JSON(response.Code, response)
		}
		response := dto.NewBaseResponse(http.StatusInternalServerError, err.Error(), nil)
		return c.JSON(response.Code, response)
	}

	response := dto.NewSuccessResponse("Signal detail", signal)
	return c.JSON(response.Code, response)
}

// RefreshSignals acknowledges the enqueue immediately; the per-symbol
// outcome is observed via the live connection or a later read.
func (h *HttpAPIHandler) RefreshSignals(c echo.Context) error {
	var req dto.RefreshRequest
	if err := c.Bind(&req); err != nil {
		response := dto.NewBadRequestResponse("invalid request body")
		return c.JSON(response.Code, response)
	}
	if err := h.validator.Struct(req); err != nil {
		response := dto.NewBadRequestResponse(err.Error())
		return c.JSON(response.Code, response)
	}

	accepted, skipped := h.service.PipelineService.RequestRefresh(c.Request().Context(), req.Symbols)
	response := dto.NewBaseResponse(http.StatusAccepted, "Refresh queued", dto.RefreshResponse{
		Accepted: accepted,
		Skipped:  skipped,
	})
	return c.JSON(response.Code, response)
}
