package http

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"crypto-signals/internal/dto"
	"crypto-signals/internal/exchange"
	"crypto-signals/internal/repository"
	"crypto-signals/internal/service"
)

func (h *HttpAPIHandler) SetupPositions(base *echo.Group) {
	v1 := base.Group("/v1/positions")
	{
		v1.GET("", h.GetPositions)
		v1.POST("/execute", h.ExecuteSignal)
		v1.POST("/:id/close", h.ClosePosition)
	}
}

// userFromRequest resolves the bearer token to a user id.
func (h *HttpAPIHandler) userFromRequest(c echo.Context) (uint, error) {
	token := strings.TrimPrefix(c.Request().Header.Get("Authorization"), "Bearer ")
	if token == "" {
		return 0, errors.New("missing authorization token")
	}
	return h.auth.Authenticate(c.Request().Context(), token)
}

func (h *HttpAPIHandler) GetPositions(c echo.Context) error {
	userID, err := h.userFromRequest(c)
	if err != nil {
		response := dto.NewBaseResponse(http.StatusUnauthorized, err.Error(), nil)
		return c.JSON(response.Code, response)
	}

	positions, err := h.service.ExecutionService.GetPositions(c.Request().Context(), userID)
	if err != nil {
		response := dto.NewBaseResponse(http.StatusInternalServerError, err.Error(), nil)
		return c.JSON(response.Code, response)
	}

	response := dto.NewSuccessResponse("Positions", positions)
	return c.JSON(response.Code, response)
}

// ExecuteSignal blocks until a terminal submit outcome is known and maps the
// error taxonomy onto HTTP statuses: conflicts and client rejections report
// that nothing happened, a failed status means the outcome is unconfirmed.
func (h *HttpAPIHandler) ExecuteSignal(c echo.Context) error {
	userID, err := h.userFromRequest(c)
	if err != nil {
		response := dto.NewBaseResponse(http.StatusUnauthorized, err.Error(), nil)
		return c.JSON(response.Code, response)
	}

	var req dto.ExecuteSignalRequest
	if err := c.Bind(&req); err != nil {
		response := dto.NewBadRequestResponse("invalid request body")
		return c.JSON(response.Code, response)
	}
	if err := h.validator.Struct(req); err != nil {
		response := dto.NewBadRequestResponse(err.Error())
		return c.JSON(response.Code, response)
	}

	position, err := h.service.ExecutionService.ExecuteSignal(c.Request().Context(), userID, req)
	if err != nil {
		switch {
		case service.IsConflict(err):
			response := dto.NewBaseResponse(http.StatusConflict, err.Error(), nil)
			return c.JSON(response.Code, response)
		case errors.Is(err, service.ErrSubscriptionRequired):
			response := dto.NewBaseResponse(http.StatusForbidden, err.Error(), nil)
			return c.JSON(response.Code, response)
		case errors.Is(err, service.ErrSignalNotActive), errors.Is(err, service.ErrSignalExpired):
			response := dto.NewBadRequestResponse(err.Error())
			return c.JSON(response.Code, response)
		case errors.Is(err, repository.ErrSignalNotFound):
			response := dto.NewBaseResponse(http.StatusNotFound, err.Error(), nil)
			return c.JSON(response.Code, response)
		case exchange.IsClient(err):
			response := dto.NewBadRequestResponse(err.Error())
			return c.JSON(response.Code, response)
		default:
			response := dto.NewBaseResponse(http.StatusInternalServerError, err.Error(), nil)
			return c.JSON(response.Code, response)
		}
	}

	message := "Order " + position.Status
	if position.Status == dto.StatusFailed {
		message = "Order outcome unconfirmed, poll positions to reconcile"
	}
	response := dto.NewSuccessResponse(message, position)
	return c.JSON(response.Code, response)
}

func (h *HttpAPIHandler) ClosePosition(c echo.Context) error {
	userID, err := h.userFromRequest(c)
	if err != nil {
		response := dto.NewBaseResponse(http.StatusUnauthorized, err.Error(), nil)
		return c.JSON(response.Code, response)
	}

	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		response := dto.NewBadRequestResponse("invalid position id")
		return c.JSON(response.Code, response)
	}

	var req dto.ClosePositionRequest
	if err := c.Bind(&req); err != nil {
		response := dto.NewBadRequestResponse("invalid request body")
		return c.JSON(response.Code, response)
	}
	if err := h.validator.Struct(req); err != nil {
		response := dto.NewBadRequestResponse(err.Error())
		return c.JSON(response.Code, response)
	}

	position, err := h.service.ExecutionService.ClosePosition(c.Request().Context(), userID, uint(id), req.ExitPrice)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrPositionNotFound):
			response := dto.NewBaseResponse(http.StatusNotFound, err.Error(), nil)
			return c.JSON(response.Code, response)
		case errors.Is(err, service.ErrPositionNotOpen):
			response := dto.NewBadRequestResponse(err.Error())
			return c.JSON(response.Code, response)
		default:
			response := dto.NewBaseResponse(http.StatusInternalServerError, err.Error(), nil)
			return c.JSON(response.Code, response)
		}
	}

	response := dto.NewSuccessResponse("Position closed", position)
	return c.JSON(response.Code, response)
}
