package api

import (
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/Checker-Finance/swap-engine/internal/service"
	"github.com/Checker-Finance/swap-engine/internal/store"
	"github.com/Checker-Finance/swap-engine/pkg/model"
)

type Handler struct {
	Logger  *zap.Logger
	Service *service.Service
	Store   store.Store
}

// CreateTrade godoc
func (h *Handler) CreateTrade(c *fiber.Ctx) error {
	var req CreateTradeRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	cmd := model.SubmitTradeCommand{
		CommandID:       model.NewUUID().String(),
		Creator:         req.Creator,
		ReferenceAmount: req.ReferenceAmount,
		QuoteAmount:     req.QuoteAmount,
		Price:           req.Price,
		Direction:       req.Direction,
		PricingMode:     req.PricingMode,
		SettlementAddr:  req.SettlementAddr,
		Timestamp:       time.Now().UTC(),
	}

	view, err := h.Service.CreateTrade(c.Context(), cmd)
	if err != nil {
		h.Logger.Warn("api.create_trade_failed", zap.String("creator", req.Creator), zap.Error(err))
		return fail(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(view)
}

// ExecuteTrade godoc
func (h *Handler) ExecuteTrade(c *fiber.Ctx) error {
	tradeID := c.Params("id")
	var req ExecuteTradeRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	cmd := model.ExecuteTradeCommand{
		CommandID:  model.NewUUID().String(),
		TradeID:    tradeID,
		Taker:      req.Taker,
		FillAmount: req.FillAmount,
		Price:      req.Price,
		Timestamp:  time.Now().UTC(),
	}

	h.Logger.Info("attempting to execute trade", zap.String("trade_id", tradeID), zap.String("taker", req.Taker))
	fill, err := h.Service.ExecuteTrade(c.Context(), cmd)
	if err != nil {
		h.Logger.Warn("api.execute_trade_failed", zap.String("trade_id", tradeID), zap.Error(err))
		return fail(c, err)
	}

	return c.Status(http.StatusOK).JSON(fill)
}

// CancelTrade godoc
func (h *Handler) CancelTrade(c *fiber.Ctx) error {
	tradeID := c.Params("id")
	var req CancelTradeRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	cmd := model.CancelTradeCommand{
		CommandID: model.NewUUID().String(),
		TradeID:   tradeID,
		Caller:    req.Caller,
		Timestamp: time.Now().UTC(),
	}

	view, err := h.Service.CancelTrade(c.Context(), cmd)
	if err != nil {
		h.Logger.Warn("api.cancel_trade_failed", zap.String("trade_id", tradeID), zap.Error(err))
		return fail(c, err)
	}

	return c.Status(http.StatusOK).JSON(view)
}

// GetTrade godoc
func (h *Handler) GetTrade(c *fiber.Ctx) error {
	view, err := h.Service.GetTrade(c.Params("id"))
	if err != nil {
		return fail(c, err)
	}
	return c.Status(http.StatusOK).JSON(view)
}

// GetOpenOrders godoc
func (h *Handler) GetOpenOrders(c *fiber.Ctx) error {
	return c.Status(http.StatusOK).JSON(h.Service.OpenOrders(c.Context()))
}

// GetUserTrades godoc
func (h *Handler) GetUserTrades(c *fiber.Ctx) error {
	wallet := c.Params("wallet")
	if wallet == "" {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "missing wallet"})
	}
	return c.Status(http.StatusOK).JSON(h.Service.UserTrades(wallet))
}

// GetTradeFills godoc
func (h *Handler) GetTradeFills(c *fiber.Ctx) error {
	fills, err := h.Service.Fills(c.Context(), c.Params("id"))
	if err != nil {
		h.Logger.Error("api.get_fills_failed", zap.String("trade_id", c.Params("id")), zap.Error(err))
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.Status(http.StatusOK).JSON(fills)
}
