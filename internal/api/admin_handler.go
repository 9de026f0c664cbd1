package api

import (
	"net/http"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/Checker-Finance/swap-engine/internal/service"
)

// AdminHandler serves the operator surface: parameter changes, the circuit
// breaker, the blocklist, fee withdrawal and agent management. Role checks
// (owner vs operator) happen against the wallet named in the X-Wallet header
// after the shared operator-key middleware has admitted the request.
type AdminHandler struct {
	Logger  *zap.Logger
	Service *service.Service
}

// OperatorKeyMiddleware rejects requests without the shared operator key.
func OperatorKeyMiddleware(key string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if key == "" || c.Get("X-Operator-Key") != key {
			return c.Status(http.StatusUnauthorized).JSON(fiber.Map{"error": "invalid operator key"})
		}
		return c.Next()
	}
}

func caller(c *fiber.Ctx) string {
	return c.Get("X-Wallet")
}

// SetFees godoc
func (h *AdminHandler) SetFees(c *fiber.Ctx) error {
	var req SetFeesRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	eng := h.Service.Engine()
	if err := eng.Gate().RequireOwner(caller(c)); err != nil {
		return fail(c, err)
	}
	if err := eng.Params().SetFees(req.MarketFeeBps, req.FixedFeeBps); err != nil {
		return fail(c, err)
	}
	h.Logger.Info("admin.fees_updated",
		zap.Int64("market_fee_bps", req.MarketFeeBps),
		zap.Int64("fixed_fee_bps", req.FixedFeeBps))
	return c.SendStatus(http.StatusNoContent)
}

// SetCashback godoc
func (h *AdminHandler) SetCashback(c *fiber.Ctx) error {
	var req SetCashbackRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	eng := h.Service.Engine()
	if err := eng.Gate().RequireOwner(caller(c)); err != nil {
		return fail(c, err)
	}
	if err := eng.Params().SetCashback(req.CashbackPct); err != nil {
		return fail(c, err)
	}
	h.Logger.Info("admin.cashback_updated", zap.Int64("cashback_pct", req.CashbackPct))
	return c.SendStatus(http.StatusNoContent)
}

// SetMinimums godoc
func (h *AdminHandler) SetMinimums(c *fiber.Ctx) error {
	var req SetMinimumsRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	eng := h.Service.Engine()
	if err := eng.Gate().RequireOwner(caller(c)); err != nil {
		return fail(c, err)
	}
	if err := eng.Params().SetMinimums(req.MinQuoteMarket, req.MinQuoteFixed); err != nil {
		return fail(c, err)
	}
	return c.SendStatus(http.StatusNoContent)
}

// SetThreshold godoc
func (h *AdminHandler) SetThreshold(c *fiber.Ctx) error {
	var req SetThresholdRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	eng := h.Service.Engine()
	if err := eng.Gate().RequireOwner(caller(c)); err != nil {
		return fail(c, err)
	}
	if err := eng.Params().SetLargeOrderThreshold(req.LargeOrderThreshold); err != nil {
		return fail(c, err)
	}
	return c.SendStatus(http.StatusNoContent)
}

// Pause godoc
func (h *AdminHandler) Pause(c *fiber.Ctx) error {
	if err := h.Service.Engine().Gate().Pause(caller(c)); err != nil {
		return fail(c, err)
	}
	h.Logger.Warn("admin.trading_paused", zap.String("caller", caller(c)))
	return c.SendStatus(http.StatusNoContent)
}

// Resume godoc
func (h *AdminHandler) Resume(c *fiber.Ctx) error {
	if err := h.Service.Engine().Gate().Resume(caller(c)); err != nil {
		return fail(c, err)
	}
	h.Logger.Info("admin.trading_resumed", zap.String("caller", caller(c)))
	return c.SendStatus(http.StatusNoContent)
}

// WithdrawFees godoc
func (h *AdminHandler) WithdrawFees(c *fiber.Ctx) error {
	var req WithdrawRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	if req.To == "" {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "missing destination"})
	}
	amount, err := h.Service.Engine().WithdrawFees(c.Context(), caller(c), req.To)
	if err != nil {
		return fail(c, err)
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"withdrawn": amount})
}

// BlockWallet godoc
func (h *AdminHandler) BlockWallet(c *fiber.Ctx) error {
	if err := h.Service.Engine().Gate().BlockWallet(caller(c), c.Params("wallet")); err != nil {
		return fail(c, err)
	}
	h.Logger.Warn("admin.wallet_blocked", zap.String("wallet", c.Params("wallet")))
	return c.SendStatus(http.StatusNoContent)
}

// UnblockWallet godoc
func (h *AdminHandler) UnblockWallet(c *fiber.Ctx) error {
	if err := h.Service.Engine().Gate().UnblockWallet(caller(c), c.Params("wallet")); err != nil {
		return fail(c, err)
	}
	return c.SendStatus(http.StatusNoContent)
}

// AddOperator godoc
func (h *AdminHandler) AddOperator(c *fiber.Ctx) error {
	if err := h.Service.Engine().Gate().AddOperator(caller(c), c.Params("wallet")); err != nil {
		return fail(c, err)
	}
	return c.SendStatus(http.StatusNoContent)
}

// RemoveOperator godoc
func (h *AdminHandler) RemoveOperator(c *fiber.Ctx) error {
	if err := h.Service.Engine().Gate().RemoveOperator(caller(c), c.Params("wallet")); err != nil {
		return fail(c, err)
	}
	return c.SendStatus(http.StatusNoContent)
}

// RegisterAgent godoc
func (h *AdminHandler) RegisterAgent(c *fiber.Ctx) error {
	var req RegisterAgentRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	if err := h.Service.RegisterAgent(c.Context(), caller(c), req.Wallet, req.CommissionRateBps); err != nil {
		return fail(c, err)
	}
	return c.SendStatus(http.StatusCreated)
}

// ListAgents godoc
func (h *AdminHandler) ListAgents(c *fiber.Ctx) error {
	agents, err := h.Service.Agents(caller(c))
	if err != nil {
		return fail(c, err)
	}
	return c.Status(http.StatusOK).JSON(agents)
}

// SuspendAgent godoc
func (h *AdminHandler) SuspendAgent(c *fiber.Ctx) error {
	if err := h.Service.SuspendAgent(c.Context(), caller(c), c.Params("wallet")); err != nil {
		return fail(c, err)
	}
	return c.SendStatus(http.StatusNoContent)
}

// ResumeAgent godoc
func (h *AdminHandler) ResumeAgent(c *fiber.Ctx) error {
	if err := h.Service.ResumeAgent(c.Context(), caller(c), c.Params("wallet")); err != nil {
		return fail(c, err)
	}
	return c.SendStatus(http.StatusNoContent)
}

// DeleteAgent godoc
func (h *AdminHandler) DeleteAgent(c *fiber.Ctx) error {
	if err := h.Service.DeleteAgent(c.Context(), caller(c), c.Params("wallet")); err != nil {
		return fail(c, err)
	}
	return c.SendStatus(http.StatusNoContent)
}

// AssignClient godoc
func (h *AdminHandler) AssignClient(c *fiber.Ctx) error {
	var req AssignClientRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	if err := h.Service.AssignClient(caller(c), req.Client, req.Agent); err != nil {
		return fail(c, err)
	}
	return c.SendStatus(http.StatusNoContent)
}

// UnassignClient godoc
func (h *AdminHandler) UnassignClient(c *fiber.Ctx) error {
	if err := h.Service.UnassignClient(caller(c), c.Params("client")); err != nil {
		return fail(c, err)
	}
	return c.SendStatus(http.StatusNoContent)
}
