package api

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func RegisterRoutes(app *fiber.App, h *Handler, ah *AdminHandler, operatorKey string) {
	app.Get("/health", func(c *fiber.Ctx) error {
		if h.Store != nil {
			if err := h.Store.HealthCheck(c.Context()); err != nil {
				return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": err.Error()})
			}
		}
		return c.Status(fiber.StatusOK).SendString("ok")
	})
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	v1 := app.Group("/api/v1")
	v1.Post("/trades", h.CreateTrade)
	v1.Get("/trades/open", h.GetOpenOrders)
	v1.Get("/trades/:id", h.GetTrade)
	v1.Get("/trades/:id/fills", h.GetTradeFills)
	v1.Post("/trades/:id/execute", h.ExecuteTrade)
	v1.Post("/trades/:id/cancel", h.CancelTrade)
	v1.Get("/users/:wallet/trades", h.GetUserTrades)

	admin := v1.Group("/admin", OperatorKeyMiddleware(operatorKey))
	admin.Post("/fees", ah.SetFees)
	admin.Post("/cashback", ah.SetCashback)
	admin.Post("/minimums", ah.SetMinimums)
	admin.Post("/threshold", ah.SetThreshold)
	admin.Post("/pause", ah.Pause)
	admin.Post("/resume", ah.Resume)
	admin.Post("/withdraw", ah.WithdrawFees)
	admin.Post("/wallets/:wallet/block", ah.BlockWallet)
	admin.Post("/wallets/:wallet/unblock", ah.UnblockWallet)
	admin.Post("/operators/:wallet", ah.AddOperator)
	admin.Delete("/operators/:wallet", ah.RemoveOperator)
	admin.Get("/agents", ah.ListAgents)
	admin.Post("/agents", ah.RegisterAgent)
	admin.Post("/agents/:wallet/suspend", ah.SuspendAgent)
	admin.Post("/agents/:wallet/resume", ah.ResumeAgent)
	admin.Delete("/agents/:wallet", ah.DeleteAgent)
	admin.Post("/assignments", ah.AssignClient)
	admin.Delete("/assignments/:client", ah.UnassignClient)
}
