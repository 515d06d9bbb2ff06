package app

import (
	"encoding/hex"
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/womat/debug"

	"rc433/pkg/pulsebuffer"
	"rc433/pkg/transmitter"
)

// sendRequest is the body of a send request, Data is hex encoded.
type sendRequest struct {
	Protocol    string `json:"protocol"`
	Data        string `json:"data"`
	Bits        int    `json:"bits"`
	Repetitions int    `json:"repetitions"`
}

// runWebServer starts the applications web server and listens for web requests.
//  It's designed to run in a separate go function to not block the main go function.
//  e.g.: go runWebServer()
//  See app.Run()
func (app *App) runWebServer() {
	err := app.web.Listen(app.urlParsed.Host)
	debug.ErrorLog.Print(err)
}

// HandleData returns the last received packet of every protocol.
func (app *App) HandleData() fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		debug.InfoLog.Print("web request data")

		return ctx.JSON(app.Packets())
	}
}

// HandleStats returns the pulse buffer counters and the statistics of the last transmission.
func (app *App) HandleStats() fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		debug.InfoLog.Print("web request stats")

		var buffer pulsebuffer.Stats
		if app.buffer != nil {
			buffer = app.buffer.Stats()
		}

		return ctx.JSON(struct {
			Buffer       pulsebuffer.Stats      `json:"buffer"`
			Transmission transmitter.Statistics `json:"transmission"`
		}{
			Buffer:       buffer,
			Transmission: app.LastTransmission(),
		})
	}
}

// HandleSend transmits the packet of the request body.
//  example body: {"protocol":"emos-a","data":"a5a5a5","bits":24,"repetitions":4}
func (app *App) HandleSend() fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		debug.InfoLog.Print("web request send")

		var req sendRequest
		if err := ctx.BodyParser(&req); err != nil {
			return ctx.Status(http.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
		}

		data, err := hex.DecodeString(req.Data)
		if err != nil {
			return ctx.Status(http.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
		}

		stats, err := app.Send(req.Protocol, data, req.Bits, req.Repetitions)
		if err != nil {
			debug.ErrorLog.Printf("send %q: %v", req.Protocol, err)
			return ctx.Status(http.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
		}

		return ctx.JSON(stats)
	}
}
