package app

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/womat/debug"
)

// VERSION is MAJOR.MINOR.PATCH+YYYYMMDD, the date is the first of the release month.
// MODULE names the mqtt client, the default config file and the cli.
const (
	VERSION = "1.0.0+20261001"
	MODULE  = "rc433"
)

// HandleVersion reports the version of the running receiver.
func (app *App) HandleVersion() fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		debug.InfoLog.Print("web request version")

		return ctx.JSON(fiber.Map{
			"version":     VERSION,
			"description": MODULE,
			"about":       Version(),
		})
	}
}

// Version returns e.g. "rc433 V1.0.0".
func Version() string {
	return strings.TrimSpace(MODULE + " V" + strings.Split(VERSION, "+")[0])
}
