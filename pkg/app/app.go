package app

import (
	"net/url"
	"sync"

	"github.com/gofiber/fiber/v2"
	"github.com/womat/debug"

	"rc433/pkg/app/config"
	"rc433/pkg/mqtt"
	"rc433/pkg/pulsebuffer"
	"rc433/pkg/raspberry"
	"rc433/pkg/transmitter"
)

// App is the main application struct.
// App is where the application is wired up.
type App struct {
	// web is the fiber web framework instance
	web *fiber.App

	// config is the application configuration
	config *config.Config

	// urlParsed contains the parsed Config.Url parameter
	// and makes it easier to get params out of e.g.
	// url: https://0.0.0.0:7844/?minTls=1.2&bodyLimit=50MB
	urlParsed *url.URL

	// mqtt is the handler to the mqtt broker
	mqtt *mqtt.Handler

	// receiver watches the receiver gpio line
	receiver *raspberry.Receiver
	// buffer holds the edges between the line event handler and the decoders
	buffer *pulsebuffer.Buffer

	// packets are the last received packets per protocol
	packets struct {
		sync.Mutex
		data map[string]Packet
	}

	// tx serializes the transmissions
	tx struct {
		sync.Mutex
		pin         *raspberry.OutputPin
		transmitter *transmitter.Transmitter
		last        transmitter.Statistics
	}

	// shutdown signals application shutdown
	shutdown chan struct{}
	// done is closed when the receive loop is stopped, nil if it never started
	done chan struct{}
}

// New checks the Web server URL and initialize the main app structure
func New(config *config.Config) (*App, error) {
	u, err := url.Parse(config.Webserver.URL)
	if err != nil {
		debug.ErrorLog.Printf("Error parsing url %q: %s", config.Webserver.URL, err.Error())
		return &App{}, err
	}

	app := &App{
		config:    config,
		urlParsed: u,

		web:  fiber.New(),
		mqtt: mqtt.New(),

		shutdown: make(chan struct{}),
	}
	app.packets.data = map[string]Packet{}
	return app, nil
}

// Run starts the application.
func (app *App) Run() error {
	if err := app.init(); err != nil {
		return err
	}

	app.done = make(chan struct{})
	go app.mqtt.Service()
	go app.runWebServer()
	go app.receive()

	return nil
}

// init initializes the application.
func (app *App) init() (err error) {
	if app.buffer, err = newChain(app.config.Protocols, app.config.Receiver, app.handlePacket); err != nil {
		debug.ErrorLog.Printf("can't build receive chain: %v", err)
		return err
	}

	if app.receiver, err = raspberry.NewReceiver(app.buffer, app.config.Receiver.Gpio, app.config.Receiver.Terminator); err != nil {
		debug.ErrorLog.Printf("can't open receiver: %v", err)
		return err
	}

	if app.tx.pin, err = raspberry.OpenOutput(app.config.Transmitter.Gpio); err != nil {
		debug.ErrorLog.Printf("can't open transmitter: %v", err)
		return err
	}
	app.tx.transmitter = transmitter.New(app.tx.pin, raspberry.Clock{})

	if err = app.mqtt.Connect(app.config.MQTT.Connection, MODULE); err != nil {
		debug.ErrorLog.Printf("can't open mqtt broker %v", err)
		return err
	}

	// initRoutes and initDefaultRoutes should be always called last because it may access things like app.api
	// which must be initialized before in initAPI()
	app.initDefaultRoutes()

	return nil
}

// Shutdown returns the read only shutdown channel.
// Shutdown is used to be able to react on application shutdown. (see cmd/main.go)
func (app *App) Shutdown() <-chan struct{} {
	return app.shutdown
}

func (app *App) Close() error {
	if app.shutdown != nil {
		close(app.shutdown)
		if app.done != nil {
			<-app.done
		}
	}

	if app.receiver != nil {
		_ = app.receiver.Close()
	}

	app.tx.Lock()
	if app.tx.pin != nil {
		_ = app.tx.pin.Close()
	}
	app.tx.Unlock()

	if app.mqtt != nil {
		_ = app.mqtt.Disconnect()
	}

	if app.web != nil {
		_ = app.web.Shutdown()
	}
	return nil
}
