package app

import (
	"encoding/hex"
	"time"

	"github.com/womat/debug"

	"rc433/pkg/mqtt"
	"rc433/pkg/port"
)

// Packet is a decoded data packet.
type Packet struct {
	Protocol string            `json:"protocol"`
	Time     time.Time         `json:"time"`
	SyncTime port.Microseconds `json:"syncTime"`
	Bits     int               `json:"bits"`
	Data     string            `json:"data"`
	Quality  float64           `json:"quality"`
	// Repeats is the count of identical packets received within the repeat window.
	Repeats int `json:"repeats"`
}

// collector implements port.DataReceiver for one protocol.
type collector struct {
	protocol string
	sink     func(Packet)
}

// HandleData implements port.DataReceiver.
func (c *collector) HandleData(syncTime port.Microseconds, data []byte, bits int, quality float64) {
	c.sink(Packet{
		Protocol: c.protocol,
		Time:     time.Now(),
		SyncTime: syncTime,
		Bits:     bits,
		Data:     hex.EncodeToString(data),
		Quality:  quality,
	})
}

// handlePacket keeps the last packet per protocol and sends new packets to the mqtt broker.
//  Remote controls repeat every packet several times, a packet equal to the last one
//  within the repeat window is only counted.
func (app *App) handlePacket(p Packet) {
	app.packets.Lock()
	defer app.packets.Unlock()

	last, ok := app.packets.data[p.Protocol]
	if ok && last.Data == p.Data && last.Bits == p.Bits && p.Time.Sub(last.Time) < app.config.MQTT.RepeatWindow {
		last.Repeats++
		last.Time = p.Time
		if p.Quality > last.Quality {
			last.Quality = p.Quality
		}
		app.packets.data[p.Protocol] = last
		return
	}

	debug.InfoLog.Printf("%s: received %d bits %s (quality %.1f%%)", p.Protocol, p.Bits, p.Data, p.Quality)
	app.packets.data[p.Protocol] = p
	app.sendMQTT(app.config.MQTT.Topic+"/"+p.Protocol, p)
}

// Packets returns the last packet of every protocol.
func (app *App) Packets() map[string]Packet {
	app.packets.Lock()
	defer app.packets.Unlock()

	m := make(map[string]Packet, len(app.packets.data))
	for k, v := range app.packets.data {
		m[k] = v
	}
	return m
}

// sendMQTT send message struct to the mqtt broker.
func (app *App) sendMQTT(topic string, message interface{}) {
	msg, err := mqtt.NewJSON(topic, message, true)
	if err != nil {
		debug.ErrorLog.Printf("sendMQTT marshal: %v", err)
		return
	}

	go func(m mqtt.Message) {
		debug.TraceLog.Printf("prepare mqtt message %v %s", m.Topic, m.Payload)
		app.mqtt.C <- m
	}(msg)
}
