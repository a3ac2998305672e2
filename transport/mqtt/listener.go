package mqtt

import (
	"context"
	"encoding/json"
	"log"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/parisiale/pxp-agent/agent"
)

// inboundMessage is the wire shape this module expects on the requests
// topic: a pre-parsed envelope/data/debug triple plus the dispatch type,
// matching agent.ParsedChunks. Real transports typically separate framing
// (PCP) from the PXP payload; this module collapses both into one message
// since wire transport framing itself is out of this module's scope.
type inboundMessage struct {
	Type  agent.RequestType `json:"type"`
	Envelope map[string]any    `json:"envelope"`
	Data     map[string]any    `json:"data"`
	Debug    []map[string]any  `json:"debug"`
	Binary   bool              `json:"binary"`
}

// Listener subscribes to an inbound requests topic and feeds each message
// to a Request Processor.
type Listener struct {
	client    paho.Client
	processor *agent.RequestProcessor
	logger    *log.Logger
}

// NewListener constructs a listener over an already-connected client.
func NewListener(client paho.Client, processor *agent.RequestProcessor, logger *log.Logger) *Listener {
	return &Listener{client: client, processor: processor, logger: logger}
}

// Subscribe starts receiving on topic (typically "pxp/requests/#").
func (l *Listener) Subscribe(topic string) error {
	token := l.client.Subscribe(topic, 1, l.handle)
	token.Wait()
	return token.Error()
}

func (l *Listener) handle(client paho.Client, msg paho.Message) {
	var in inboundMessage
	if err := json.Unmarshal(msg.Payload(), &in); err != nil {
		l.logger.Printf("discarding malformed request on %q: %v", msg.Topic(), err)
		return
	}
	l.processor.ProcessRequest(context.Background(), in.Type, agent.ParsedChunks{
		Envelope: in.Envelope,
		Data:     in.Data,
		Debug:    in.Debug,
		Binary:   in.Binary,
	})
}
