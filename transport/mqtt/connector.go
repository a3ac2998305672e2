// Package mqtt provides a concrete agent.Connector backed by
// github.com/eclipse/paho.mqtt.golang, grounded on the publish-to-derived
// topic response delivery pattern in the teacher's coordinator
// (coordinator/main.go, cmd/coordinator/mqttactions.go).
package mqtt

import (
	"context"
	"encoding/json"
	"fmt"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/parisiale/pxp-agent/agent"
)

// Connector publishes Request Processor responses to MQTT topics derived
// from the sender and transaction id (see SPEC_FULL.md §6).
type Connector struct {
	client paho.Client
}

// New wraps an already-connected paho client.
func New(client paho.Client) *Connector {
	return &Connector{client: client}
}

func (c *Connector) publish(topic string, payload map[string]any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return &agent.ConnectorError{Cause: err}
	}
	token := c.client.Publish(topic, 1, false, raw)
	token.Wait()
	if err := token.Error(); err != nil {
		return &agent.ConnectorError{Cause: err}
	}
	return nil
}

func responseTopic(sender, transactionID string) string {
	return fmt.Sprintf("pxp/responses/%s/%s", sender, transactionID)
}

func statusTopic(sender, transactionID string) string {
	return fmt.Sprintf("pxp/responses/%s/%s/status", sender, transactionID)
}

func errorTopic(sender, transactionID string) string {
	return fmt.Sprintf("pxp/errors/%s/%s", sender, transactionID)
}

func transportErrorTopic(sender string) string {
	return fmt.Sprintf("pxp/errors/transport/%s", sender)
}

func (c *Connector) SendProvisionalResponse(ctx context.Context, req *agent.ActionRequest) error {
	return c.publish(responseTopic(req.Sender(), req.TransactionID()), map[string]any{
		"transaction_id": req.TransactionID(),
	})
}

func (c *Connector) SendBlockingResponse(ctx context.Context, req *agent.ActionRequest, resp *agent.ActionResponse) error {
	return c.publish(responseTopic(req.Sender(), req.TransactionID()), resp.ToJSON(agent.ResponseBlocking))
}

func (c *Connector) SendNonBlockingResponse(ctx context.Context, req *agent.ActionRequest, resp *agent.ActionResponse) error {
	return c.publish(responseTopic(req.Sender(), req.TransactionID()), resp.ToJSON(agent.ResponseNonBlocking))
}

func (c *Connector) SendStatusResponse(ctx context.Context, req *agent.ActionRequest, resp *agent.ActionResponse) error {
	return c.publish(statusTopic(req.Sender(), req.TransactionID()), resp.ToJSON(agent.ResponseStatus))
}

func (c *Connector) SendPXPError(ctx context.Context, req *agent.ActionRequest, description string) error {
	return c.publish(errorTopic(req.Sender(), req.TransactionID()), map[string]any{
		"id":          req.ID(),
		"description": description,
	})
}

func (c *Connector) SendPCPError(ctx context.Context, id, sender, description string) error {
	return c.publish(transportErrorTopic(sender), map[string]any{
		"id":          id,
		"description": description,
	})
}
