package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	mqttserver "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/hooks/auth"
	"github.com/mochi-mqtt/server/v2/listeners"
	"github.com/stretchr/testify/require"

	"github.com/parisiale/pxp-agent/agent"
)

// getFreePort grounds on test/integration/execution_test.go's helper of
// the same name.
func getFreePort(t *testing.T) int {
	t.Helper()
	addr, err := net.ResolveTCPAddr("tcp", "localhost:0")
	require.NoError(t, err)
	l, err := net.ListenTCP("tcp", addr)
	require.NoError(t, err)
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}

// startBroker stands up an in-process MQTT broker, grounded on
// test/integration/execution_test.go's TestEndToEnd setup.
func startBroker(t *testing.T) string {
	t.Helper()
	port := getFreePort(t)
	broker := mqttserver.New(nil)
	tcp := listeners.NewTCP(listeners.Config{ID: "t1", Address: fmt.Sprintf("localhost:%d", port)})
	require.NoError(t, broker.AddListener(tcp))
	require.NoError(t, broker.AddHook(new(auth.AllowHook), nil))

	go func() {
		_ = broker.Serve()
	}()
	t.Cleanup(func() { _ = broker.Close() })

	time.Sleep(200 * time.Millisecond)
	return fmt.Sprintf("tcp://localhost:%d", port)
}

func connectClient(t *testing.T, brokerURL, clientID string) paho.Client {
	t.Helper()
	opts := paho.NewClientOptions().AddBroker(brokerURL).SetClientID(clientID)
	client := paho.NewClient(opts)
	token := client.Connect()
	require.True(t, token.WaitTimeout(2*time.Second))
	require.NoError(t, token.Error())
	t.Cleanup(func() { client.Disconnect(100) })
	return client
}

func TestConnector_SendBlockingResponse(t *testing.T) {
	brokerURL := startBroker(t)

	subscriber := connectClient(t, brokerURL, "subscriber")
	received := make(chan map[string]any, 1)
	topic := responseTopic("sender-1", "tx-1")
	token := subscriber.Subscribe(topic, 1, func(c paho.Client, m paho.Message) {
		var doc map[string]any
		_ = json.Unmarshal(m.Payload(), &doc)
		received <- doc
	})
	require.True(t, token.WaitTimeout(2*time.Second))
	require.NoError(t, token.Error())

	publisher := connectClient(t, brokerURL, "publisher")
	connector := New(publisher)

	chunks := agent.ParsedChunks{
		Envelope: map[string]any{"id": "req-1", "sender": "sender-1", "transaction_id": "tx-1"},
		Data:     map[string]any{"module": "ping", "action": "ping", "transaction_id": "tx-1"},
	}
	req, err := agent.NewActionRequest(agent.Blocking, chunks)
	require.NoError(t, err)

	resp := agent.NewActionResponse(agent.NewSchemaValidator(), req)
	resp.SetValidResultsAndEnd("pong", "")

	require.NoError(t, connector.SendBlockingResponse(context.Background(), req, resp))

	select {
	case doc := <-received:
		require.Equal(t, "tx-1", doc["transaction_id"])
		require.Equal(t, "pong", doc["results"])
	case <-time.After(2 * time.Second):
		t.Fatal("did not receive published response in time")
	}
}

func TestConnector_SendPCPError(t *testing.T) {
	brokerURL := startBroker(t)

	subscriber := connectClient(t, brokerURL, "subscriber-2")
	received := make(chan map[string]any, 1)
	token := subscriber.Subscribe(transportErrorTopic("sender-2"), 1, func(c paho.Client, m paho.Message) {
		var doc map[string]any
		_ = json.Unmarshal(m.Payload(), &doc)
		received <- doc
	})
	require.True(t, token.WaitTimeout(2*time.Second))
	require.NoError(t, token.Error())

	publisher := connectClient(t, brokerURL, "publisher-2")
	connector := New(publisher)

	require.NoError(t, connector.SendPCPError(context.Background(), "req-1", "sender-2", "malformed envelope"))

	select {
	case doc := <-received:
		require.Equal(t, "malformed envelope", doc["description"])
	case <-time.After(2 * time.Second):
		t.Fatal("did not receive published PCP error in time")
	}
}
