// Command pxp-agent wires together the Request Processor core with the
// concrete MQTT connector and the admin HTTP surface. Configuration and
// the command-line entry point itself are out of this module's scope
// (spec.md §1); this binary is the minimal glue a real config/CLI
// collaborator would call into, grounded on the teacher's
// cmd/worker/main.go wiring shape.
package main

import (
	"log"
	"net/http"
	"os"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/parisiale/pxp-agent/adminserver"
	"github.com/parisiale/pxp-agent/agent"
	pxpmqtt "github.com/parisiale/pxp-agent/transport/mqtt"
)

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func main() {
	spoolDir := getEnv("PXP_SPOOL_DIR", "./spool")
	modulesDir := getEnv("PXP_MODULES_DIR", "./modules")
	modulesConfigDir := getEnv("PXP_MODULES_CONFIG_DIR", "./modules.d")
	broker := getEnv("PXP_MQTT_BROKER", "tcp://localhost:1883")
	adminAddr := getEnv("PXP_ADMIN_ADDR", ":8142")

	if spoolDir == "" {
		log.Fatal("PXP_SPOOL_DIR must be non-empty")
	}
	if err := os.MkdirAll(spoolDir, 0o755); err != nil {
		log.Fatalf("creating spool directory: %v", err)
	}

	validator := agent.NewSchemaValidator()
	registryLogger := log.New(os.Stderr, "pxp-agent.registry: ", log.LstdFlags)
	registry := agent.NewRegistry(registryLogger)
	registry.LoadInternalModules(spoolDir)
	if err := registry.LoadExternalModules(validator, modulesDir, modulesConfigDir); err != nil {
		log.Printf("loading external modules: %v", err)
	}
	registry.LogSummary()

	opts := paho.NewClientOptions().AddBroker(broker)
	opts.SetClientID("pxp-agent-" + uuid.NewString())
	opts.SetAutoReconnect(true)

	client := paho.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		log.Fatalf("connecting to MQTT broker: %v", token.Error())
	}
	connector := pxpmqtt.New(client)

	processorLogger := log.New(os.Stderr, "pxp-agent.request_processor: ", log.LstdFlags)
	processor := agent.NewRequestProcessor(registry, connector, validator, spoolDir, 64, processorLogger)

	listener := pxpmqtt.NewListener(client, processor, log.New(os.Stderr, "pxp-agent.listener: ", log.LstdFlags))
	if err := listener.Subscribe("pxp/requests/#"); err != nil {
		log.Fatalf("subscribing to requests topic: %v", err)
	}

	admin := adminserver.New(registry, spoolDir, client.IsConnected)
	go func() {
		if err := http.ListenAndServe(adminAddr, admin.Handler()); err != nil {
			log.Printf("admin server stopped: %v", err)
		}
	}()

	log.Printf("pxp-agent ready: spool=%s modules=%s broker=%s admin=%s", spoolDir, modulesDir, broker, adminAddr)

	sig := make(chan os.Signal, 1)
	waitForShutdown(sig)
	processor.Shutdown(10 * time.Second)
}
