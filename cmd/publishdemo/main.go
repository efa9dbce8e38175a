// Command publishdemo runs a standalone Publish Engine behind a WebSocket
// listener. It exists to demonstrate wiring EngineOptions, Subscription and
// wsdemo together; it is not a conformant OPC UA server.
package main

import (
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/oparthasarathy/opcua-publishengine/pubengine"
	"github.com/oparthasarathy/opcua-publishengine/transport/wsdemo"
)

var (
	flagAddr           = flag.String("addr", ":8080", "listen address")
	flagConfig         = flag.String("config", "", "optional YAML EngineOptions config file")
	flagInterval       = flag.Duration("interval", time.Second, "demo subscription publishing interval")
	flagMaxKeepAlive   = flag.Uint("keepalive-count", 5, "demo subscription maxKeepAliveCount")
	flagSchedulerTick  = flag.Duration("scheduler-tick", 100*time.Millisecond, "engine scheduler poll interval")
)

func main() {
	flag.Parse()

	opts := pubengine.DefaultEngineOptions()
	if *flagConfig != "" {
		loaded, err := pubengine.LoadEngineOptions(*flagConfig)
		if err != nil {
			log.Fatalf("publishdemo: failed to load config %s: %v", *flagConfig, err)
		}
		opts = loaded
	}

	engine := pubengine.NewEngine(opts)
	engine.AddSubscription(pubengine.NewSubscription(1, pubengine.SubscriptionOptions{
		PublishingInterval: *flagInterval,
		MaxKeepAliveCount:  uint32(*flagMaxKeepAlive),
		PublishingEnabled:  true,
	}))
	engine.StartScheduler(*flagSchedulerTick)

	server := wsdemo.NewServer(engine)
	httpServer := &http.Server{Addr: *flagAddr, Handler: server}

	go func() {
		log.Printf("publishdemo: listening on %s", *flagAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("publishdemo: server error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	sig := <-sigCh
	log.Printf("publishdemo: received %v, shutting down", sig)

	engine.Shutdown()
	_ = httpServer.Close()
}
