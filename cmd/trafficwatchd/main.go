// Command trafficwatchd starts the flow table, capture loop and
// traffic controller behind the HTTP+WebSocket command transport.
// Grounded on the teacher's main.go (flag.Int("port", ...),
// http.ListenAndServe shape), extended with an optional HCL config
// file and a context-aware shutdown so the traffic controller's
// cleanup always runs.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"trafficwatch/internal/config"
	"trafficwatch/internal/core"
	"trafficwatch/internal/server"
)

func main() {
	configPath := flag.String("config", "", "path to an optional HCL config file")
	port := flag.Int("port", 8080, "HTTP server port")
	iface := flag.String("interface", "", "capture interface (overrides config file)")
	portLow := flag.Int("port-low", 0, "low end of the active port window (overrides config file)")
	portHigh := flag.Int("port-high", 0, "high end of the active port window (overrides config file)")
	ingressKbps := flag.Int("ingress-kbps", 0, "ingress policing rate in kbps, 0 disables policing")
	ingressBurstKB := flag.Int("ingress-burst-kb", 0, "ingress policing burst in KB, 0 uses the default")
	flag.Parse()

	portSet := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == "port" {
			portSet = true
		}
	})

	file, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	var listenAddr string
	if portSet {
		listenAddr = fmt.Sprintf(":%d", *port)
	}
	cfg := config.Merge(file, *iface, uint16(*portLow), uint16(*portHigh), *ingressKbps, *ingressBurstKB, listenAddr)
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = fmt.Sprintf(":%d", *port)
	}

	ctl := core.New()

	if cfg.Interface != "" {
		if err := ctl.StartCapture(core.StartCaptureCmd{
			Interface:      cfg.Interface,
			PortLow:        cfg.PortLow,
			PortHigh:       cfg.PortHigh,
			IngressKbps:    cfg.IngressKbps,
			IngressBurstKB: cfg.IngressBurstKB,
		}); err != nil {
			log.Fatalf("start capture on %q: %v", cfg.Interface, err)
		}
		log.Printf("capturing on %s (ports %d-%d)", cfg.Interface, cfg.PortLow, cfg.PortHigh)
	}

	router := server.NewRouter(ctl)
	httpServer := &http.Server{Addr: cfg.ListenAddr, Handler: router}

	go func() {
		log.Printf("trafficwatchd listening on http://localhost%s", cfg.ListenAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig

	log.Print("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	httpServer.Shutdown(shutdownCtx)
	if err := ctl.Close(shutdownCtx); err != nil {
		log.Printf("controller shutdown: %v", err)
	}
}
