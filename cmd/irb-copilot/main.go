package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"github.com/joelkehle/irb-copilot/internal/archive"
	"github.com/joelkehle/irb-copilot/internal/drafting"
	"github.com/joelkehle/irb-copilot/internal/httpapi"
	"github.com/joelkehle/irb-copilot/internal/irbprofile"
	"github.com/joelkehle/irb-copilot/internal/packet"
	"github.com/joelkehle/irb-copilot/internal/profileimport"
	"github.com/joelkehle/irb-copilot/internal/telemetry"
)

const serviceVersion = "0.1.0"

func main() {
	var (
		addr      = flag.String("addr", ":8080", "HTTP listen address")
		dbPath    = flag.String("db", "", "SQLite archive path (empty disables the run archive)")
		enablePDF = flag.Bool("enable-pdf", false, "Enable PDF packet rendering via headless Chromium")
	)
	flag.Parse()

	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		*addr = ":" + port
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	tel, err := telemetry.Setup(ctx, telemetry.Config{
		Endpoint:       strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")),
		ServiceName:    "irb-copilot",
		ServiceVersion: serviceVersion,
	})
	if err != nil {
		log.Fatalf("telemetry setup: %v", err)
	}
	if tel != nil {
		defer func() {
			shutCtx, shutCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutCancel()
			if err := tel.Shutdown(shutCtx); err != nil {
				log.Printf("telemetry shutdown: %v", err)
			}
		}()
	}

	catalog := irbprofile.NewCatalog()
	importer := profileimport.NewImporter(catalog)

	caller, err := drafting.NewAnthropicCallerFromEnv()
	if err != nil {
		log.Printf("draft refinement disabled: %v (template-only mode)", err)
	}
	var generator *drafting.Generator
	if caller != nil {
		generator = drafting.NewGenerator(caller)
	} else {
		generator = drafting.NewGenerator(nil)
	}

	var store *archive.Store
	if strings.TrimSpace(*dbPath) != "" {
		store, err = archive.Open(*dbPath)
		if err != nil {
			log.Fatalf("open archive: %v", err)
		}
		defer store.Close()
	}

	var renderer httpapi.PDFRenderer
	if *enablePDF {
		renderer = packet.NewChromiumPDFRenderer()
	}

	cfg := httpapi.Config{
		APIKey:       strings.TrimSpace(os.Getenv("BACKEND_API_KEY")),
		MaxBodyBytes: envInt64("MAX_JSON_BODY_BYTES", 0),
		RateLimit:    int(envInt64("RATE_LIMIT_REQUESTS", 0)),
		RateWindow:   time.Duration(envInt64("RATE_LIMIT_WINDOW_SECONDS", 0)) * time.Second,
	}
	if cfg.APIKey == "" {
		log.Printf("warning: BACKEND_API_KEY not set; API authentication disabled")
	}

	handler := httpapi.NewServer(cfg, catalog, importer, generator, store, renderer)

	log.Printf("irb-copilot listening on %s (archive=%v, pdf=%v, refinement=%v)",
		*addr, store != nil, renderer != nil, caller != nil)
	srv := &http.Server{Addr: *addr, Handler: handler}
	go func() {
		<-ctx.Done()
		srv.Close()
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal(err)
	}
}

func envInt64(name string, fallback int64) int64 {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return fallback
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		log.Fatalf("invalid %s: %v", name, err)
	}
	return n
}
