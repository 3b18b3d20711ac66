package main

import (
	"context"
	"crypto/tls"
	"flag"
	"log"
	"net/http"
	"time"

	"github.com/hvgate/hvgate/internal/auditlog"
	"github.com/hvgate/hvgate/internal/authgate"
	"github.com/hvgate/hvgate/internal/config"
	"github.com/hvgate/hvgate/internal/hyperv"
	"github.com/hvgate/hvgate/internal/poll"
	"github.com/hvgate/hvgate/internal/rpc"
)

func main() {
	var (
		settingsPath = flag.String("settings", "hvgate.toml", "path to the TOML settings file (optional)")
		addr         = flag.String("addr", "", "listen address, overrides the settings file")
		syncInterval = flag.Duration("sync-interval", time.Minute, "how often to refresh the cached VM name list")
	)
	flag.Parse()

	cfg, err := config.Load(*settingsPath)
	if err != nil {
		log.Fatalf("fatal configuration error: %s", err)
	}
	if *addr != "" {
		cfg.Addr = *addr
	}

	s := &server{
		cfg:   cfg,
		gate:  authgate.New(cfg.APIKey, cfg.HMACSecret, cfg.AllowIPs),
		audit: auditlog.New(cfg.AuditLogPath(), cfg.AppLogPath()),
		vms:   hyperv.New(cfg.PowershellBin, cfg.CollaboratorTimeout),
		cache: &poll.Snapshot[vmCache]{},
	}

	go poll.Loop(context.Background(), *syncInterval, time.Minute*5, func() bool {
		cache := vmCache{SyncedAt: time.Now().UTC()}
		names, err := s.vms.ListNames(context.Background())
		if err != nil {
			cache.Err = err.Error()
			log.Printf("error refreshing VM name cache: %s", err)
		}
		cache.Names = names
		s.cache.Swap(cache)
		return err == nil
	})

	handler := newPipeline(s)

	if cfg.TLS {
		cert, fingerprint, err := rpc.LoadCertificate(cfg.TLSDir)
		if err != nil {
			log.Fatalf("fatal error while loading certificate: %s", err)
		}
		log.Printf("serving TLS - certificate fingerprint: %s", fingerprint)

		svr := &http.Server{
			Addr:    cfg.Addr,
			Handler: handler,
			TLSConfig: &tls.Config{
				Certificates: []tls.Certificate{cert},
				MinVersion:   tls.VersionTLS12,
			},
		}
		log.Printf("listening on %s", cfg.Addr)
		log.Fatalf("fatal error while running HTTPS server: %s", svr.ListenAndServeTLS("", ""))
	}

	log.Printf("listening on %s", cfg.Addr)
	log.Fatalf("fatal error while running HTTP server: %s", http.ListenAndServe(cfg.Addr, handler))
}
