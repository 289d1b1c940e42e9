package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"mailgate/internal/audit"
	"mailgate/internal/config"
	"mailgate/internal/db"
	"mailgate/internal/dnscheck"
	"mailgate/internal/dnshost"
	"mailgate/internal/mail"
	"mailgate/internal/provider"
	restsrv "mailgate/internal/server/rest"
	"mailgate/internal/verify"
)

// Version is set via -ldflags "-X main.Version=<version>" during build.
var Version = "dev"

func main() {
	// Normalize GNU-style flags ("--flag") to Go's default ("-flag")
	// to support both -c/--config and -t/--test without extra deps.
	if len(os.Args) > 1 {
		norm := make([]string, 0, len(os.Args))
		norm = append(norm, os.Args[0])
		for i := 1; i < len(os.Args); i++ {
			a := os.Args[i]
			if a == "--" { // end of flags
				norm = append(norm, a)
				norm = append(norm, os.Args[i+1:]...)
				break
			}
			if strings.HasPrefix(a, "--") {
				a = "-" + strings.TrimPrefix(a, "--")
			}
			norm = append(norm, a)
		}
		os.Args = norm
	}

	var (
		cfgPath  string
		testOnly bool
		showVer  bool
	)

	flag.StringVar(&cfgPath, "c", "", "path to config file (yaml)")
	flag.StringVar(&cfgPath, "config", "", "path to config file (yaml)")
	flag.BoolVar(&testOnly, "t", false, "validate config and exit")
	flag.BoolVar(&testOnly, "test", false, "validate config and exit")
	flag.BoolVar(&showVer, "v", false, "print version and exit")
	flag.BoolVar(&showVer, "version", false, "print version and exit")
	flag.Parse()

	if showVer {
		fmt.Println(Version)
		return
	}

	// Config path precedence: -c/--config > env > default
	if cfgPath == "" {
		cfgPath = os.Getenv("MAILGATE_CONFIG")
	}
	if cfgPath == "" {
		cfgPath = "config.yaml"
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	if testOnly {
		fmt.Printf("Config OK: %s\n", cfgPath)
		return
	}

	gormDB, err := db.Open(cfg.DB)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	if err := db.AutoMigrate(gormDB); err != nil {
		log.Fatalf("migrate db: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	resolver := dnscheck.NewClient(cfg.Resolvers)
	prov := provider.NewClient(cfg.Provider)
	host := dnshost.NewClient(cfg.DNSHost, resolver)
	recorder := audit.NewRecorder(gormDB)
	params := verify.RecordParams{
		MXHost:     cfg.Provider.MXHost,
		SPFInclude: cfg.Provider.SPFInclude,
		DKIMSuffix: cfg.Provider.DKIMSuffix,
	}

	svc := verify.NewService(gormDB, prov, host, recorder, params)
	mailer := mail.NewMailer(gormDB, prov)
	restServer := restsrv.NewServer(cfg, gormDB, svc, mailer)

	reconciler := verify.NewReconciler(gormDB, resolver, prov, recorder, cfg)
	scheduler := verify.NewScheduler(reconciler)
	scheduler.Start(ctx, cfg.VerifyInterval())

	go func() {
		log.Printf("REST API listening on %s", cfg.Listen)
		if err := restServer.Start(); err != nil {
			log.Fatalf("rest start: %v", err)
		}
	}()

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Println("Shutting down...")

	scheduler.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(ctx, 5*time.Second)
	defer shutdownCancel()
	_ = restServer.Shutdown(shutdownCtx)
}
