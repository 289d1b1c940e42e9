// genkey mints a sending API key for a registered domain. The plaintext is
// printed once and never stored.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"mailgate/internal/config"
	"mailgate/internal/db"
)

func main() {
	var (
		cfgPath string
		domain  string
	)
	flag.StringVar(&cfgPath, "c", "", "path to config file (yaml)")
	flag.StringVar(&domain, "d", "", "domain name to mint a key for")
	flag.Parse()

	if domain == "" {
		fmt.Fprintln(os.Stderr, "usage: genkey -d <domain> [-c config.yaml]")
		os.Exit(2)
	}
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
	gormDB, err := db.Open(cfg.DB)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}

	var d db.Domain
	if err := gormDB.Where("name = ?", domain).First(&d).Error; err != nil {
		log.Fatalf("domain %s not registered: %v", domain, err)
	}

	raw, key, err := db.MintAPIKey(gormDB, d.ID)
	if err != nil {
		log.Fatalf("mint key: %v", err)
	}
	fmt.Printf("API key for %s (prefix %s):\n%s\n", d.Name, key.Prefix, raw)
	fmt.Println("\nUse it as a bearer token:")
	fmt.Printf("  Authorization: Bearer %s\n", raw)
}
