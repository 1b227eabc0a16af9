// Command token mints a device bearer token signed with the configured
// auth secret.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/yanqian/finedust/internal/domain/auth"
	"github.com/yanqian/finedust/internal/infra/config"
	"github.com/yanqian/finedust/pkg/logger"
)

func main() {
	device := flag.String("device", "", "device identifier to embed in the token")
	ttl := flag.Duration("ttl", 30*24*time.Hour, "token lifetime")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	svc := auth.NewService(auth.Config{Secret: cfg.Auth.Secret, TokenTTL: *ttl}, logger.New())
	token, err := svc.IssueToken(context.Background(), *device)
	if err != nil {
		log.Fatalf("issue token: %v", err)
	}
	fmt.Println(token)
}
