// devtoken выпускает access token для локальной отладки websocket и HTTP API.
//
//	go run ./cmd/devtoken -key ./keys/jwt_private.pem -user 3
package main

import (
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/cwrk-planet/realtime-service/config"
	"github.com/cwrk-planet/realtime-service/internal/security"
)

func main() {
	keyPath := flag.String("key", "./keys/jwt_private.pem", "RSA private key (PEM)")
	userID := flag.Int64("user", 0, "user id (sub)")
	ttl := flag.Duration("ttl", time.Hour, "token lifetime")
	issuer := flag.String("iss", "", "issuer (default: from config)")
	audience := flag.String("aud", "", "audience (default: from config)")
	flag.Parse()

	if *userID <= 0 {
		log.Fatal("-user is required")
	}
	if *issuer == "" || *audience == "" {
		cfg, err := config.LoadConfig()
		if err != nil {
			log.Fatalf("load config (or pass -iss and -aud): %v", err)
		}
		if *issuer == "" {
			*issuer = cfg.Security.JWT.Issuer
		}
		if *audience == "" {
			*audience = cfg.Security.JWT.Audience
		}
	}

	priv, err := security.LoadRSAPrivateKeyFromPEM(*keyPath)
	if err != nil {
		log.Fatalf("load key: %v", err)
	}
	tok, err := security.NewJWTSigner(priv, *issuer, *audience, *ttl).SignAccessToken(*userID, time.Now())
	if err != nil {
		log.Fatalf("sign: %v", err)
	}
	fmt.Println(tok)
}
