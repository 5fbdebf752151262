// Command devtoken prints a bearer token for an operator, signed with the configured secret.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/spec-kit/lead-router/internal/auth"
	"github.com/spec-kit/lead-router/internal/config"
	"github.com/spec-kit/lead-router/internal/domain"
)

func main() {
	operatorID := flag.Int64("operator", 0, "operator id to embed in the token")
	roleName := flag.String("role", "", "role claim (operator, supervisor, admin); the stored role wins at request time")
	ttl := flag.Int("ttl", 0, "token lifetime in minutes, defaults to AUTH_ACCESS_TOKEN_TTL_MINUTES")
	flag.Parse()

	if *operatorID <= 0 {
		fmt.Fprintln(os.Stderr, "devtoken: -operator is required")
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	var role domain.Role
	if *roleName != "" {
		role, err = domain.ParseRole(*roleName)
		if err != nil {
			log.Fatalf("invalid role: %v", err)
		}
	}

	minutes := cfg.Auth.AccessTokenTTLMinutes
	if *ttl > 0 {
		minutes = *ttl
	}

	token, expiresAt, err := auth.NewTokenManager(cfg.Auth.JWTSecret, minutes).GenerateToken(*operatorID, role)
	if err != nil {
		log.Fatalf("failed to sign token: %v", err)
	}
	fmt.Println(token)
	fmt.Fprintf(os.Stderr, "expires at %s\n", expiresAt.UTC().Format(time.RFC3339))
}
