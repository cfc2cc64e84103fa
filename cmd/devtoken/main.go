// Command devtoken prints a bearer token for local testing, signed with
// JWT_SECRET.
//
//	devtoken -role ORGANIZER -ttl 2h
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/iliyamo/ticket-reservation/internal/utils"
)

func main() {
	_ = godotenv.Load()

	sub := flag.String("sub", "", "requester id (random when empty)")
	role := flag.String("role", "CUSTOMER", "role claim")
	ttl := flag.Duration("ttl", time.Hour, "token lifetime")
	flag.Parse()

	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		log.Fatal("JWT_SECRET is not set")
	}
	id := uuid.New()
	if *sub != "" {
		var err error
		if id, err = uuid.Parse(*sub); err != nil {
			log.Fatalf("invalid -sub: %v", err)
		}
	}

	tok, err := utils.NewAccessToken(secret, id, *role, *ttl)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("requester: %s\nexpires:   %s\n\nAuthorization: Bearer %s\n", id, tok.Exp.Format(time.RFC3339), tok.Token)
}
