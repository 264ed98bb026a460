package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"clinika.org/pkg/client"
)

func main() {
	base := os.Getenv("CLINIKA_API_URL")
	if base == "" {
		base = "http://localhost:8080"
	}
	email := os.Getenv("CLINIKA_SMOKE_EMAIL")
	password := os.Getenv("CLINIKA_SMOKE_PASSWORD")
	if email == "" || password == "" {
		log.Fatal("set CLINIKA_SMOKE_EMAIL and CLINIKA_SMOKE_PASSWORD")
	}

	c, err := client.New(base, client.WithTimeout(10*time.Second))
	if err != nil {
		log.Fatalf("client: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	session, err := c.Login(ctx, email, password)
	if err != nil {
		log.Fatalf("login: %v", err)
	}
	if session.AccessToken == "" {
		log.Fatal("login returned an empty access token")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/v1/patients", nil)
	if err != nil {
		log.Fatalf("build request: %v", err)
	}
	resp, err := c.Do(req)
	if err != nil {
		log.Fatalf("list patients: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusForbidden {
		log.Fatalf("list patients: unexpected status %d", resp.StatusCode)
	}

	if err := c.Logout(ctx); err != nil {
		log.Fatalf("logout: %v", err)
	}
	if c.AccessToken() != "" {
		log.Fatal("logout left a dangling access token")
	}

	fmt.Printf("✅ auth smoke test passed: identity=%s\n", session.Identity.ID)
}
