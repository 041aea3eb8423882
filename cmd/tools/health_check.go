package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"time"
)

// Small operational utility: probes the service's /health endpoint and exits
// non-zero when it is unreachable or unhealthy.

func main() {
	url := flag.String("url", "http://localhost:8080/health", "health endpoint to probe")
	timeout := flag.Duration("timeout", 5*time.Second, "request timeout")
	flag.Parse()

	fmt.Println("mercadosocial health check")
	fmt.Println("--------------------------")

	if err := checkServiceHealth(*url, *timeout); err != nil {
		log.Fatalf("Health check failed: %v", err)
	}
	fmt.Println("Service is healthy!")
}

func checkServiceHealth(url string, timeout time.Duration) error {
	client := &http.Client{Timeout: timeout}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("requesting %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var payload map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	if payload["status"] != "ok" {
		return fmt.Errorf("service reported status %q", payload["status"])
	}
	return nil
}
