package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prasetya-adi/tangguh"
)

func main() {
	// A flaky upstream: fails twice, then answers.
	var hits atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) <= 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"message":"hello","served_at":%q}`, time.Now().Format(time.RFC3339))
	}))
	defer server.Close()

	client := tangguh.New(
		tangguh.WithMaxRetries(3),
		tangguh.WithInitialBackoff(50*time.Millisecond),
		tangguh.WithCache(30*time.Second),
		tangguh.WithCircuitBreaker(tangguh.CircuitBreakerConfig{
			FailureThreshold: 5,
			RecoveryTimeout:  10 * time.Second,
		}),
		tangguh.WithSimpleLogger(),
		tangguh.WithDebug(),
	)

	ctx := context.Background()

	// First call retries through the failures.
	var payload struct {
		Message  string `json:"message"`
		ServedAt string `json:"served_at"`
	}
	if err := client.GetJSON(ctx, server.URL+"/greeting", &payload); err != nil {
		log.Fatalf("request failed: %v", err)
	}
	fmt.Printf("got %q after %d upstream hits\n", payload.Message, hits.Load())

	// Concurrent identical requests are de-duplicated and then served from
	// cache; the upstream sees no extra traffic.
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := client.Get(ctx, server.URL+"/greeting"); err != nil {
				log.Printf("concurrent request failed: %v", err)
			}
		}()
	}
	wg.Wait()
	fmt.Printf("10 concurrent requests, upstream hits still %d\n", hits.Load())
}
