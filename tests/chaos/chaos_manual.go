// Manual probe for rate-limit behavior under concurrency. Run against a live
// server with a freshly minted bearer:
//
//	go run ./tests/chaos -addr http://localhost:8080 -key "sk-proj...." -n 200
//
// With the default threshold of 100 per minute, roughly half of 200 parallel
// validations should come back 429 and none should come back 500.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"sync"
	"time"
)

func main() {
	addr := flag.String("addr", "http://localhost:8080", "server base URL")
	key := flag.String("key", "", "bearer to validate")
	n := flag.Int("n", 200, "concurrent validations")
	flag.Parse()

	if *key == "" {
		fmt.Println("need -key (mint one via /v1/mint-key first)")
		return
	}

	body, _ := json.Marshal(map[string]string{"api_key": *key})

	var mu sync.Mutex
	counts := make(map[int]int)

	started := time.Now()
	var wg sync.WaitGroup
	for i := 0; i < *n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, err := http.Post(*addr+"/v1/validate-key", "application/json", bytes.NewReader(body))
			if err != nil {
				mu.Lock()
				counts[-1]++
				mu.Unlock()
				return
			}
			resp.Body.Close()
			mu.Lock()
			counts[resp.StatusCode]++
			mu.Unlock()
		}()
	}
	wg.Wait()

	fmt.Printf("%d requests in %s\n", *n, time.Since(started))
	for code, count := range counts {
		if code == -1 {
			fmt.Printf("  transport errors: %d\n", count)
			continue
		}
		fmt.Printf("  %d: %d\n", code, count)
	}
	if counts[http.StatusInternalServerError] > 0 {
		fmt.Println("FAIL: saw 500s under load")
	}
}
