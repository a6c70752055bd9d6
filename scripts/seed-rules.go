package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/catchallhq/dental-crm/internal/recall"
)

// Seeds the stock recall sequence for each treatment through the API:
//
//	API_URL=http://localhost:8080 STAFF_TOKEN=... go run scripts/seed-rules.go 임플란트 교정 스케일링
func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: go run scripts/seed-rules.go <treatment> [treatment...]")
		fmt.Println("Example: go run scripts/seed-rules.go 임플란트 교정")
		os.Exit(1)
	}

	apiURL := os.Getenv("API_URL")
	if apiURL == "" {
		apiURL = "http://localhost:8080"
	}
	token := os.Getenv("STAFF_TOKEN")

	fmt.Println("Seeding recall rules")
	fmt.Println("====================")
	fmt.Printf("API URL: %s\n\n", apiURL)

	client := &http.Client{Timeout: 10 * time.Second}
	failed := 0

	for _, treatment := range os.Args[1:] {
		for _, rule := range recall.DefaultRules(treatment) {
			payload, err := json.Marshal(map[string]any{
				"treatment":  rule.Treatment,
				"timing":     rule.Timing,
				"template":   rule.Template,
				"enabled":    rule.Enabled,
				"sort_order": rule.SortOrder,
			})
			if err != nil {
				fmt.Printf("  encode failed: %v\n", err)
				failed++
				continue
			}

			req, err := http.NewRequest(http.MethodPut, strings.TrimRight(apiURL, "/")+"/recall/rules", bytes.NewReader(payload))
			if err != nil {
				fmt.Printf("  request failed: %v\n", err)
				failed++
				continue
			}
			req.Header.Set("Content-Type", "application/json")
			if token != "" {
				req.Header.Set("Authorization", "Bearer "+token)
			}

			resp, err := client.Do(req)
			if err != nil {
				fmt.Printf("  %s / %s: %v\n", treatment, rule.Timing, err)
				failed++
				continue
			}
			body, _ := io.ReadAll(resp.Body)
			_ = resp.Body.Close()

			if resp.StatusCode != http.StatusOK {
				fmt.Printf("  %s / %s: HTTP %d: %s\n", treatment, rule.Timing, resp.StatusCode, strings.TrimSpace(string(body)))
				failed++
				continue
			}
			fmt.Printf("  %s / %s: ok\n", treatment, rule.Timing)
		}
	}

	if failed > 0 {
		fmt.Printf("\n%d rule(s) failed\n", failed)
		os.Exit(1)
	}
	fmt.Println("\nAll rules seeded")
}
