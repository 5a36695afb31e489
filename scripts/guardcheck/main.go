// guardcheck drives a running gateway in front of flakybackend and verifies
// that a failing query is blocked, that other queries are not, and that the
// admin API can clear the block.
//
// Usage:
//
//	go run ./scripts/guardcheck -gateway http://localhost:8080 -admin http://localhost:9090
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/angeloszaimis/querygate/internal/admin"
)

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorBlue   = "\033[34m"
	colorCyan   = "\033[36m"
)

const failingQuery = "/reports?region=eu&fail=1"

func main() {
	var (
		gatewayURL = flag.String("gateway", "http://localhost:8080", "gateway URL")
		adminURL   = flag.String("admin", "http://localhost:9090", "admin API URL")
		threshold  = flag.Int("threshold", 3, "configured failure threshold")
	)
	flag.Parse()

	client := &http.Client{Timeout: 5 * time.Second}
	adminClient := admin.NewClient(*adminURL)
	ctx := context.Background()
	failed := false

	fmt.Println(colorCyan + "━━━ QUERY GUARD CHECK ━━━" + colorReset)

	fmt.Println(colorBlue + "\nPHASE 1: failing query" + colorReset)
	for i := 1; i <= *threshold; i++ {
		status, _, err := get(client, *gatewayURL+failingQuery)
		if err != nil {
			fail(&failed, "request %d: %v", i, err)
			continue
		}
		fmt.Printf("  attempt %d → %d\n", i, status)
	}

	fmt.Println(colorBlue + "\nPHASE 2: blocked answer" + colorReset)
	status, retryAfter, err := get(client, *gatewayURL+failingQuery)
	switch {
	case err != nil:
		fail(&failed, "request: %v", err)
	case status != http.StatusServiceUnavailable:
		fail(&failed, "expected 503, got %d", status)
	default:
		fmt.Printf(colorGreen+"  ✓ blocked with Retry-After=%s\n"+colorReset, retryAfter)
	}

	fmt.Println(colorBlue + "\nPHASE 3: unrelated query" + colorReset)
	status, _, err = get(client, *gatewayURL+"/reports?region=us")
	if err != nil || status != http.StatusOK {
		fail(&failed, "expected 200 for unrelated query, got %d (%v)", status, err)
	} else {
		fmt.Println(colorGreen + "  ✓ unaffected" + colorReset)
	}

	fmt.Println(colorBlue + "\nPHASE 4: admin API" + colorReset)
	keys, err := adminClient.Keys(ctx)
	if err != nil {
		fail(&failed, "list keys: %v", err)
	} else {
		fmt.Println(admin.RenderKeys(keys.Keys))
		for _, k := range keys.Keys {
			if k.State.String() != "OPEN" {
				continue
			}
			if err := adminClient.Forget(ctx, k.Key); err != nil {
				fail(&failed, "forget %s: %v", k.Key, err)
				continue
			}
			fmt.Printf(colorGreen+"  ✓ forgot %s\n"+colorReset, k.Key)
		}
	}

	status, _, err = get(client, *gatewayURL+failingQuery)
	if err == nil && status != http.StatusServiceUnavailable {
		fmt.Printf(colorGreen+"  ✓ query reaches upstream again (%d)\n"+colorReset, status)
	} else {
		fail(&failed, "query still blocked after forget (%d, %v)", status, err)
	}

	if failed {
		fmt.Println(colorRed + "\nCHECK FAILED" + colorReset)
		os.Exit(1)
	}
	fmt.Println(colorGreen + "\nCHECK PASSED" + colorReset)
}

func get(client *http.Client, url string) (int, string, error) {
	resp, err := client.Get(url)
	if err != nil {
		return 0, "", err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	return resp.StatusCode, resp.Header.Get("Retry-After"), nil
}

func fail(failed *bool, format string, args ...any) {
	*failed = true
	fmt.Printf(colorYellow+"  ✗ "+format+"\n"+colorReset, args...)
}
