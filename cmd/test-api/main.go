// Package main is a smoke-test utility that verifies the backend's HTTP API
// is reachable and returning valid responses. It issues real HTTP requests to
// the health and version endpoints and prints the status codes and response
// bodies, making it useful for quick post-deployment checks without needing
// external tooling like curl or a full integration test suite.
package main

import (
	"fmt"
	"io"
	"net/http"
	"os"
)

func main() {
	base := os.Getenv("FEEDBASE_BASE_URL")
	if base == "" {
		base = "http://localhost:8080"
	}

	failed := false
	for _, path := range []string{"/healthz", "/version"} {
		resp, err := http.Get(base + path)
		if err != nil {
			fmt.Printf("%s: error: %v\n", path, err)
			failed = true
			continue
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			fmt.Printf("%s: error reading body: %v\n", path, err)
			failed = true
			continue
		}

		fmt.Printf("%s: %d %s\n", path, resp.StatusCode, string(body))
		if resp.StatusCode != http.StatusOK {
			failed = true
		}
	}

	if failed {
		os.Exit(1)
	}
}
