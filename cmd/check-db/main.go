// Package main is a diagnostic tool for testing database connectivity and
// inspecting live tenant data. It connects to the database, queries the
// organizations and api_keys tables, and prints a summary to stdout. The
// binary exits with a non-zero code on any failure so it can be embedded in
// health checks or CI/CD pipeline steps to gate deployments on a reachable,
// populated database.
package main

import (
	"database/sql"
	"fmt"
	"log"
	"os"

	_ "github.com/lib/pq"
)

func main() {
	dbPassword := os.Getenv("DATABASE_PASSWORD")
	if dbPassword == "" {
		dbPassword = "feedbase"
	}

	connStr := fmt.Sprintf("host=localhost port=5432 user=feedbase password=%s dbname=feedbase sslmode=disable", dbPassword)
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}
	defer db.Close()

	// Check organizations
	fmt.Println("=== ORGANIZATIONS ===")
	rows, err := db.Query("SELECT id, name, slug, is_active, rate_limit_per_hour FROM organizations")
	if err != nil {
		log.Fatalf("Query failed: %v", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id, name, slug string
		var active bool
		var limit int
		if err := rows.Scan(&id, &name, &slug, &active, &limit); err != nil {
			log.Printf("Warning: failed to scan organization row: %v", err)
			continue
		}
		fmt.Printf("Organization: %s (%s) active=%v quota=%d/h (ID: %s)\n", name, slug, active, limit, id)
	}

	// Check API keys
	fmt.Println("\n=== API KEYS ===")
	rows2, err := db.Query("SELECT id, organization_id, key_prefix, is_active, last_used_at FROM api_keys")
	if err != nil {
		log.Fatalf("Query failed: %v", err)
	}
	defer rows2.Close()

	count := 0
	for rows2.Next() {
		var id, orgID, prefix string
		var active bool
		var lastUsed *string
		if err := rows2.Scan(&id, &orgID, &prefix, &active, &lastUsed); err != nil {
			log.Printf("Warning: failed to scan api key row: %v", err)
			continue
		}
		used := "never"
		if lastUsed != nil {
			used = *lastUsed
		}
		fmt.Printf("Key: %s... (Org: %s) active=%v last_used=%s\n", prefix, orgID, active, used)
		count++
	}

	fmt.Printf("\nTotal keys: %d\n", count)
}
