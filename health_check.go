//go:build ignore

package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/fenilmodi00/ipo-allotment-client/config"
	"github.com/fenilmodi00/ipo-allotment-client/services"
	"github.com/fenilmodi00/ipo-allotment-client/storage"
)

func main() {
	fmt.Printf("🏥 IPO Allotment Client Health Check - %s\n", time.Now().Format("2006-01-02 15:04:05"))
	fmt.Println(strings.Repeat("=", 50))

	cfg := config.LoadConfig().Unified()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	healthScore := 0
	totalTests := 3

	// Test 1: Store
	fmt.Printf("🗄️  Store (%s): ", cfg.Store.Driver)
	kv, err := storage.Open(ctx, cfg.Store)
	if err != nil {
		fmt.Printf("❌ FAILED (%v)\n", err)
	} else {
		defer kv.Close()
		if pans, err := services.NewLocalPANStore(kv).List(ctx); err != nil {
			fmt.Printf("❌ FAILED (%v)\n", err)
		} else {
			fmt.Printf("✅ OK (%d unsaved PANs)\n", len(pans))
			healthScore++
		}
	}

	backend := services.NewBackendClient(cfg.Service)
	defer backend.Close()

	// Test 2: Allotment check endpoint
	fmt.Print("📡 Allotment API: ")
	if _, err := backend.CheckAllotmentStatus(ctx, "HEALTH CHECK", "", []string{"AAAAA0000A"}, false); err != nil {
		fmt.Printf("❌ FAILED (%v)\n", err)
	} else {
		fmt.Println("✅ OK")
		healthScore++
	}

	// Test 3: Account PANs
	fmt.Print("☁️  Account PANs: ")
	if cfg.Service.AuthToken == "" {
		fmt.Println("⚠️  SKIPPED (AUTH_TOKEN not set)")
		totalTests--
	} else if pans, err := backend.ListUserPANs(ctx, cfg.Service.AuthToken); err != nil {
		fmt.Printf("❌ FAILED (%v)\n", err)
	} else {
		fmt.Printf("✅ OK (%d saved PANs)\n", len(pans))
		healthScore++
	}

	// Overall health
	fmt.Println(strings.Repeat("-", 50))
	healthPercent := float64(healthScore) / float64(totalTests) * 100

	if healthScore == totalTests {
		fmt.Printf("🎉 SYSTEM HEALTHY: %d/%d tests passed (%.0f%%)\n", healthScore, totalTests, healthPercent)
	} else if healthScore >= totalTests/2 {
		fmt.Printf("⚠️  SYSTEM DEGRADED: %d/%d tests passed (%.0f%%)\n", healthScore, totalTests, healthPercent)
	} else {
		fmt.Printf("❌ SYSTEM UNHEALTHY: %d/%d tests passed (%.0f%%)\n", healthScore, totalTests, healthPercent)
	}

	fmt.Printf("⏰ Check completed at: %s\n", time.Now().Format("15:04:05"))
}
