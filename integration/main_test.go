package integration

import (
	"flag"
	"fmt"
	"os"
	"os/exec"
	"testing"
)

const (
	binaryPath = "../cmd/restaurant-reviews/restaurant-reviews"
	appPort    = "8085"
	appURL     = "http://localhost:" + appPort
	entraPort  = "9091"
	entraURL   = "http://localhost:" + entraPort
	logFile    = "restaurant-reviews-test.log"
)

// TestMain builds the binary once and runs a fake Entra ID server for the
// whole package.
func TestMain(m *testing.M) {
	flag.Parse()
	if testing.Short() {
		fmt.Println("Skipping integration tests in short mode")
		os.Exit(0)
	}

	fmt.Println("Building restaurant-reviews binary...")
	buildCmd := exec.Command("go", "build", "-o", binaryPath, "../cmd/restaurant-reviews")
	buildCmd.Stdout = os.Stdout
	buildCmd.Stderr = os.Stderr
	if err := buildCmd.Run(); err != nil {
		fmt.Printf("Failed to build restaurant-reviews: %v\n", err)
		os.Exit(1)
	}

	_ = os.Remove(logFile)
	os.Setenv("RESTAURANTS_LOG_FILE", logFile)

	var exitCode int
	defer func() {
		if exitCode != 0 {
			showTestFailureDiagnostics(logFile)
		}
		os.Exit(exitCode)
	}()

	fakeEntra := NewFakeEntraServer(entraPort)
	if err := fakeEntra.Start(); err != nil {
		fmt.Printf("Failed to start fake Entra ID server: %v\n", err)
		exitCode = 1
		return
	}
	defer func() {
		_ = fakeEntra.Stop()
	}()

	exitCode = m.Run()
}

// showTestFailureDiagnostics prints the tail of the application log
func showTestFailureDiagnostics(logFile string) {
	fmt.Println("\n========== TEST FAILURE DIAGNOSTICS ==========")
	if _, err := os.Stat(logFile); err == nil {
		fmt.Println("\nrestaurant-reviews logs (last 50 lines):")
		fmt.Println("----------------------------------------------")
		tailCmd := exec.Command("tail", "-50", logFile)
		tailCmd.Stdout = os.Stdout
		tailCmd.Stderr = os.Stderr
		_ = tailCmd.Run()
	}
	fmt.Println("\n==============================================")
}
