// FilePath: cmd/main.go
package main

import (
	"fmt"
	"log"
	"os"

	tm "github.com/buger/goterm"
	nuts "github.com/vaudience/go-nuts"

	"github.com/hydroguard/hydroguard/internal/config"
	"github.com/hydroguard/hydroguard/internal/server"
)

func main() {
	// Clear console and draw logo
	ClearConsole()
	DrawLogo()
	// Initialize version info
	nuts.InitVersion()
	nuts.L.Infof("[Main] Starting HydroGuard Server v%s", nuts.GetVersion())

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Create and start server
	srv := server.New(cfg)
	if err := srv.Start(); err != nil {
		nuts.L.Errorf("[Main] Server error: %v", err)
		os.Exit(1)
	}
}

// ClearConsole clears the console screen and draws the logo.
func ClearConsole() {
	tm.Clear()
	tm.MoveCursor(1, 1)
	tm.Flush()
}

func DrawLogo() {
	fmt.Println()
	lines := []string{
		"    __  __          __           ______                     __",
		"   / / / /_  ______/ /________  / ____/_  ______ __________/ /",
		"  / /_/ / / / / __  / ___/ __ \\/ / __/ / / / __ `/ ___/ __  / ",
		" / __  / /_/ / /_/ / /  / /_/ / /_/ / /_/ / /_/ / /  / /_/ /  ",
		"/_/ /_/\\__, /\\__,_/_/   \\____/\\____/\\__,_/\\__,_/_/   \\__,_/   ",
		"      /____/ ..................................  " + nuts.GetVersion(),
	}

	for _, line := range lines {
		fmt.Println(line)
	}
}
