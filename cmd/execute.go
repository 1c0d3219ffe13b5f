// Package cmd contains the CLI entry points: serve, version and help.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/havenmind/haven/internal/log"
)

// Execute routes the command line. main.go stays a minimal entry
// point; all command logic lives here.
func Execute() error {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "version", "--version", "-v":
			printVersion()
			return nil
		case "help", "--help", "-h":
			printHelp()
			return nil
		case "serve":
			return runServe()
		default:
			printHelp()
			return fmt.Errorf("unknown command %q", os.Args[1])
		}
	}

	// Serving is the default behavior.
	return runServe()
}

// initLogger builds the process logger. DEBUG in the environment
// enables debug level; HAVEN_LOG_JSON switches to JSON output.
func initLogger() log.Logger {
	cfg := log.Config{Level: slog.LevelInfo}
	if os.Getenv("DEBUG") != "" {
		cfg.Level = slog.LevelDebug
	}
	if os.Getenv("HAVEN_LOG_JSON") != "" {
		cfg.JSON = true
	}
	return log.New(cfg)
}

func printHelp() {
	fmt.Print(`haven - mental wellness companion API

Usage:
  haven [command]

Commands:
  serve     Start the HTTP API server (default)
  version   Print version information
  help      Show this help

Environment:
  HAVEN_SERVER_ADDR        Listen address (default 127.0.0.1:8080)
  DATABASE_URL             PostgreSQL connection URL
  GEMINI_API_KEY           Google AI API key
  HELPLINE_PHONE_NUMBER    Alert SMS destination
  TWILIO_ACCOUNT_SID       Twilio credentials for the SMS channel
  TWILIO_AUTH_TOKEN
  TWILIO_MESSAGING_SERVICE_SID
  TELEGRAM_BOT_TOKEN       Telegram fallback channel credentials
  TELEGRAM_CHAT_ID
  DEBUG                    Enable debug logging
`)
}
