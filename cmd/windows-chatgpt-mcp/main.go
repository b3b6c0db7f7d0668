// Copyright 2025 Kyungsuk Kim
//
// MCP server for the Windows ChatGPT desktop app - provides JSON-RPC 2.0
// tools over stdio or HTTP/SSE

package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kyungsuk-kim/windows-chatgpt-mcp/internal/config"
	"github.com/kyungsuk-kim/windows-chatgpt-mcp/internal/server"
	"github.com/kyungsuk-kim/windows-chatgpt-mcp/internal/transport"
)

var (
	flagConfig    string
	flagTransport string
	flagAddress   string
	flagAuditLog  string
	flagLogLevel  string
)

func main() {
	root := &cobra.Command{
		Use:   "windows-chatgpt-mcp",
		Short: "MCP server automating the ChatGPT desktop app on Windows",
		Long: "windows-chatgpt-mcp exposes the ChatGPT desktop application as MCP tools:\n" +
			"send a message and capture the reply, read the conversation transcript,\n" +
			"reset the conversation, and inspect server diagnostics.",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run()
		},
	}

	root.Flags().StringVarP(&flagConfig, "config", "c", "", "path to TOML config file (default $CHATGPT_MCP_CONFIG)")
	root.Flags().StringVarP(&flagTransport, "transport", "t", "", "transport to serve on: stdio or sse")
	root.Flags().StringVar(&flagAddress, "http-address", "", "listen address for the sse transport")
	root.Flags().StringVar(&flagAuditLog, "audit-log", "", "path to the audit log file")
	root.Flags().StringVar(&flagLogLevel, "log-level", "", "log level: debug, info, warn, or error")

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the server version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(config.Version)
		},
	})

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func run() error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// The stdio transport owns stdout; all logging goes to stderr.
	log.SetOutput(os.Stderr)

	mcpServer, err := server.NewMCPServer(cfg)
	if err != nil {
		return fmt.Errorf("failed to create MCP server: %w", err)
	}

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	var wg sync.WaitGroup
	errChan := make(chan error, 1)

	wg.Add(1)
	go func() {
		defer wg.Done()
		var serveErr error
		switch cfg.Server.Transport {
		case config.TransportHTTP:
			serveErr = runHTTPTransport(cfg, mcpServer)
		default:
			serveErr = runStdioTransport(cfg, mcpServer)
		}
		if serveErr != nil {
			errChan <- serveErr
		}
	}()

	// Wait for shutdown signal or error
	select {
	case sig := <-sigChan:
		log.Printf("Received signal %v, shutting down...", sig)
		mcpServer.Shutdown()
	case err := <-errChan:
		log.Printf("Server error: %v", err)
		mcpServer.Shutdown()
		return err
	}

	// Wait for graceful shutdown
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Println("Server shutdown complete")
	case <-sigChan:
		log.Println("Forced shutdown")
	}
	return nil
}

// loadConfig assembles the configuration and overlays command-line flags,
// which take precedence over both the file and the environment.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return nil, err
	}

	if flagTransport != "" {
		cfg.Server.Transport = config.TransportType(flagTransport)
	}
	if flagAddress != "" {
		cfg.Server.HTTPAddress = flagAddress
	}
	if flagAuditLog != "" {
		cfg.Server.AuditLogPath = flagAuditLog
	}
	if flagLogLevel != "" {
		cfg.Server.LogLevel = flagLogLevel
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// runStdioTransport serves MCP over stdin/stdout.
func runStdioTransport(_ *config.Config, mcpServer *server.MCPServer) error {
	tr := transport.NewStdioTransport(os.Stdin, os.Stdout)
	return mcpServer.Serve(tr)
}

// runHTTPTransport serves MCP over HTTP/SSE with a metrics endpoint.
func runHTTPTransport(cfg *config.Config, mcpServer *server.MCPServer) error {
	metrics := transport.NewMetricsRegistry()
	mcpServer.SetMetrics(metrics)

	tr := transport.NewHTTPTransport(&transport.HTTPTransportConfig{
		Address:           cfg.Server.HTTPAddress,
		SocketPath:        cfg.Server.HTTPSocketPath,
		CORSOrigin:        cfg.Server.CORSOrigin,
		HeartbeatInterval: cfg.Server.HeartbeatInterval.Std(),
		ReadTimeout:       cfg.Server.HTTPReadTimeout.Std(),
		WriteTimeout:      cfg.Server.HTTPWriteTimeout.Std(),
		RateLimit:         cfg.Server.RateLimit,
	}, metrics)
	return mcpServer.Serve(tr)
}
