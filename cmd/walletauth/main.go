package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/layer-3/walletauth/adapters/tokenizer"
	"github.com/layer-3/walletauth/config"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: walletauth <command>")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  serve                  Start the authentication server")
		fmt.Println("  keygen [EdDSA|ES256]   Print a new base64 PKCS#8 signing key")
		fmt.Println("  health                 Check server health")
		fmt.Println()
		fmt.Println("Configuration is read from $WALLETAUTH_CONFIG_DIR/<APP_ENV>.toml (default ./config/local.toml).")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx)
	case "keygen":
		err = runKeygen(os.Args[2:])
	case "health":
		err = runHealth(ctx)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func configDir() string {
	if dir := os.Getenv("WALLETAUTH_CONFIG_DIR"); dir != "" {
		return dir
	}
	return "config"
}

func runServe(ctx context.Context) error {
	cfg, err := config.Load(configDir())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := setupLogger(cfg.Logging)

	green := color.New(color.FgGreen)
	green.Print("▶ ")
	fmt.Printf("Environment: %s\n", config.Environment())
	green.Print("▶ ")
	fmt.Printf("HTTP:        %s\n", cfg.App.Addr())
	green.Print("▶ ")
	fmt.Printf("Store:       %s\n", cfg.Database.Driver)
	green.Print("▶ ")
	fmt.Printf("Algorithm:   %s (%s)\n", cfg.Auth.Algorithm, cfg.Auth.SignatureScheme)
	fmt.Println()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("creating app: %w", err)
	}

	return a.Run(ctx)
}

func runKeygen(args []string) error {
	algorithm := tokenizer.AlgorithmEdDSA
	if len(args) > 0 {
		algorithm = args[0]
	}

	key, err := tokenizer.GenerateKey(algorithm)
	if err != nil {
		return err
	}

	color.New(color.FgHiBlack).Fprintf(os.Stderr, "# %s signing key, set it as secrets.key_pair (APP_SECRETS__KEY_PAIR)\n", algorithm)
	fmt.Println(key)
	return nil
}

func runHealth(ctx context.Context) error {
	cfg, err := config.Load(configDir())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	host := cfg.App.Host
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	url := "http://" + net.JoinHostPort(host, strconv.Itoa(cfg.App.Port)) + "/healthcheck"

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}

	color.New(color.FgGreen).Println("healthy")
	return nil
}
