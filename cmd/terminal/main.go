// Command terminal runs the market in process behind the terminal
// dashboard. Logs go to the configured file so they do not corrupt the
// screen.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/gin-gonic/gin"

	"github.com/zappabad/cloutmarket/internal/app"
	"github.com/zappabad/cloutmarket/internal/config"
	"github.com/zappabad/cloutmarket/internal/logging"
	"github.com/zappabad/cloutmarket/tui"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "cloutmarket: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to the YAML config file")
	user := flag.String("user", "player", "user id to trade as")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	cfg.Logging.Output = "file"

	logger, closer, err := logging.New(cfg.Logging)
	if err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	defer closer.Close()

	gin.SetMode(gin.ReleaseMode)

	ctx := context.Background()
	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := a.Close(closeCtx); err != nil {
			logger.Error("shutdown", "err", err)
		}
	}()
	if err := a.Start(ctx); err != nil {
		return err
	}

	model := tui.NewModel(a.Market, a.Trading, a.Events, a.Registry.All(), *user)
	if _, err := tea.NewProgram(model, tea.WithAltScreen()).Run(); err != nil {
		return fmt.Errorf("terminal ui: %w", err)
	}
	return nil
}
