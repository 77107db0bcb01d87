// internal/cli/start.go
package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/erilali/v2vrelay/internal/api"
	"github.com/erilali/v2vrelay/internal/logger"
	"github.com/erilali/v2vrelay/internal/util"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// startCmd represents the start command
var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Starts the relay server",
	RunE:  runServer,
}

func init() {
	RootCmd.AddCommand(startCmd)

	startCmd.Flags().IntP("port", "p", 8080, "Port to listen on")
	viper.BindPFlag("server.port", startCmd.Flags().Lookup("port"))
	startCmd.Flags().StringP("log-level", "l", "info", "Log level (debug, info, warn, error)")
	viper.BindPFlag("log.level", startCmd.Flags().Lookup("log-level"))
	startCmd.Flags().Bool("nats", false, "Mirror relay events to NATS")
	viper.BindPFlag("nats.enabled", startCmd.Flags().Lookup("nats"))
	startCmd.Flags().Bool("log-json", false, "Log raw JSON instead of console output")
	viper.BindPFlag("log.json", startCmd.Flags().Lookup("log-json"))
}

// loadConfig reads the effective configuration. Rejected reserved labels are
// reported through warn and do not stop startup.
func loadConfig(warn func(error)) (util.Config, error) {
	cfg, err := util.LoadConfig(cfgFile)
	if errors.Is(err, util.ErrRejectedLabels) {
		warn(err)
		err = nil
	}
	return cfg, err
}

func runServer(cmd *cobra.Command, args []string) error {
	var warning error
	cfg, err := loadConfig(func(err error) { warning = err })
	if err != nil {
		return err
	}

	logger.InitLogger(cfg.Log)
	serverLogger := logger.NewLogger("server")
	if warning != nil {
		serverLogger.Warnf("Config: %v", warning)
	}
	serverLogger.WithFields(map[string]interface{}{
		"port":        cfg.Server.Port,
		"level":       cfg.Log.Level,
		"log_to_file": cfg.Log.LogToFile,
		"nats":        cfg.NATS.Enabled,
		"config":      viper.ConfigFileUsed(),
	}).Info("Starting V2V relay")

	util.WatchConfig(viper.GetViper(), serverLogger, func(next util.Config) {
		if err := logger.SetLevel(next.Log.Level); err != nil {
			serverLogger.Warnf("Ignoring log level %q: %v", next.Log.Level, err)
		}
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	api.Version = Version
	return api.StartServer(ctx, cfg, serverLogger)
}
