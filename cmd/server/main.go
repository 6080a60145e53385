package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/openlocale/openlocale/internal/server"
	"github.com/openlocale/openlocale/internal/utils"
	"github.com/openlocale/openlocale/internal/version"
)

const defaultDBPath = "./data/openlocale.db"

var rootCmd = &cobra.Command{
	Use:     "openlocale-server",
	Short:   "OpenLocale sync server",
	Version: version.Detailed(),
	PreRunE: func(cmd *cobra.Command, args []string) error {
		return loadConfig(cmd)
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true

		dbPath, err := utils.ResolvePath(viper.GetString("db_path"))
		if err != nil {
			return fmt.Errorf("resolve db path: %w", err)
		}

		config := &server.Config{
			DBPath: dbPath,
		}
		config.HTTP.Addr = viper.GetString("http.addr")
		config.HTTP.CertFile = viper.GetString("http.cert_file")
		config.HTTP.KeyFile = viper.GetString("http.key_file")
		config.HTTP.RateLimit = viper.GetString("http.rate_limit")
		config.GitHub.Token = viper.GetString("github.token")
		config.GitHub.BaseURL = viper.GetString("github.base_url")
		config.GitHub.MaxConcurrent = viper.GetInt("github.max_concurrent")
		config.Snapshot.Bucket = viper.GetString("snapshot.bucket")
		config.Snapshot.Region = viper.GetString("snapshot.region")
		config.Snapshot.Endpoint = viper.GetString("snapshot.endpoint")
		config.Snapshot.AccessKey = viper.GetString("snapshot.access_key")
		config.Snapshot.SecretKey = viper.GetString("snapshot.secret_key")

		showHeader()
		slog.Info("openlocale", "version", version.Version, "revision", version.Revision, "build", version.BuildDate)

		s, err := server.New(config)
		if err != nil {
			return err
		}

		defer slog.Info("Bye!")
		if err := s.Start(cmd.Context()); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("server start", "error", err)
			return err
		}
		return nil
	},
}

func init() {
	rootCmd.Flags().SortFlags = false
	rootCmd.Flags().StringP("bind", "b", server.DefaultAddr, "Address to bind the server")
	rootCmd.Flags().StringP("db", "d", defaultDBPath, "Path to the SQLite database")
	rootCmd.Flags().StringP("github-token", "t", "", "GitHub token used to fetch translation files")
	rootCmd.Flags().String("cert", "", "Path to the TLS certificate file")
	rootCmd.Flags().String("key", "", "Path to the TLS key file")
	rootCmd.PersistentFlags().StringP("config", "c", "", "Path to the config file")
}

func main() {
	// best effort, the env file is optional
	godotenv.Load()

	handler := tint.NewHandler(os.Stdout, &tint.Options{
		Level:      slog.LevelDebug,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
		NoColor:    !isatty.IsTerminal(os.Stdout.Fd()),
	})
	slog.SetDefault(slog.New(handler))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func loadConfig(cmd *cobra.Command) error {
	if cmd.Flag("config").Changed {
		configFilePath, _ := cmd.Flags().GetString("config")
		viper.SetConfigFile(configFilePath)
	} else {
		viper.AddConfigPath(".")
		viper.AddConfigPath("/etc/openlocale")
		viper.SetConfigName("openlocale")
		viper.SetConfigType("yaml")
	}

	if err := viper.ReadInConfig(); err != nil {
		enoent := errors.Is(err, os.ErrNotExist)
		_, ok := err.(viper.ConfigFileNotFoundError)
		if !enoent && !ok {
			return fmt.Errorf("config read '%s': %w", viper.ConfigFileUsed(), err)
		}
	}

	viper.BindPFlag("http.addr", cmd.Flags().Lookup("bind"))
	viper.BindPFlag("http.cert_file", cmd.Flags().Lookup("cert"))
	viper.BindPFlag("http.key_file", cmd.Flags().Lookup("key"))
	viper.BindPFlag("db_path", cmd.Flags().Lookup("db"))
	viper.BindPFlag("github.token", cmd.Flags().Lookup("github-token"))

	viper.SetEnvPrefix("OPENLOCALE")
	viper.AutomaticEnv()

	return nil
}

func showHeader() {
	color.New(color.FgHiCyan, color.Bold).
		Println(version.ShortWithApp())
}
