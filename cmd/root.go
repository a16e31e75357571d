package cmd

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"index-pump/internal/dialect"
	"index-pump/internal/logger"
)

var (
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "index-pump",
	Short: "Incremental table-to-index synchronizer",
	Long: `index-pump synchronizes relational table data into an embedded search
index, fingerprinting each table's schema and content so that only the
tables that actually changed since the last run are reprocessed.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logger.SetVerbose(viper.GetBool("log.verbose") || verbose)
		logger.SetLogFile(viper.GetString("log.file"))
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logger.Close()
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./index-pump.yaml)")
	rootCmd.PersistentFlags().String("dsn", "", "source database DSN")
	rootCmd.PersistentFlags().String("driver", "", "source driver: postgres, mysql, sqlserver, oracle")
	rootCmd.PersistentFlags().String("index-path", "", "path to the index database file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	viper.BindPFlag("database.dsn", rootCmd.PersistentFlags().Lookup("dsn"))
	viper.BindPFlag("database.driver", rootCmd.PersistentFlags().Lookup("driver"))
	viper.BindPFlag("index.path", rootCmd.PersistentFlags().Lookup("index-path"))
}

// initConfig reads the config file and INDEX_PUMP_* environment variables.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		if ex, err := os.Executable(); err == nil {
			viper.AddConfigPath(filepath.Dir(ex))
		}
		viper.AddConfigPath(".")
		viper.SetConfigName("index-pump")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("INDEX_PUMP")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		logger.Debugf("using config file %s", viper.ConfigFileUsed())
	}
}

// openSource connects to the configured source database and resolves the
// working schema. Oracle introspection requires a non-empty schema, so the
// fallback always queries or hardcodes one per driver.
func openSource(cfg *Config) (*sql.DB, dialect.Dialect, string, error) {
	db, err := sql.Open(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return nil, nil, "", fmt.Errorf("failed to open source db: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, nil, "", fmt.Errorf("failed to connect to source db: %w", err)
	}

	d := dialect.GetDialect(cfg.Database.Driver)

	schema := cfg.Database.Schema
	if schema == "" {
		switch cfg.Database.Driver {
		case "mysql":
			if err := db.QueryRow("SELECT DATABASE()").Scan(&schema); err != nil || schema == "" {
				db.Close()
				return nil, nil, "", fmt.Errorf("no database selected in DSN")
			}
		case "oracle":
			if err := db.QueryRow("SELECT USER FROM DUAL").Scan(&schema); err != nil {
				db.Close()
				return nil, nil, "", fmt.Errorf("failed to resolve oracle schema: %w", err)
			}
		case "sqlserver", "mssql":
			schema = "dbo"
		default:
			schema = "public"
		}
	}
	logger.Debugf("connected via %s, schema %s", cfg.Database.Driver, schema)
	return db, d, schema, nil
}
