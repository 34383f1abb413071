package cmd

import (
	"fmt"
	"io"
	"reflect"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/jmylchreest/convertarr/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration management commands",
	Long:  `Commands for managing convertarr configuration.`,
}

var configDumpCmd = &cobra.Command{
	Use:   "dump",
	Short: "Dump the default configuration",
	Long: `Dump the default configuration values in YAML format.

This shows all available configuration options with their default values.
You can redirect this output to a file to create a configuration template:

  convertarr config dump > config.yaml

Configuration can be set via:
  - Config file (config.yaml in ., ./configs, /etc/convertarr, $HOME/.convertarr)
  - Environment variables (CONVERTARR_SERVER_PORT, CONVERTARR_DATABASE_DSN, etc.)
  - Command-line flags (for some options)

Environment variables use the CONVERTARR_ prefix and underscores for nesting.
Example: storage.max_upload_size -> CONVERTARR_STORAGE_MAX_UPLOAD_SIZE`,
	RunE: runConfigDump,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configDumpCmd)
}

// toMap converts a config struct to a map keyed by mapstructure tags,
// rendering durations and byte sizes in their human-readable forms.
func toMap(v any) map[string]any {
	result := make(map[string]any)
	val := reflect.ValueOf(v)
	if val.Kind() == reflect.Ptr {
		val = val.Elem()
	}
	typ := val.Type()

	for i := range val.NumField() {
		field := val.Field(i)
		fieldType := typ.Field(i)
		if !fieldType.IsExported() {
			continue
		}

		key := fieldType.Tag.Get("mapstructure")
		if key == "" {
			key = fieldType.Name
		}

		switch fv := field.Interface().(type) {
		case time.Duration:
			result[key] = fv.String()
		case config.ByteSize:
			result[key] = fv.String()
		default:
			if field.Kind() == reflect.Struct {
				result[key] = toMap(fv)
			} else {
				result[key] = fv
			}
		}
	}
	return result
}

func defaultConfig() (*config.Config, error) {
	v := viper.New()
	config.SetDefaults(v)
	return config.FromViper(v)
}

func writeConfigDump(w io.Writer, cfg *config.Config) error {
	yamlData, err := yaml.Marshal(toMap(cfg))
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	header := `# convertarr Configuration File
# ==============================
#
# All values shown below are defaults.
# Duration format: 30s, 10m0s, 1h0m0s (0s disables output retention)
# Size format: 500MB, 1GB
#
# Environment variable overrides:
#   CONVERTARR_SERVER_HOST, CONVERTARR_SERVER_PORT
#   CONVERTARR_DATABASE_DRIVER, CONVERTARR_DATABASE_DSN
#   CONVERTARR_STORAGE_BASE_DIR, CONVERTARR_STORAGE_MAX_UPLOAD_SIZE
#   CONVERTARR_FFMPEG_BINARY_PATH, CONVERTARR_LOGGING_LEVEL
#   etc.

`
	if _, err := io.WriteString(w, header); err != nil {
		return err
	}
	_, err = w.Write(yamlData)
	return err
}

func runConfigDump(cmd *cobra.Command, _ []string) error {
	cfg, err := defaultConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	return writeConfigDump(cmd.OutOrStdout(), cfg)
}
