package util

import (
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/makeflow/ordered-lock/rpc/common"
	"github.com/makeflow/ordered-lock/rpc/serializer"
	"github.com/makeflow/ordered-lock/rpc/transport"
	"github.com/makeflow/ordered-lock/rpc/transport/tcp"
	"github.com/makeflow/ordered-lock/rpc/transport/unix"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	// Wrap is the number of characters to Wrap the help text at
	Wrap int = 50
)

// WrapString wraps a string at Wrap characters
func WrapString(text string) string {
	var wrappedLines []string
	var currentLine strings.Builder
	lineWidth := 0

	for _, word := range strings.Fields(text) {
		wordWidth := len(word)

		// Check if we need to wrap
		if lineWidth > 0 && lineWidth+1+wordWidth > Wrap {
			wrappedLines = append(wrappedLines, currentLine.String())
			currentLine.Reset()
			lineWidth = 0
		}

		// Add space before word (if not first word on line)
		if lineWidth > 0 {
			currentLine.WriteString(" ")
			lineWidth++
		}

		// Add the word
		currentLine.WriteString(word)
		lineWidth += wordWidth
	}

	// Add any remaining text
	if currentLine.Len() > 0 {
		wrappedLines = append(wrappedLines, currentLine.String())
	}

	return strings.Join(wrappedLines, "\n")
}

// SetupRPCClientFlags adds common client connection flags to a command
func SetupRPCClientFlags(cmd *cobra.Command) {
	key := "endpoint"
	cmd.PersistentFlags().String(key, common.DefaultEndpoint("", 0), WrapString("The address of the lock server (host:port for tcp, a path for unix)"))

	key = "timeout"
	cmd.PersistentFlags().Int64(key, 10, WrapString("The timeout in seconds of a single call"))

	key = "reconnect-initial-interval"
	cmd.PersistentFlags().Float64(key, float64(common.DefaultInitialInterval), WrapString("First reconnect delay in seconds"))

	key = "reconnect-max-interval"
	cmd.PersistentFlags().Float64(key, float64(common.DefaultMaxInterval), WrapString("Upper bound of the reconnect delay in seconds"))

	key = "reconnect-multiplier"
	cmd.PersistentFlags().Float64(key, common.DefaultIntervalMultiplier, WrapString("Growth factor of the reconnect delay after each failed attempt"))

	key = "ttl"
	cmd.PersistentFlags().Float64(key, 30, WrapString("Lock time-to-live in seconds; the lock expires if it is not extended within this time"))

	key = "locking-timeout"
	cmd.PersistentFlags().Float64(key, 30, WrapString("How long an acquisition may wait in seconds before it fails"))

	key = "extend-schedule"
	cmd.PersistentFlags().Float64(key, common.DefaultExtendSchedule, WrapString("Fraction of the ttl after which the lock is extended automatically"))

	key = "tcp-nodelay"
	cmd.PersistentFlags().Bool(key, true, WrapString("Whether to enable TCP_NODELAY (only for tcp)"))

	key = "log-level"
	cmd.PersistentFlags().String(key, "warn", WrapString("LogLevel is the level at which logs will be output (debug, info, warn, error)"))
}

// InitClientConfig initializes configuration from environment variables
func InitClientConfig() {
	// load env files
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	// initialize viper
	viper.SetEnvPrefix("olock")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv() // read in environment variables that match
}

// GetClientConfig reads client configuration from viper
func GetClientConfig() *common.ClientConfig {
	return &common.ClientConfig{
		Endpoint:      viper.GetString("endpoint"),
		TimeoutSecond: viper.GetInt64("timeout"),
		TCPNoDelay:    viper.GetBool("tcp-nodelay"),
		LogLevel:      viper.GetString("log-level"),
		Reconnect: common.ReconnectConfig{
			InitialInterval:    common.Seconds(viper.GetFloat64("reconnect-initial-interval")),
			MaxInterval:        common.Seconds(viper.GetFloat64("reconnect-max-interval")),
			IntervalMultiplier: viper.GetFloat64("reconnect-multiplier"),
		},
		Lock: common.LockConfig{
			TTL:            common.Seconds(viper.GetFloat64("ttl")),
			LockingTimeout: common.Seconds(viper.GetFloat64("locking-timeout")),
			ExtendSchedule: viper.GetFloat64("extend-schedule"),
		},
	}
}

// GetSerializer creates a serializer based on configuration
func GetSerializer() (serializer.IRPCSerializer, error) {
	switch viper.GetString("serializer") {
	case "json":
		return serializer.NewJSONSerializer(), nil
	case "gob":
		return serializer.NewGOBSerializer(), nil
	default:
		return nil, fmt.Errorf("invalid serializer %s", viper.GetString("serializer"))
	}
}

// GetClientTransport creates a client transport based on configuration
func GetClientTransport() (transport.IRPCClientTransport, error) {
	switch viper.GetString("transport") {
	case "tcp":
		return tcp.NewTCPClientTransport(), nil
	case "unix":
		return unix.NewUnixClientTransport(), nil
	default:
		return nil, fmt.Errorf("invalid transport %s", viper.GetString("transport"))
	}
}

// GetServerTransport creates a server transport based on configuration
func GetServerTransport() (transport.IRPCServerTransport, error) {
	switch viper.GetString("transport") {
	case "tcp":
		return tcp.NewTCPServerTransport(), nil
	case "unix":
		return unix.NewUnixServerTransport(), nil
	default:
		return nil, fmt.Errorf("invalid transport %s", viper.GetString("transport"))
	}
}

// BindCommandFlags binds a command's flags to viper
func BindCommandFlags(cmd *cobra.Command) error {
	return viper.BindPFlags(cmd.Flags())
}
