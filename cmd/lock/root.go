package lock

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
	"time"

	"github.com/makeflow/ordered-lock/cmd/util"
	"github.com/makeflow/ordered-lock/rpc/client"
	"github.com/makeflow/ordered-lock/rpc/common"
	"github.com/spf13/cobra"
)

var (
	session *client.Session

	// LockCommands represents the lock command group
	LockCommands = &cobra.Command{
		Use:               "lock",
		Short:             "Acquire locks and run commands under them",
		PersistentPreRunE: setupLockClient,
		PersistentPostRun: teardownLockClient,
	}

	// acquireCmd represents the acquire command
	acquireCmd = &cobra.Command{
		Use:   "acquire [resource...]",
		Short: "Acquire a lock and hold it until interrupted",
		Long:  "Acquire a lock on the given resources and hold it (auto-extending) until the process is interrupted or --hold elapses. Locks are bound to the connection, so they cannot outlive this command.",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runAcquire,
	}

	// runCmd represents the run command
	runCmd = &cobra.Command{
		Use:   "run [resource...] -- command [args...]",
		Short: "Run a command while holding a lock",
		Long:  "Acquire a lock on the given resources, run the command with the lock auto-extended for the command's lifetime, then release the lock.",
		Args:  cobra.MinimumNArgs(2),
		RunE:  runRun,
	}
)

func init() {
	// Initialize viper
	cobra.OnInitialize(util.InitClientConfig)

	// Add subcommands to lock command
	LockCommands.AddCommand(acquireCmd)
	LockCommands.AddCommand(runCmd)

	// Add common RPC flags to the lock command
	util.SetupRPCClientFlags(LockCommands)

	// Add flags specific to acquire
	acquireCmd.Flags().Float64("hold", 0, "How long to hold the lock in seconds (0 holds until interrupted)")
}

// setupLockClient initializes the client session
func setupLockClient(cmd *cobra.Command, _ []string) error {
	// Bind command flags to viper
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}

	config := util.GetClientConfig()
	common.InitLoggers(config.LogLevel)

	s, err := util.GetSerializer()
	if err != nil {
		return err
	}

	t, err := util.GetClientTransport()
	if err != nil {
		return err
	}

	session = client.NewSession(*config, t, s)
	return nil
}

// teardownLockClient closes the client session
func teardownLockClient(_ *cobra.Command, _ []string) {
	if session != nil {
		_ = session.Close()
	}
}

// runAcquire handles the acquire command
func runAcquire(cmd *cobra.Command, args []string) error {
	hold, _ := cmd.Flags().GetFloat64("hold")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err := session.WithLock(ctx, args, func(ctx context.Context, _ client.ExtendFunc) error {
		fmt.Printf("acquired %v\n", args)

		if hold > 0 {
			select {
			case <-time.After(time.Duration(hold * float64(time.Second))):
			case <-ctx.Done():
			}
		} else {
			<-ctx.Done()
		}
		return nil
	}, &client.LockOptions{Extends: client.ExtendForever()})

	if err != nil {
		return fmt.Errorf("failed to acquire lock: %v", err)
	}
	fmt.Println("released")
	return nil
}

// runRun handles the run command
func runRun(cmd *cobra.Command, args []string) error {
	sep := cmd.ArgsLenAtDash()
	if sep < 1 || sep >= len(args) {
		return fmt.Errorf("expected resources and a command separated by --")
	}
	resources, command := args[:sep], args[sep:]

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var runErr error
	err := session.WithLock(ctx, resources, func(ctx context.Context, _ client.ExtendFunc) error {
		c := exec.CommandContext(ctx, command[0], command[1:]...)
		c.Stdin = os.Stdin
		c.Stdout = os.Stdout
		c.Stderr = os.Stderr
		runErr = c.Run()
		return runErr
	}, &client.LockOptions{Extends: client.ExtendForever()})

	if err != nil && runErr == nil {
		return fmt.Errorf("failed to run under lock: %v", err)
	}
	return runErr
}
