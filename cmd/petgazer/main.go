package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/langchou/petgazer/internal/api/tractive"
	"github.com/langchou/petgazer/internal/app"
	"github.com/langchou/petgazer/internal/config"
)

// command 一个子命令
type command struct {
	usage string
	// local 为 true 时不需要云端登录（蓝牙）
	local bool
	run   func(ctx context.Context, env *cliEnv, args []string) error
}

// cliEnv 子命令共享的运行环境
type cliEnv struct {
	cfg    *config.Config
	logger *zap.Logger
	out    io.Writer
	json   bool
	app    *app.App
}

var commands = map[string]command{
	"status":    {usage: "status [-partial]", run: runStatus},
	"location":  {usage: "location [-max-age 0s] [-address]", run: runLocation},
	"control":   {usage: "control -cmd <battery_saver|live_tracking|led_control|buzzer_control> -state on|off", run: runControl},
	"pet":       {usage: "pet", run: runPet},
	"export":    {usage: "export [-o file.csv] [-datetime] [-db]", run: runExport},
	"history":   {usage: "history [-hours 24] [-analytics] [-v]", run: runHistory},
	"monitor":   {usage: "monitor [-interval 10s] [-threshold 50] [-trigger] [-stop-at-home] [-battery-saver]", run: runMonitor},
	"home":      {usage: "home [-threshold 50]", run: runHome},
	"share":     {usage: "share create [-message text] | list | deactivate <id>", run: runShare},
	"live":      {usage: "live [-timeout 2m]", run: runLive},
	"stats":     {usage: "stats", run: runStats},
	"bluetooth": {usage: "bluetooth scan [-timeout 10s] | battery|light|sound [-addr AA:BB:..] [-state on|off]", local: true, run: runBluetooth},
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	global := flag.NewFlagSet("petgazer", flag.ContinueOnError)
	global.SetOutput(stderr)
	jsonOut := global.Bool("json", false, "print results as JSON")
	debug := global.Bool("debug", false, "verbose logging")
	global.Usage = func() { usage(stderr, global) }

	if err := global.Parse(args); err != nil {
		return 2
	}
	if global.NArg() == 0 {
		global.Usage()
		return 2
	}

	name := global.Arg(0)
	cmd, ok := commands[name]
	if !ok {
		fmt.Fprintf(stderr, "unknown command %q\n\n", name)
		global.Usage()
		return 2
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	logger := app.InitLogger(cfg.Debug || *debug)
	if !cfg.Debug && !*debug {
		logger = logger.WithOptions(zap.IncreaseLevel(zapcore.WarnLevel))
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	env := &cliEnv{cfg: cfg, logger: logger, out: stdout, json: *jsonOut}
	if !cmd.local {
		a, err := app.New(ctx, cfg, logger)
		if err != nil {
			fmt.Fprintf(stderr, "Error: %s\n", describe(err))
			return 1
		}
		env.app = a
	}

	if err := cmd.run(ctx, env, global.Args()[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			fmt.Fprintf(stderr, "Usage: petgazer %s\n", cmd.usage)
			return 2
		}
		if errors.Is(err, context.Canceled) {
			fmt.Fprintln(stderr, "Interrupted")
			return 130
		}
		fmt.Fprintf(stderr, "Error: %s\n", describe(err))
		return 1
	}
	return 0
}

func usage(w io.Writer, global *flag.FlagSet) {
	fmt.Fprintln(w, "Usage: petgazer [-json] [-debug] <command> [flags]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "  %s\n", commands[name].usage)
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Global flags:")
	global.PrintDefaults()
}

// describe 给常见错误补充提示
func describe(err error) string {
	if rl, ok := tractive.IsRateLimited(err); ok {
		return fmt.Sprintf("%v (try again in %s)", err, rl.RetryAfter)
	}
	if tractive.IsAuthError(err) {
		return fmt.Sprintf("%v (check TRACTIVE_EMAIL / TRACTIVE_PASSWORD)", err)
	}
	return err.Error()
}
