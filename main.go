// Command intcode executes Intcode programs.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"runtime/pprof"
	"strconv"
	"strings"
	"time"

	"gitlab.com/efronlicht/enve"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/nf/intcode/intcode"
	"github.com/nf/intcode/wire"
)

func main() {
	log.SetPrefix("intcode: ")
	log.SetFlags(0)

	var (
		asciiFlag    = flag.Bool("ascii", false, "exchange ASCII text instead of numbers on stdin and stdout")
		inputFlag    = flag.String("input", "", "comma separated `values` to seed the input with")
		ampFlag      = flag.String("amp", "", "find the best ordering of comma separated `phases` for an amplifier chain")
		feedbackFlag = flag.Bool("feedback", false, "with -amp, close the chain into a feedback loop")
		netFlag      = flag.Int("net", 0, "run a network of `n` machines")
		devFlag      = flag.Bool("dev", false, "enable developer mode (re-run the program when its file changes)")
		debugFlag    = flag.Bool("debug", false, "enable debugger (implies -dev)")
		patches      patchFlag

		cpuProfileFlag = flag.String("cpu_profile", "", "write CPU profile to `file`")
	)
	flag.Var(&patches, "patch", "write `addr=value` into memory before running (repeatable)")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: %s [-ascii] [-input values] [-patch addr=value] <program>\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "       %s -amp phases [-feedback] <program>\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "       %s -net n <program>\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "       %s <-dev | -debug> [-input values] <program>\n", os.Args[0])
		flag.PrintDefaults()
		os.Exit(2)
	}
	flag.Parse()
	if flag.NArg() != 1 {
		flag.Usage()
	}

	cfg := loadConfig()
	logger := setupLogger(os.Stderr, cfg.logLevel)
	defer logger.Sync()

	input, err := parseValues(*inputFlag)
	if err != nil {
		log.Fatalf("-input: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if *devFlag || *debugFlag {
		if err := devMode(ctx, logger, cfg, *debugFlag, flag.Arg(0), input, patches); err != nil {
			log.Fatal(err)
		}
		return
	}

	var cpuProfile io.Closer
	if prof := *cpuProfileFlag; prof != "" {
		f, err := os.Create(prof)
		if err != nil {
			log.Fatalf("creating CPU profile file: %v", err)
		}
		pprof.StartCPUProfile(f)
		cpuProfile = f
	}

	prog, err := loadProgram(flag.Arg(0))
	if err == nil {
		switch {
		case *ampFlag != "":
			err = runAmplifiers(ctx, prog, *ampFlag, *feedbackFlag)
		case *netFlag > 0:
			err = runNetwork(ctx, logger, cfg, prog, *netFlag)
		default:
			err = run(prog, input, patches, *asciiFlag)
		}
	}

	if f := cpuProfile; f != nil {
		pprof.StopCPUProfile()
		f.Close()
	}

	if err != nil {
		log.Fatal(err)
	}
}

// config holds settings read from the environment.
type config struct {
	maxPasses int
	mailbox   int64
	logLevel  string
	devDelay  time.Duration
}

func loadConfig() config {
	return config{
		maxPasses: enve.IntOr("INTCODE_MAX_PASSES", 0),
		mailbox:   int64(enve.IntOr("INTCODE_MAILBOX", wire.DefaultMailbox)),
		logLevel:  enve.StringOr("INTCODE_LOG_LEVEL", "info"),
		devDelay:  enve.DurationOr("INTCODE_DEV_DELAY", 100*time.Millisecond),
	}
}

func setupLogger(w io.Writer, level string) *zap.Logger {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		lvl = zapcore.InfoLevel
	}
	cfg := zap.NewProductionEncoderConfig()
	cfg.EncodeTime = zapcore.RFC3339TimeEncoder
	cfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
	cfg.EncodeDuration = zapcore.NanosDurationEncoder
	logger := zap.New(zapcore.NewCore(
		zapcore.NewConsoleEncoder(cfg),
		zapcore.Lock(zapcore.AddSync(w)),
		lvl,
	))
	zap.ReplaceGlobals(logger)
	return logger
}

func loadProgram(file string) ([]int64, error) {
	b, err := os.ReadFile(file)
	if err != nil {
		return nil, err
	}
	prog, err := intcode.Parse(string(b))
	if err != nil {
		return nil, fmt.Errorf("%s: %v", file, err)
	}
	return prog, nil
}

func run(prog, input []int64, patches patchFlag, ascii bool) error {
	m := intcode.NewMachine(prog)
	if err := patches.apply(m); err != nil {
		return err
	}
	m.Seed(input...)
	con := newConsole(os.Stdin, os.Stdout, ascii)
	m.LinkInput(con.Input())
	m.LinkOutput(con)
	_, err := m.Run()
	if ferr := con.Flush(); err == nil {
		err = ferr
	}
	return err
}

func runAmplifiers(ctx context.Context, prog []int64, phases string, feedback bool) error {
	ps, err := parseValues(phases)
	if err != nil {
		return fmt.Errorf("-amp: %v", err)
	}
	best, order, err := wire.MaxThrust(ctx, prog, ps, feedback)
	if err != nil {
		return err
	}
	fmt.Printf("%d %s\n", best, intcode.Format(order))
	return nil
}

func runNetwork(ctx context.Context, logger *zap.Logger, cfg config, prog []int64, n int) error {
	s := wire.NewNetwork(prog, n)
	s.Mailbox = cfg.mailbox
	s.MaxPasses = cfg.maxPasses
	s.Logger = logger.Named("switch")
	y, err := s.Run(ctx)
	if err != nil {
		return err
	}
	if p, ok := s.FirstMailbox(); ok {
		fmt.Println(p.Y)
	}
	fmt.Println(y)
	logger.Info("network settled",
		zap.Int("passes", s.Passes()),
		zap.Int("recoveries", len(s.Injections())))
	return nil
}

func parseValues(s string) ([]int64, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	return intcode.Parse(s)
}

// patchFlag collects addr=value pairs given with -patch.
type patchFlag []struct{ addr, value int64 }

func (p *patchFlag) String() string {
	var b strings.Builder
	for i, v := range *p {
		if i > 0 {
			b.WriteByte(' ')
		}
		fmt.Fprintf(&b, "%d=%d", v.addr, v.value)
	}
	return b.String()
}

func (p *patchFlag) Set(s string) error {
	a, v, ok := strings.Cut(s, "=")
	if !ok {
		return fmt.Errorf("want addr=value, got %q", s)
	}
	addr, err := strconv.ParseInt(a, 10, 64)
	if err != nil {
		return err
	}
	value, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return err
	}
	*p = append(*p, struct{ addr, value int64 }{addr, value})
	return nil
}

func (p patchFlag) apply(m *intcode.Machine) error {
	for _, v := range p {
		if err := m.Patch(v.addr, v.value); err != nil {
			return err
		}
	}
	return nil
}
