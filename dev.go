package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/howeyc/fsnotify"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/nf/intcode/intcode"
	"github.com/nf/intcode/wire"
)

// devMode runs the program in file under a Runner, reloading and
// restarting it whenever the file changes. Input comes only from the
// seeded values, so programs that read more fail with "input not wired".
func devMode(ctx context.Context, logger *zap.Logger, cfg config, debugEnabled bool, file string, input []int64, patches patchFlag) error {
	file = filepath.Clean(file)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()
	if err := watcher.Watch(filepath.Dir(file)); err != nil {
		return err
	}

	var (
		out   io.Writer = os.Stdout
		state wire.StateFunc
		debug *debugger
	)
	if debugEnabled {
		debug = newDebugger()
		out = debug.log
		state = debug.StateFunc
		logger = setupLogger(debug.log, cfg.logLevel)
		log.SetPrefix("")
		log.SetOutput(debug.log)
	}
	runner := wire.NewRunner(state)
	runner.Logger = logger.Named("runner")
	if debug != nil {
		debug.run = runner
		go func() {
			if err := debug.Run(); err != nil {
				log.Fatalf("debug: %v", err)
			}
			log.SetOutput(os.Stderr)
			log.SetPrefix("intcode: ")
			runner.Debug("exit", 0)
		}()
	}

	load := func() (*intcode.Machine, error) {
		prog, err := loadProgram(file)
		if err != nil {
			return nil, err
		}
		m := intcode.NewMachine(prog)
		if err := patches.apply(m); err != nil {
			return nil, err
		}
		m.Seed(input...)
		m.LinkOutput(intcode.SinkFunc(func(v int64) bool {
			_, err := fmt.Fprintln(out, v)
			return err == nil
		}))
		if logger.Core().Enabled(zapcore.DebugLevel) {
			m.Trace = func(pc int64, in intcode.Instr) {
				logger.Debug("exec", zap.Int64("pc", pc), zap.Stringer("instr", in))
			}
		}
		if debug != nil {
			syms, err := parseSymbols(file + ".sym")
			if err != nil {
				return nil, fmt.Errorf("reading symbols: %v", err)
			}
			debug.setSymbols(syms)
		}
		return m, nil
	}

	mCh := make(chan *intcode.Machine)
	go func() {
		started := false
		reload := time.After(1 * time.Millisecond)
		for {
			select {
			case <-reload:
				logger.Info("dev: load", zap.String("file", filepath.Base(file)))
				m, err := load()
				if err != nil {
					logger.Error("dev: load failed", zap.Error(err))
					break
				}
				if !started {
					logger.Info("dev: start")
					mCh <- m
					started = true
				} else {
					logger.Info("dev: reset")
					runner.Swap(m)
				}
			case ev := <-watcher.Event:
				if ev.Name == file && !ev.IsAttrib() {
					reload = time.After(cfg.devDelay)
				}
			case err := <-watcher.Error:
				logger.Warn("dev: watcher", zap.Error(err))
			case <-ctx.Done():
				return
			}
		}
	}()

	select {
	case m := <-mCh:
		err = runner.Run(ctx, m)
	case <-ctx.Done():
		err = ctx.Err()
	}
	if err == context.Canceled {
		return nil
	}
	return err
}
