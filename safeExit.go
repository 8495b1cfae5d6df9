package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
)

var SafeExitInst *SafeExit

func InitSafeExit() {
	ctx, cancel := context.WithCancel(context.Background())
	SafeExitInst = &SafeExit{ctx: ctx, cancel: cancel}
	go SafeExitInst.ListenSignal()
}

// SafeExit cancels the root context on the first signal and runs the
// registered funcs when the process ends; a second signal exits at once.
type SafeExit struct {
	ctx    context.Context
	cancel context.CancelFunc

	funcs []func()
	once  sync.Once
	mu    sync.Mutex
}

// Context root context of the process
func (s *SafeExit) Context() context.Context {
	return s.ctx
}

func (s *SafeExit) Register(f func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.funcs = append(s.funcs, f)
}

// Close runs the registered funcs in reverse order, once.
func (s *SafeExit) Close() {
	s.once.Do(func() {
		s.cancel()

		s.mu.Lock()
		defer s.mu.Unlock()
		for i := len(s.funcs) - 1; i >= 0; i-- {
			s.funcs[i]()
		}
	})
}

func (s *SafeExit) ListenSignal() {
	sigs := make(chan os.Signal, 2)
	signal.Notify(sigs, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	sig := <-sigs
	fmt.Fprintf(os.Stderr, "received signal %s, stopping jobs, please wait\n", sig)
	s.cancel()

	sig = <-sigs
	fmt.Fprintf(os.Stderr, "received signal %s again, exiting now\n", sig)
	s.Close()
	os.Exit(1)
}
