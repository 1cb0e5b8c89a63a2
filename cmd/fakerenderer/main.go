// Command fakerenderer serves a generated plateau over the renderer wire
// protocol, for running the bot without the real engine.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"renderbot.ai/internal/logging"
	"renderbot.ai/internal/protocol"
	"renderbot.ai/internal/renderertest"
)

func main() {
	var (
		listen   = flag.String("listen", fmt.Sprintf("127.0.0.1:%d", protocol.DefaultPort), "listen addr")
		width    = flag.Int("width", 16, "plateau size along x")
		depth    = flag.Int("depth", 16, "plateau size along z")
		fragment = flag.Int("fragment", 0, "split world_info into writes of this many bytes (0 = one write)")
		gap      = flag.Duration("gap", 20*time.Millisecond, "delay between world_info fragments")
		pad      = flag.Int("pad", 0, "NUL-pad the world_info_size token to this width")
		level    = flag.String("log_level", "info", "debug|info|warn|error")
	)
	flag.Parse()

	logger, flush, err := logging.New(logging.Config{Level: *level})
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		os.Exit(2)
	}
	defer flush()

	w := renderertest.FlatWorld(*width, *depth)
	w.FragmentSize = *fragment
	w.FragmentGap = *gap
	w.PadSize = *pad

	srv, err := renderertest.Start(*listen, w)
	if err != nil {
		flush()
		logger.Fatal("listen", zap.String("addr", *listen), zap.Error(err))
	}
	logger.Info("fake renderer listening",
		zap.String("addr", srv.Addr()),
		zap.Int("width", *width), zap.Int("depth", *depth),
		zap.Int("world_bytes", len(w.Payload())))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	pos, dir := w.Character()
	logger.Info("shutting down",
		zap.Int("connections", srv.Accepted()),
		zap.Int("requests", len(srv.Requests())),
		zap.Float64("x", pos.X), zap.Float64("y", pos.Y), zap.Float64("z", pos.Z),
		zap.String("dir", dir.String()))
	_ = srv.Close()
}
