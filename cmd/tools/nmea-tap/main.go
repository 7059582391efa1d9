// Command nmea-tap captures raw NMEA sentences from a serial-attached AIS
// receiver, appends them to per-day log files, and optionally re-serves
// them to TCP clients. Sentences are not decoded; the tap preserves the
// feed exactly as the receiver emitted it.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/banshee-data/vessel.report/internal/nmea"
	"github.com/banshee-data/vessel.report/internal/timeutil"
)

func main() {
	device := flag.String("port", "", "serial device path (e.g. /dev/ttyUSB0)")
	baud := flag.Int("baud", 38400, "baud rate")
	dataBits := flag.Int("data-bits", 8, "data bits")
	stopBits := flag.Int("stop-bits", 1, "stop bits")
	parity := flag.String("parity", "N", "parity (N, E, or O)")
	logDir := flag.String("log-dir", "nmea-logs", "directory for per-day raw logs")
	listen := flag.String("listen", "", "optional TCP fan-out address (e.g. :10110)")
	retry := flag.Duration("retry", nmea.DefaultRetryDelay, "delay between reconnect attempts")
	flag.Parse()

	if *device == "" {
		log.Fatal("missing -port (serial device path, e.g. /dev/ttyUSB0)")
	}

	opts := nmea.PortOptions{
		BaudRate: *baud,
		DataBits: *dataBits,
		StopBits: *stopBits,
		Parity:   *parity,
	}
	if _, err := opts.Normalize(); err != nil {
		log.Fatalf("invalid serial options: %v", err)
	}

	rawLog, err := nmea.NewRawLog(*logDir, timeutil.RealClock{})
	if err != nil {
		log.Fatalf("failed to open raw log: %v", err)
	}
	defer rawLog.Close()

	tap := nmea.NewTap(nmea.TapOptions{
		Dial:       nmea.Dialer(*device, opts),
		RetryDelay: *retry,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup

	// run the capture loop to manage IO on the serial port
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := tap.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("capture stopped: %v", err)
		}
		log.Print("capture routine terminated")
	}()

	// subscribe to captured sentences and append them to the daily log
	wg.Add(1)
	go func() {
		defer wg.Done()
		id, ch := tap.Subscribe()
		defer tap.Unsubscribe(id)
		for {
			select {
			case line, ok := <-ch:
				if !ok {
					return
				}
				if err := rawLog.WriteLine(line); err != nil {
					log.Printf("raw log write failed: %v", err)
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	if *listen != "" {
		ln, err := net.Listen("tcp", *listen)
		if err != nil {
			log.Fatalf("failed to listen on %s: %v", *listen, err)
		}
		log.Printf("fanning out NMEA sentences on %s", ln.Addr())
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := tap.ServeTCP(ctx, ln); err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("fan-out listener stopped: %v", err)
			}
		}()
	}

	log.Printf("tapping %s at %d baud, logging to %s", *device, *baud, *logDir)
	<-ctx.Done()
	stop()

	tap.Close()
	wg.Wait()

	st := tap.Stats()
	if !st.LastLine.IsZero() {
		log.Printf("last sentence captured %s ago", time.Since(st.LastLine).Round(time.Second))
	}
	log.Printf("captured %d sentences (%d reconnects, %d failed opens)", st.Lines, st.Reconnects, st.DialErrors)
}
