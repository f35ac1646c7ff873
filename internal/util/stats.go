package util

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/pterm/pterm"
)

// ──────────────────────────────────────────────────────────────────────────────
// Global stats singleton
// ──────────────────────────────────────────────────────────────────────────────

// Stats is the process-wide signaling/session counter.
var Stats = &stats{}

type stats struct {
	MsgsSent       atomic.Int64 // signaling messages written to the WebSocket
	MsgsRecv       atomic.Int64 // signaling messages read from the WebSocket
	BytesSent      atomic.Int64 // cumulative signaling bytes written
	BytesRecv      atomic.Int64 // cumulative signaling bytes read
	SessionsOpened atomic.Int64 // call sessions created since process start
	SessionsClosed atomic.Int64 // call sessions that reached Closed
}

func (s *stats) OpenSession()  { s.SessionsOpened.Add(1) }
func (s *stats) CloseSession() { s.SessionsClosed.Add(1) }
func (s *stats) Active() int64 { return s.SessionsOpened.Load() - s.SessionsClosed.Load() }

// AddSent records one outbound signaling message of n bytes.
func (s *stats) AddSent(n int) {
	s.MsgsSent.Add(1)
	s.BytesSent.Add(int64(n))
}

// AddRecv records one inbound signaling message of n bytes.
func (s *stats) AddRecv(n int) {
	s.MsgsRecv.Add(1)
	s.BytesRecv.Add(int64(n))
}

// ──────────────────────────────────────────────────────────────────────────────
// Periodic reporter
// ──────────────────────────────────────────────────────────────────────────────

// StartStatsReporter launches a goroutine that logs signaling statistics
// every interval, skipping quiet periods. It stops when ctx is cancelled.
func StartStatsReporter(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		var prevSent, prevRecv, prevOpened, prevClosed int64
		for {
			select {
			case <-ticker.C:
				sent := Stats.MsgsSent.Load()
				recv := Stats.MsgsRecv.Load()
				opened := Stats.SessionsOpened.Load()
				closed := Stats.SessionsClosed.Load()

				if sent != prevSent || recv != prevRecv || opened != prevOpened || closed != prevClosed {
					pterm.DefaultLogger.Info(formatStats(sent-prevSent, recv-prevRecv, Stats.Active(),
						Stats.BytesSent.Load(), Stats.BytesRecv.Load()))
				}

				prevSent = sent
				prevRecv = recv
				prevOpened = opened
				prevClosed = closed

			case <-ctx.Done():
				return
			}
		}
	}()
}

// byteUnits defines the units for formatting byte counts in a human-readable way.
var byteUnits = []string{"B", "KiB", "MiB", "GiB", "TiB", "PiB"}

// formatBytes formats a byte count into a human-readable string with fixed width (exactly 8 chars)
// for example: "99.0   B", " 1.5 KiB", " 0.1 MiB", "98.9 GiB", etc.
func formatBytes(b float64) string {
	unitIdx := 0

	// to prevent "100.0 KiB", which is 9 chars
	for b > 99 && unitIdx < 5 {
		b /= 1024
		unitIdx++
	}

	return fmt.Sprintf("%4.1f %3s", b, byteUnits[unitIdx])
}

// formatStats returns a formatted string of the current stats for display in the logger.
func formatStats(sent, recv, active, totalSent, totalRecv int64) string {
	return fmt.Sprintf("Msgs: %3d↑ %3d↓ | Total: %s↑ %s↓ | Calls: %d active",
		sent,
		recv,
		formatBytes(float64(totalSent)),
		formatBytes(float64(totalRecv)),
		active,
	)
}
