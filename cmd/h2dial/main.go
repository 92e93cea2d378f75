// h2dial is a demonstration host for the h2mux connection core. It dials a
// peer, performs the connection preface, announces its SETTINGS, waits for
// the peer's SETTINGS, then opens streams and sends a payload on each. The
// transport (socket reads and writes, frame serialization onto the wire)
// lives here; the connection core only orchestrates frames.
package main

import (
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/spf13/cobra"

	"example.com/h2mux/internal/config"
	"example.com/h2mux/internal/h2mux"
	"example.com/h2mux/internal/logger"
)

var (
	configPath string
	payload    string
	streams    int
	linger     time.Duration
)

var rootCmd = &cobra.Command{
	Use:          "h2dial",
	Short:        "Dial an HTTP/2 peer and exercise stream multiplexing and flow control",
	SilenceUsage: true,
	RunE:         run,
}

func init() {
	rootCmd.Flags().StringVarP(&configPath, "config", "c", "h2dial.toml", "path to the TOML configuration file")
	rootCmd.Flags().StringVarP(&payload, "payload", "p", "hello", "payload to send on each stream")
	rootCmd.Flags().IntVarP(&streams, "streams", "n", 1, "number of streams to open")
	rootCmd.Flags().DurationVar(&linger, "linger", 5*time.Second, "how long to keep reading peer frames after sending")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	log, err := logger.New(cfg.Logging)
	if err != nil {
		return err
	}

	dialer := net.Dialer{Timeout: cfg.ConnectTimeout()}
	nc, err := dialer.Dial("tcp", cfg.Peer.Address)
	if err != nil {
		return fmt.Errorf("dialing %s: %w", cfg.Peer.Address, err)
	}
	defer nc.Close()
	log.Info().Str("peer", cfg.Peer.Address).Msg("connected")

	if err := h2mux.WritePreface(nc); err != nil {
		return err
	}

	writer := &h2mux.IOFrameWriter{W: nc}
	conn, err := h2mux.NewConnection(h2mux.Config{
		Role:   h2mux.RoleClient,
		Writer: writer,
		Logger: &log,
	})
	if err != nil {
		return err
	}

	// Our own SETTINGS announcement is a transport concern: it does not pass
	// through the connection's inbound state machine.
	if err := writer.WriteFrame(settingsFrame(cfg.HTTP2)); err != nil {
		return fmt.Errorf("sending SETTINGS: %w", err)
	}

	buf := make([]byte, 32*1024)
	for conn.State() != h2mux.StateConnected {
		if err := nc.SetReadDeadline(time.Now().Add(cfg.ConnectTimeout())); err != nil {
			return err
		}
		n, err := nc.Read(buf)
		if err != nil {
			return fmt.Errorf("waiting for peer SETTINGS: %w", err)
		}
		if err := conn.Receive(buf[:n]); err != nil {
			return err
		}
	}

	for i := 0; i < streams; i++ {
		s, err := conn.NewStream()
		if err != nil {
			var limitErr *h2mux.StreamLimitError
			if errors.As(err, &limitErr) {
				log.Warn().Uint32("limit", limitErr.Limit).Msg("stream limit reached, stopping")
				break
			}
			return err
		}
		if err := s.SendData([]byte(payload), true); err != nil {
			return err
		}
		log.Info().Uint32("stream", s.ID()).Int("bytes", len(payload)).Msg("payload dispatched")
	}
	if buffered := conn.BufferedAmount(); buffered > 0 {
		log.Info().Int("buffered", buffered).Msg("bytes held back awaiting window credit")
	}

	deadline := time.Now().Add(linger)
	for time.Now().Before(deadline) {
		if err := nc.SetReadDeadline(deadline); err != nil {
			return err
		}
		n, err := nc.Read(buf)
		if err != nil {
			break
		}
		if err := conn.Receive(buf[:n]); err != nil {
			log.Error().Err(err).Msg("connection closed by violation")
			return err
		}
	}
	log.Info().Stringer("state", conn.State()).Uint32("active", conn.ActiveStreams()).Msg("done")
	return nil
}

func settingsFrame(cfg *config.HTTP2Config) *h2mux.SettingsFrame {
	f := &h2mux.SettingsFrame{FrameHeader: h2mux.FrameHeader{Type: h2mux.FrameSettings}}
	if cfg.MaxConcurrentStreams != nil {
		f.Settings = append(f.Settings, h2mux.Setting{ID: h2mux.SettingMaxConcurrentStreams, Value: *cfg.MaxConcurrentStreams})
	}
	if cfg.InitialWindowSize != nil {
		f.Settings = append(f.Settings, h2mux.Setting{ID: h2mux.SettingInitialWindowSize, Value: *cfg.InitialWindowSize})
	}
	if cfg.DisableFlowControl != nil && *cfg.DisableFlowControl {
		f.Settings = append(f.Settings, h2mux.Setting{ID: h2mux.SettingFlowControlOptions, Value: 1})
	}
	return f
}
