package main

// auto-player: joins a game and drops pieces into random legal columns until
// the game is over. handy for smoke testing a server.

import (
	"fmt"
	"math/rand"
	"os"
	"time"

	"github.com/blukai/fourparty/internal/gameclient"
	"github.com/blukai/fourparty/internal/protocol"
	"github.com/kelseyhightower/envconfig"
	"github.com/phuslu/log"
)

type Config struct {
	Addr     string        `envconfig:"ADDR" default:"127.0.0.1:8080"`
	Name     string        `envconfig:"NAME" default:"Player"`
	Timeout  time.Duration `envconfig:"TIMEOUT" default:"0s"`
	Think    time.Duration `envconfig:"THINK" default:"200ms"`
	LogLevel string        `envconfig:"LOG_LEVEL" default:"info"`
}

func loadConfig() (*Config, error) {
	config := new(Config)
	if err := envconfig.Process("fourparty", config); err != nil {
		return nil, err
	}
	return config, nil
}

func configureLogger(level string) *log.Logger {
	logger := log.DefaultLogger

	logger.Level = log.ParseLevel(level)
	logger.TimeFormat = "15:04:05"
	logger.Writer = &log.ConsoleWriter{
		ColorOutput:    true,
		QuoteString:    true,
		EndWithMessage: true,
	}

	return &logger
}

func erringMain() error {
	config, err := loadConfig()
	if err != nil {
		return fmt.Errorf("could not process config: %w", err)
	}

	logger := configureLogger(config.LogLevel)

	gc, err := gameclient.NewGameClient("tcp", config.Addr, logger)
	if err != nil {
		return fmt.Errorf("could not construct game client: %w", err)
	}
	defer gc.Close()
	gc.SetRecvTimeout(config.Timeout)

	logger.Info().Msgf("waiting for an opponent on %s", config.Addr)
	start, err := gc.Join(config.Name)
	if err != nil {
		return fmt.Errorf("could not join: %w", err)
	}
	logger.Info().
		Str("opponent", start.Opponent).
		Str("color", start.Color.String()).
		Msg("game started")

	for gc.Result() == protocol.InProgress {
		if gc.MyTurn() {
			time.Sleep(config.Think)

			b := gc.Board()
			legal := b.LegalColumns()
			column := legal[rand.Intn(len(legal))]
			if err := gc.SendMove(column); err != nil {
				return fmt.Errorf("could not move: %w", err)
			}
		}

		packet, err := gc.Recv()
		if err != nil {
			return fmt.Errorf("could not recv: %w", err)
		}
		b := gc.Board()
		logger.Info().Any("packet", packet).Msgf("\n%s", b.String())
	}

	logger.Info().
		Str("result", gc.Result().String()).
		Bool("won", gc.Result() == protocol.WinFor(gc.Color())).
		Msg("game over")
	return nil
}

func main() {
	if err := erringMain(); err != nil {
		fmt.Fprintf(os.Stderr, "fourparty client: %v\n", err)
		os.Exit(1)
	}
}
