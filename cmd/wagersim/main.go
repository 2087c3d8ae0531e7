// Command wagersim runs payout policies and settlement over seeded draws and
// reports return-to-player statistics.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"gopkg.in/urfave/cli.v1"

	"github.com/R3E-Network/wager_layer/internal/app/domain/wager"
	"github.com/R3E-Network/wager_layer/internal/app/policy"
	"github.com/R3E-Network/wager_layer/internal/fixedpoint"
)

func main() {
	app := cli.NewApp()
	app.Name = "wagersim"
	app.Usage = "simulate wager policies and settlement"
	app.Commands = []cli.Command{
		{
			Name:   "run",
			Usage:  "settle --spins entries of --units units each and report RTP",
			Flags:  runFlags,
			Action: run,
		},
		{
			Name:   "games",
			Usage:  "list supported games",
			Action: listGames,
		},
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "wagersim: %v\n", err)
		os.Exit(1)
	}
}

var runFlags = []cli.Flag{
	cli.StringFlag{Name: "game", Value: string(wager.GameCoinFlip), Usage: "coinflip, rps, mines or roulette"},
	cli.StringFlag{Name: "choice", Value: "1", Usage: "encoded choice; decimal or 0x hex"},
	cli.StringFlag{Name: "wager", Value: "1", Usage: "per-unit wager in tokens"},
	cli.IntFlag{Name: "units", Value: 1, Usage: "units per entry"},
	cli.IntFlag{Name: "spins", Value: 10000, Usage: "entries to settle"},
	cli.Int64Flag{Name: "seed", Value: 1, Usage: "draw seed"},
	cli.StringFlag{Name: "ppv", Value: "0.01", Usage: "edge fraction"},
	cli.StringFlag{Name: "edge-mode", Value: string(wager.EdgeModeDiscount), Usage: "bonus or discount"},
	cli.StringFlag{Name: "stop-loss", Usage: "stop-loss in tokens"},
	cli.StringFlag{Name: "stop-gain", Usage: "stop-gain in tokens"},
	cli.BoolFlag{Name: "json", Usage: "print the report as JSON"},
	cli.BoolFlag{Name: "quiet", Usage: "hide the progress bar"},
}

func run(c *cli.Context) error {
	cfg, err := parseRunFlags(c)
	if err != nil {
		return err
	}
	var progress io.Writer = os.Stderr
	if c.Bool("quiet") {
		progress = io.Discard
	}
	rep, err := simulate(cfg, progress)
	if err != nil {
		return err
	}
	if c.Bool("json") {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(rep)
	}
	return printReport(os.Stdout, rep)
}

func parseRunFlags(c *cli.Context) (simConfig, error) {
	choice, err := strconv.ParseUint(strings.TrimSpace(c.String("choice")), 0, 64)
	if err != nil {
		return simConfig{}, fmt.Errorf("choice: %w", err)
	}
	cfg := simConfig{
		Game:     wager.Game(c.String("game")),
		Choice:   wager.Choice(choice),
		Units:    c.Int("units"),
		Spins:    c.Int("spins"),
		Seed:     uint64(c.Int64("seed")),
		EdgeMode: wager.EdgeMode(c.String("edge-mode")),
	}
	if cfg.Wager, err = fixedpoint.ParseDecimal(c.String("wager")); err != nil {
		return simConfig{}, fmt.Errorf("wager: %w", err)
	}
	if cfg.PPV, err = fixedpoint.ParseDecimal(c.String("ppv")); err != nil {
		return simConfig{}, fmt.Errorf("ppv: %w", err)
	}
	if cfg.StopLoss, err = optionalAmount(c.String("stop-loss")); err != nil {
		return simConfig{}, fmt.Errorf("stop-loss: %w", err)
	}
	if cfg.StopGain, err = optionalAmount(c.String("stop-gain")); err != nil {
		return simConfig{}, fmt.Errorf("stop-gain: %w", err)
	}
	return cfg, nil
}

func optionalAmount(s string) (*big.Int, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	return fixedpoint.ParseDecimal(s)
}

func listGames(*cli.Context) error {
	for _, g := range policy.Games() {
		fmt.Println(g)
	}
	return nil
}

func printReport(w io.Writer, rep report) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	rows := [][2]string{
		{"game", string(rep.Game)},
		{"spins", strconv.Itoa(rep.Spins)},
		{"units played", strconv.Itoa(rep.UnitsPlayed)},
		{"hit rate", fmt.Sprintf("%.4f", rep.HitRate)},
		{"draws", strconv.Itoa(rep.Draws)},
		{"bonuses", strconv.Itoa(rep.Bonuses)},
		{"stopped early", strconv.Itoa(rep.StoppedEarly)},
		{"rtp mean", fmt.Sprintf("%.6f", rep.RTPMean)},
		{"rtp std dev", fmt.Sprintf("%.6f", rep.RTPStdDev)},
		{"locked", rep.TotalLocked},
		{"returned", rep.TotalReturned},
		{"host", rep.HostTotal},
		{"protocol", rep.ProtocolTotal},
	}
	for _, r := range rows {
		fmt.Fprintf(tw, "%s\t%s\n", r[0], r[1])
	}
	return tw.Flush()
}
