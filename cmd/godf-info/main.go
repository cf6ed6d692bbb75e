// godf-info reports the device and cache configuration a godf manager
// would run with on this host.
package main

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"time"

	"github.com/goccy/go-json"
	"github.com/urfave/cli/v3"

	"github.com/gqcx/godf"
)

func main() {
	app := &cli.Command{
		Name:  "godf-info",
		Usage: "Density-fitting device layer diagnostics",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return cli.ShowAppHelp(cmd)
		},
		Commands: []*cli.Command{
			devicesCmd(),
			configCmd(),
			probeCmd(),
		},
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig(path string) (godf.Config, error) {
	if path == "" {
		return godf.DefaultConfig(), nil
	}
	return godf.LoadConfig(path)
}

func printJSON(v interface{}) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func devicesCmd() *cli.Command {
	var configPath string

	return &cli.Command{
		Name:  "devices",
		Usage: "List the devices the manager would drive",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "path to YAML config", Destination: &configPath},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			m, err := godf.New(cfg)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			defer func() { _ = m.Close() }()

			props := make([]godf.DeviceProps, 0, m.NumDevices())
			for d := 0; d < m.NumDevices(); d++ {
				p, err := m.Properties(d)
				if err != nil {
					return cli.Exit(fmt.Sprintf("error: device %d: %v", d, err), 1)
				}
				props = append(props, p)
			}
			return printJSON(props)
		},
	}
}

func configCmd() *cli.Command {
	var configPath string

	return &cli.Command{
		Name:  "config",
		Usage: "Print the effective configuration",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "path to YAML config", Destination: &configPath},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			return printJSON(cfg)
		},
	}
}

// probeCmd streams a small synthetic JK build through every device and
// prints the resulting cache state, a quick end-to-end smoke check.
func probeCmd() *cli.Command {
	var (
		configPath string
		nao64      int64
		naux64     int64
		rounds64   int64
	)

	return &cli.Command{
		Name:  "probe",
		Usage: "Run a synthetic block-streamed build and report cache counters",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "path to YAML config", Destination: &configPath},
			&cli.IntFlag{Name: "nao", Usage: "orbital count", Value: 24, Destination: &nao64},
			&cli.IntFlag{Name: "naux", Usage: "auxiliary count", Value: 96, Destination: &naux64},
			&cli.IntFlag{Name: "rounds", Usage: "build repetitions", Value: 3, Destination: &rounds64},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			nao, naux, rounds := int(nao64), int(naux64), int(rounds64)
			cfg, err := loadConfig(configPath)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			m, err := godf.New(cfg)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			defer func() { _ = m.Close() }()

			naoPair := nao * (nao + 1) / 2
			rng := rand.New(rand.NewSource(time.Now().UnixNano()))
			dms := make([]float64, nao*nao)
			for i := 0; i < nao; i++ {
				for j := 0; j <= i; j++ {
					v := rng.Float64()
					dms[i*nao+j] = v
					dms[j*nao+i] = v
				}
			}
			block := make([]float64, naux*naoPair)
			for i := range block {
				block[i] = rng.Float64()
			}
			half := naux / 2
			blocks := [][]float64{
				block[:half*naoPair],
				block[half*naoPair:],
			}

			start := time.Now()
			err = m.ForEachDevice(func(device int) error {
				src := godf.NewSourceID()
				if err := m.InitStreaming(device, nao, naux, 1, half); err != nil {
					return err
				}
				for r := 0; r < rounds; r++ {
					if err := m.SubmitBlockBatch(device, src, dms, blocks, true, true); err != nil {
						return err
					}
					if _, _, err := m.RetrieveResult(device); err != nil {
						return err
					}
				}
				return nil
			})
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			elapsed := time.Since(start)

			statuses := make([]godf.CacheStatus, 0, m.NumDevices())
			for d := 0; d < m.NumDevices(); d++ {
				st, err := m.CacheStatus(d)
				if err != nil {
					return cli.Exit(fmt.Sprintf("error: device %d: %v", d, err), 1)
				}
				statuses = append(statuses, st)
			}
			fmt.Printf("probe: nao=%d naux=%d rounds=%d elapsed=%s\n", nao, naux, rounds, elapsed)
			return printJSON(statuses)
		},
	}
}
