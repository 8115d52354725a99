// Command mincoind is the mincoin node driver: it can run as a core
// node, an edge node, or as a thin client that queries a running
// node's introspection API. Built with urfave/cli v1, with subcommands
// for the core/edge roles plus the ambient flags each needs (API port,
// difficulty, LAN discovery).
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/log"
	"github.com/spf13/viper"
	"github.com/urfave/cli"

	"github.com/mincoin-project/mincoin/internal/api"
	"github.com/mincoin-project/mincoin/internal/config"
	"github.com/mincoin-project/mincoin/internal/corenode"
	"github.com/mincoin-project/mincoin/internal/discovery"
	"github.com/mincoin-project/mincoin/internal/edgenode"
)

func main() {
	log.SetDefault(log.NewLogger(log.NewTerminalHandlerWithLevel(os.Stderr, log.LevelInfo, true)))

	app := cli.NewApp()
	app.Name = "mincoind"
	app.Usage = "run or query a mincoin mesh node"
	app.Commands = []cli.Command{
		serverCommand,
		clientCommand,
		blockchainCommand,
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "mincoind:", err)
		os.Exit(1)
	}
}

var serverCommand = cli.Command{
	Name:  "server",
	Usage: "run a core node, joining the mesh as a full member",
	Flags: []cli.Flag{
		cli.IntFlag{Name: "port", Usage: "mesh listen port", Required: true},
		cli.StringFlag{Name: "bootstrap", Usage: "existing core to join, host:port"},
		cli.BoolFlag{Name: "genesis", Usage: "start a fresh mesh; mutually exclusive with --bootstrap"},
		cli.IntFlag{Name: "api-port", Usage: "introspection API port", Value: config.DefaultAPIPort},
		cli.IntFlag{Name: "difficulty", Usage: "proof-of-work difficulty", Value: config.DefaultDifficulty},
		cli.BoolFlag{Name: "discover", Usage: "enable LAN peer discovery via mDNS"},
		cli.IntFlag{Name: "discover-port", Usage: "libp2p listen port for LAN discovery", Value: 0},
		cli.StringFlag{Name: "config", Usage: "optional YAML config file"},
	},
	Action: runServer,
}

var clientCommand = cli.Command{
	Name:  "client",
	Usage: "run an edge node, attached to a single core",
	Flags: []cli.Flag{
		cli.IntFlag{Name: "port", Usage: "local listen port for core pushes", Required: true},
		cli.StringFlag{Name: "core", Usage: "core to attach to, host:port", Required: true},
		cli.IntFlag{Name: "api-port", Usage: "introspection API port", Value: config.DefaultAPIPort},
		cli.StringFlag{Name: "config", Usage: "optional YAML config file"},
	},
	Action: runClient,
}

var blockchainCommand = cli.Command{
	Name:  "blockchain",
	Usage: "print the chain a running node's introspection API reports",
	Flags: []cli.Flag{
		cli.StringFlag{Name: "api", Usage: "introspection API address", Value: "127.0.0.1:8080"},
	},
	Action: runBlockchain,
}

func runServer(c *cli.Context) error {
	v := viper.New()
	v.Set("port", c.Int("port"))
	if c.IsSet("bootstrap") {
		v.Set("bootstrap", c.String("bootstrap"))
	}
	if c.IsSet("api-port") {
		v.Set("api_port", c.Int("api-port"))
	}
	if c.IsSet("difficulty") {
		v.Set("difficulty", c.Int("difficulty"))
	}
	if c.IsSet("discover") {
		v.Set("discover", c.Bool("discover"))
	}
	cfg, err := config.Load(v, c.String("config"))
	if err != nil {
		return err
	}
	if c.Bool("genesis") && cfg.Bootstrap != "" {
		return cli.NewExitError("mincoind: --genesis and --bootstrap are mutually exclusive", 1)
	}

	node := corenode.NewManager(corenode.Config{
		SelfAddr:     cfg.Addr(),
		Bootstrap:    cfg.Bootstrap,
		Difficulty:   cfg.Difficulty,
		PingInterval: cfg.PingInterval,
		MineInterval: cfg.MineInterval,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := node.Start(ctx); err != nil {
		return err
	}
	defer node.Leave()

	if cfg.Discover {
		discoveryPort := c.Int("discover-port")
		lan, err := discovery.Start(ctx, discoveryPort, cfg.Port, node.Join)
		if err != nil {
			log.Warn("LAN discovery unavailable", "err", err)
		} else {
			defer lan.Close()
		}
	}

	a := api.NewAPI(node)
	go func() {
		if err := a.Run(cfg.APIAddr()); err != nil {
			log.Error("introspection API stopped", "err", err)
		}
	}()

	log.Info("core node running", "mesh_addr", cfg.Addr(), "api_addr", cfg.APIAddr())
	<-ctx.Done()
	log.Info("shutting down")
	return node.Close()
}

func runClient(c *cli.Context) error {
	v := viper.New()
	v.Set("port", c.Int("port"))
	if c.IsSet("api-port") {
		v.Set("api_port", c.Int("api-port"))
	}
	cfg, err := config.Load(v, c.String("config"))
	if err != nil {
		return err
	}

	node := edgenode.NewManager(edgenode.Config{
		SelfAddr:     cfg.Addr(),
		Core:         c.String("core"),
		PingInterval: cfg.PingInterval,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := node.Start(ctx); err != nil {
		return err
	}

	a := api.NewEdgeAPI(node)
	go func() {
		if err := a.Run(cfg.APIAddr()); err != nil {
			log.Error("introspection API stopped", "err", err)
		}
	}()

	log.Info("edge node running", "addr", cfg.Addr(), "core", c.String("core"), "api_addr", cfg.APIAddr())
	<-ctx.Done()
	log.Info("shutting down")
	return node.Close()
}

func runBlockchain(c *cli.Context) error {
	resp, err := http.Get(fmt.Sprintf("http://%s/chain", c.String("api")))
	if err != nil {
		return fmt.Errorf("mincoind: query %s: %w", c.String("api"), err)
	}
	defer resp.Body.Close()

	var blocks []json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&blocks); err != nil {
		return fmt.Errorf("mincoind: decode chain response: %w", err)
	}
	out, err := json.MarshalIndent(blocks, "", "  ")
	if err != nil {
		return err
	}
	out = append(out, '\n')
	_, err = os.Stdout.Write(out)
	return err
}
