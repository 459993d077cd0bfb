package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2/humacli"
	"github.com/joho/godotenv"
	"github.com/paulmach/orb/maptile"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/Masoud-Amirdadi/Future-Fire-Stations-Planning/internal/composite"
	"github.com/Masoud-Amirdadi/Future-Fire-Stations-Planning/internal/config"
	"github.com/Masoud-Amirdadi/Future-Fire-Stations-Planning/internal/pmtiles"
	"github.com/Masoud-Amirdadi/Future-Fire-Stations-Planning/internal/server"
)

// Options defines all CLI flags and env vars for the map server.
// Flags: --host, --port, --data-dir, --web-dir, --config, --log-level, --log-format, --fetch-timeout
// Env vars: SERVICE_HOST, SERVICE_PORT, SERVICE_DATA_DIR, ...
type Options struct {
	Host         string `doc:"Host to bind to" default:"0.0.0.0"`
	Port         int    `doc:"Port to listen on" short:"p" default:"8086"`
	DataDir      string `doc:"Directory holding the raster tiles, overlays and database" default:"data"`
	WebDir       string `doc:"Path to web/ directory" default:"web"`
	Config       string `doc:"Layer configuration file (built-in layers when empty)" default:""`
	LogLevel     string `doc:"Log level: debug, info, warn, error" default:"info"`
	LogFormat    string `doc:"Log format: text or json" default:"text"`
	FetchTimeout string `doc:"Timeout of one remote tile fetch, e.g. 10s; 0 means no timeout" default:"0s"`
}

// parseFetchTimeout parses --fetch-timeout. Zero disables the timeout.
func parseFetchTimeout(s string) (time.Duration, error) {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid fetch timeout %q: %w", s, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("invalid fetch timeout %q: must not be negative", s)
	}
	return d, nil
}

// mustFetchTimeout validates the timeout option before anything is started
// or printed.
func mustFetchTimeout(opts *Options) time.Duration {
	d, err := parseFetchTimeout(opts.FetchTimeout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	return d
}

func newServer(opts *Options, fetchTimeout time.Duration) *server.Server {
	srv, err := server.New(server.Config{
		Host:         opts.Host,
		Port:         fmt.Sprintf("%d", opts.Port),
		DataDir:      opts.DataDir,
		WebDir:       opts.WebDir,
		LayersFile:   opts.Config,
		FetchTimeout: fetchTimeout,
		Logger:       config.NewLogger(opts.LogLevel, opts.LogFormat, os.Stderr),
	})
	if err != nil {
		log.Fatalf("Server setup failed: %v", err)
	}
	return srv
}

func main() {
	// .env is optional; real environment variables win.
	_ = godotenv.Load()

	cli := humacli.New(func(hooks humacli.Hooks, opts *Options) {
		var srv *server.Server
		fetchTimeout := mustFetchTimeout(opts)

		hooks.OnStart(func() {
			srv = newServer(opts, fetchTimeout)
			addr := fmt.Sprintf("%s:%d", opts.Host, opts.Port)
			displayHost := opts.Host
			if displayHost == "0.0.0.0" {
				displayHost = "localhost"
			}
			baseURL := fmt.Sprintf("http://%s:%d", displayHost, opts.Port)

			fmt.Println()
			fmt.Printf("firemap server starting...\n")
			fmt.Printf("  Server:  %s\n", baseURL)
			fmt.Printf("  Data:    %s\n", opts.DataDir)
			fmt.Println()
			fmt.Printf("  Map:     %s/viewer\n", baseURL)
			fmt.Printf("  Tiles:   %s/tiles/composite/{z}/{x}/{y}.png\n", baseURL)
			fmt.Printf("  Docs:    %s/docs\n", baseURL)
			fmt.Printf("  OpenAPI: %s/openapi.json\n", baseURL)
			fmt.Println()

			if err := http.ListenAndServe(addr, srv); err != nil {
				log.Fatalf("Server error: %v", err)
			}
		})
		hooks.OnStop(func() {
			if srv != nil {
				srv.Close()
			}
		})
	})

	cli.Root().Use = "firemap"
	cli.Root().Short = "Fire station planning map with a live weighted raster composite"
	cli.Root().Version = "0.1.0"

	cli.Root().AddCommand(specCommand(), renderCommand(), packCommand())
	cli.Run()
}

// specCommand exports the OpenAPI spec.
func specCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "spec",
		Short: "Export OpenAPI spec (JSON by default, --yaml for YAML)",
		Run: humacli.WithOptions(func(cmd *cobra.Command, args []string, opts *Options) {
			srv := newServer(opts, mustFetchTimeout(opts))
			defer srv.Close()
			spec := srv.OpenAPI()

			useYAML, _ := cmd.Flags().GetBool("yaml")

			var output []byte
			var err error
			if useYAML {
				output, err = yaml.Marshal(spec)
			} else {
				output, err = json.MarshalIndent(spec, "", "  ")
			}
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error marshaling spec: %v\n", err)
				os.Exit(1)
			}
			fmt.Println(string(output))
		}),
	}
	cmd.Flags().BoolP("yaml", "y", false, "Output as YAML instead of JSON")
	return cmd
}

// renderCommand renders one composite tile to a PNG file.
func renderCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "render",
		Short: "Render one composite tile to a PNG file",
		Example: `  firemap render --z 11 --x 571 --y 745 --weights "Fire Hydrants=3" --weights road_mobility=1
  firemap render --z 11 --x 571 --y 745 --out tile.png`,
		Run: humacli.WithOptions(func(cmd *cobra.Command, args []string, opts *Options) {
			fetchTimeout := mustFetchTimeout(opts)
			z, _ := cmd.Flags().GetUint32("z")
			x, _ := cmd.Flags().GetUint32("x")
			y, _ := cmd.Flags().GetUint32("y")
			pairs, _ := cmd.Flags().GetStringArray("weights")
			out, _ := cmd.Flags().GetString("out")

			layers, err := config.Load(opts.Config)
			if err != nil {
				log.Fatal(err)
			}
			engine, err := server.NewEngine(layers, server.EngineConfig{
				DataDir:      opts.DataDir,
				FetchTimeout: fetchTimeout,
				Logger:       config.NewLogger(opts.LogLevel, opts.LogFormat, os.Stderr),
			})
			if err != nil {
				log.Fatal(err)
			}
			defer engine.Archives.Close()

			raw := layers.DefaultWeights()
			if len(pairs) > 0 {
				if raw, err = parseWeights(engine.Registry, pairs); err != nil {
					log.Fatal(err)
				}
			}

			tile := maptile.New(x, y, maptile.Zoom(z))
			rendered := engine.Render(context.Background(), raw, tile)
			body, err := rendered.PNG()
			if err != nil {
				log.Fatal(err)
			}
			if out == "" {
				out = fmt.Sprintf("composite_%d_%d_%d.png", z, x, y)
			}
			if err := os.WriteFile(out, body, 0o644); err != nil {
				log.Fatal(err)
			}
			fmt.Printf("Rendered %d/%d/%d to %s (%d contributing, %d absent)\n",
				z, x, y, out, len(rendered.Contributing), len(rendered.Absent))
		}),
	}
	cmd.Flags().Uint32("z", 11, "Zoom level")
	cmd.Flags().Uint32("x", 571, "Tile column")
	cmd.Flags().Uint32("y", 745, "Tile row")
	cmd.Flags().StringArray("weights", nil, "Raw weight as name=value or key=value; repeatable (default: configured weights)")
	cmd.Flags().StringP("out", "o", "", "Output PNG file (default composite_{z}_{x}_{y}.png)")
	return cmd
}

// parseWeights reads name=value pairs. Names may be source names or slider
// keys; sources not named get weight 0.
func parseWeights(reg *composite.Registry, pairs []string) (composite.RawWeights, error) {
	raw := composite.RawWeights{}
	for _, pair := range pairs {
		name, value, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("invalid weight %q: want name=value", pair)
		}
		name = strings.TrimSpace(name)
		v, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid weight %q: %w", pair, err)
		}
		src, ok := reg.ByName(name)
		if !ok {
			if src, ok = reg.ByKey(name); !ok {
				return nil, fmt.Errorf("unknown raster source %q", name)
			}
		}
		raw[src.Name] = v
	}
	return raw, nil
}

// packCommand packs a {z}/{x}/{y}.{ext} tile directory into a PMTiles archive.
func packCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pack <tile-dir> <archive.pmtiles>",
		Short: "Pack a raster tile directory into a PMTiles archive",
		Args:  cobra.ExactArgs(2),
		Run: func(cmd *cobra.Command, args []string) {
			name, _ := cmd.Flags().GetString("name")
			n, err := pmtiles.PackDir(args[0], args[1], name)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error packing tiles: %v\n", err)
				os.Exit(1)
			}
			fmt.Printf("Packed %d tiles into %s\n", n, args[1])
		},
	}
	cmd.Flags().String("name", "", "Archive name stored in the metadata")
	return cmd
}
