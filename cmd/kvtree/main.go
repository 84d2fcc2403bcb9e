// Command kvtree inspects and edits an ordered key-value store through the
// container layer.
//
//	kvtree -backend pebble -path ./data put meta.x 123
//	kvtree -backend pebble -path ./data -sentinel . tree meta
//	kvtree -backend pebble -path ./data serve -listen 127.0.0.1:7700
//	kvtree -remote 127.0.0.1:7700 ls meta.
package main

import (
	"context"
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/eigerco/kvtree/pkg/container"
	"github.com/eigerco/kvtree/pkg/db"
	"github.com/eigerco/kvtree/pkg/db/badger"
	"github.com/eigerco/kvtree/pkg/db/blob"
	"github.com/eigerco/kvtree/pkg/db/leveldb"
	"github.com/eigerco/kvtree/pkg/db/pebble"
	"github.com/eigerco/kvtree/pkg/db/remote"
	"github.com/eigerco/kvtree/pkg/log"
)

var errUsage = errors.New("usage")

type config struct {
	backend       string
	path          string
	remoteAddr    string
	serverKey     string
	sentinel      string
	blobDir       string
	blobThreshold int
	logLevel      string
	logJSON       bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "kvtree:", err)
		if errors.Is(err, errUsage) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, out io.Writer) error {
	var cfg config
	fs := flag.NewFlagSet("kvtree", flag.ContinueOnError)
	fs.SetOutput(out)
	fs.StringVar(&cfg.backend, "backend", "pebble", "storage backend: pebble, leveldb or badger")
	fs.StringVar(&cfg.path, "path", "", "data directory; in-memory when empty")
	fs.StringVar(&cfg.remoteAddr, "remote", "", "address of a kvtree server to use instead of a local backend")
	fs.StringVar(&cfg.serverKey, "server-key", "", "hex Ed25519 public key the remote server must present")
	fs.StringVar(&cfg.sentinel, "sentinel", "", "tree path separator; defaults to 0xfe")
	fs.StringVar(&cfg.blobDir, "blob-dir", "", "directory for large values stored out of line")
	fs.IntVar(&cfg.blobThreshold, "blob-threshold", blob.DefaultThreshold, "values of at least this many bytes go to -blob-dir")
	fs.StringVar(&cfg.logLevel, "log-level", "info", "log level")
	fs.BoolVar(&cfg.logJSON, "log-json", false, "log as JSON instead of console text")
	fs.Usage = func() {
		fmt.Fprintln(fs.Output(), "usage: kvtree [flags] get|put|del|delrange|ls|next|prev|tree|walk|compact|serve args...")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return fmt.Errorf("%w: missing command", errUsage)
	}

	level, err := log.ParseLogLevel(cfg.logLevel)
	if err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	logType := log.ConsoleLogger
	if cfg.logJSON {
		logType = log.JSONLogger
	}
	log.Init(log.Options{LogLevel: level, Type: logType, Output: os.Stderr})

	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}

	var opts []container.Option
	if cfg.sentinel != "" {
		opts = append(opts, container.WithPathSentinel([]byte(cfg.sentinel)))
	}
	root := container.New(store, opts...)

	cmdErr := dispatch(ctx, cfg, root, store, fs.Args(), out)
	if err := root.Close(); err != nil && cmdErr == nil {
		return err
	}
	return cmdErr
}

func openStore(ctx context.Context, cfg config) (db.KVStore, error) {
	var (
		store db.KVStore
		err   error
	)
	switch {
	case cfg.remoteAddr != "":
		store, err = dialRemote(ctx, cfg)
	case cfg.backend == "pebble" && cfg.path == "":
		store, err = pebble.NewKVStore()
	case cfg.backend == "pebble":
		store, err = pebble.Open(cfg.path)
	case cfg.backend == "leveldb" && cfg.path == "":
		store, err = leveldb.NewKVStore()
	case cfg.backend == "leveldb":
		store, err = leveldb.Open(cfg.path)
	case cfg.backend == "badger" && cfg.path == "":
		store, err = badger.NewKVStore()
	case cfg.backend == "badger":
		store, err = badger.Open(cfg.path)
	default:
		return nil, fmt.Errorf("%w: unknown backend %q", errUsage, cfg.backend)
	}
	if err != nil {
		return nil, err
	}

	if cfg.blobDir == "" {
		return store, nil
	}
	blobs, err := blob.NewDiskStore(cfg.blobDir)
	if err != nil {
		store.Close() //nolint:errcheck // blob store error takes precedence
		return nil, err
	}
	return blob.Wrap(store, blobs, blob.WithThreshold(cfg.blobThreshold)), nil
}

func dialRemote(ctx context.Context, cfg config) (*remote.Client, error) {
	var clientCfg remote.ClientConfig
	if cfg.serverKey != "" {
		key, err := hex.DecodeString(cfg.serverKey)
		if err != nil {
			return nil, fmt.Errorf("%w: -server-key: %v", errUsage, err)
		}
		clientCfg.ServerKey = key
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return remote.Dial(ctx, cfg.remoteAddr, clientCfg)
}
