package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"

	"github.com/eigerco/kvtree/pkg/container"
	"github.com/eigerco/kvtree/pkg/db"
	"github.com/eigerco/kvtree/pkg/db/remote"
	"github.com/eigerco/kvtree/pkg/log"
)

func dispatch(ctx context.Context, cfg config, root *container.View, store db.KVStore, args []string, out io.Writer) error {
	cmd, args := args[0], args[1:]

	want := func(lo, hi int) error {
		if len(args) < lo || (hi >= 0 && len(args) > hi) {
			return fmt.Errorf("%w: wrong number of arguments for %s", errUsage, cmd)
		}
		return nil
	}

	switch cmd {
	case "get":
		if err := want(1, 1); err != nil {
			return err
		}
		v, err := root.Get([]byte(args[0]))
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%s\n", v)
		return nil

	case "put":
		if err := want(2, 2); err != nil {
			return err
		}
		return root.Put([]byte(args[0]), []byte(args[1]))

	case "del":
		if err := want(1, -1); err != nil {
			return err
		}
		b := root.NewBatch()
		for _, k := range args {
			if err := b.Delete([]byte(k)); err != nil {
				return err
			}
		}
		return root.Commit(b)

	case "delrange":
		if err := want(1, 2); err != nil {
			return err
		}
		var end []byte
		if len(args) == 2 {
			end = []byte(args[1])
		}
		return root.DeleteRange([]byte(args[0]), end)

	case "ls":
		if err := want(0, 1); err != nil {
			return err
		}
		var prefix []byte
		if len(args) == 1 {
			prefix = []byte(args[0])
		}
		return root.Items(prefix, func(k, v []byte) error {
			_, err := fmt.Fprintf(out, "%s\t%s\n", k, v)
			return err
		})

	case "next", "prev":
		if err := want(1, 1); err != nil {
			return err
		}
		find := root.NextKeyValue
		if cmd == "prev" {
			find = root.PrevKeyValue
		}
		k, v, err := find([]byte(args[0]))
		if errors.Is(err, db.ErrNotFound) {
			fmt.Fprintln(out, "<none>")
			return nil
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%s\t%s\n", k, v)
		return nil

	case "tree":
		path := make([][]byte, len(args))
		for i, c := range args {
			path[i] = []byte(c)
		}
		node := root.Tree().Path(path...)
		return node.Children(func(child []byte, leaf bool) error {
			if leaf {
				v, err := node.Lookup(child)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintf(out, "%s\t%s\n", child, v)
				return err
			}
			_, err := fmt.Fprintf(out, "%s/\n", child)
			return err
		})

	case "walk":
		if err := want(1, -1); err != nil {
			return err
		}
		w, err := root.Walk(nil)
		if err != nil {
			return err
		}
		for _, k := range args {
			if !w.Seek([]byte(k)) {
				fmt.Fprintf(out, "%s\t<end>\n", k)
				continue
			}
			fmt.Fprintf(out, "%s\t%s\n", k, w.Key())
		}
		return w.Close()

	case "compact":
		if err := want(0, 0); err != nil {
			return err
		}
		return root.Finalize(nil)

	case "serve":
		if cfg.remoteAddr != "" {
			return fmt.Errorf("%w: serve needs a local backend", errUsage)
		}
		return serve(ctx, store, args, out)
	}
	return fmt.Errorf("%w: unknown command %q", errUsage, cmd)
}

// serve exposes store until ctx is cancelled.
func serve(ctx context.Context, store db.KVStore, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(out)
	listen := fs.String("listen", "127.0.0.1:7700", "address to listen on")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}

	srv, err := remote.NewServer(store, remote.ServerConfig{ListenAddr: *listen})
	if err != nil {
		return err
	}
	if err := srv.Start(); err != nil {
		return err
	}
	fmt.Fprintf(out, "listening on %s\nserver key %x\n", srv.Addr(), []byte(srv.PublicKey()))

	<-ctx.Done()
	log.Root.Info().Msg("shutting down")
	return srv.Stop()
}
