package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path"

	"github.com/hugolhafner/go-camus/commit"
	"github.com/hugolhafner/go-camus/config"
	"github.com/hugolhafner/go-camus/storage"
)

type offsetsCmd struct {
	global *globalOpts
	out    io.Writer

	TaskID int `long:"task" short:"t" required:"true" description:"Task id whose offsets file to read"`
	Args   struct {
		EndOffset int64 `positional-arg-name:"end-offset" description:"Estimated end offset for every next request"`
	} `positional-args:"yes"`
}

func (c *offsetsCmd) Execute([]string) error {
	cfg, err := config.Load(c.global.Config)
	if err != nil {
		return err
	}

	ctx := context.Background()
	store, err := storage.Dial(ctx, cfg.Store.URL)
	if err != nil {
		return err
	}

	if closer, ok := store.(io.Closer); ok {
		defer closer.Close()
	}

	p := path.Join(cfg.Store.ExecutionDir, commit.TaskFile(commit.OffsetsPrefix, c.TaskID))
	r, err := store.Open(ctx, p)
	if err != nil {
		return fmt.Errorf("opening %s: %w", store.URL(p), err)
	}
	defer r.Close()

	cps, err := commit.ReadCheckpoints(r)
	if err != nil {
		return err
	}

	out := c.out
	if out == nil {
		out = os.Stdout
	}

	enc := json.NewEncoder(out)
	for _, cp := range cps {
		if err := enc.Encode(cp.NextRequest(c.Args.EndOffset)); err != nil {
			return err
		}
	}
	return nil
}
