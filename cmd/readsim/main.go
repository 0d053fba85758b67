// Command readsim lists the gallery through the secondary-preferred read
// path, demonstrating read scaling across followers.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/notes-bin/photoleader/internal/store"
)

func main() {
	uri := flag.String("uri", os.Getenv("MONGO_URI"), "replica set connection string")
	tag := flag.String("tag", "", "filter by tag")
	limit := flag.Int64("limit", 20, "max photos to list")
	flag.Parse()

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil)))

	ctx := context.Background()
	client, err := store.Connect(ctx, *uri, "uploadDB", "")
	if err != nil {
		slog.Error("connect failed", "error", err)
		os.Exit(1)
	}
	defer client.Disconnect(ctx)

	photos, err := client.List(ctx, store.Filter{Tag: *tag}, 0, *limit)
	if err != nil {
		slog.Error("list failed", "error", err)
		os.Exit(1)
	}
	for _, p := range photos {
		fmt.Printf("_id=%s user=%s status=%s tags=%v filename=%s\n",
			p.ID.Hex(), p.User, p.Status, p.Tags, p.Filename)
	}
}
