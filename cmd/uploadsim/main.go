// Command uploadsim inserts random photo metadata against the replica
// set with majority-acknowledged writes, for demos and durability checks.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"time"

	"github.com/notes-bin/photoleader/internal/model"
	"github.com/notes-bin/photoleader/internal/store"
)

var tagPool = []string{"nature", "people", "urban", "event", "landscape", "macro"}

func randomTags() []string {
	n := 1 + rand.Intn(3)
	tags := make([]string, 0, n)
	for _, i := range rand.Perm(len(tagPool))[:n] {
		tags = append(tags, tagPool[i])
	}
	return tags
}

func main() {
	uri := flag.String("uri", os.Getenv("MONGO_URI"), "replica set connection string")
	count := flag.Int("count", 5, "number of simulated uploads")
	pause := flag.Duration("pause", 200*time.Millisecond, "pause between uploads")
	flag.Parse()

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil)))

	ctx := context.Background()
	client, err := store.Connect(ctx, *uri, "uploadDB", "")
	if err != nil {
		slog.Error("connect failed", "error", err)
		os.Exit(1)
	}
	defer client.Disconnect(ctx)

	for i := 0; i < *count; i++ {
		photo := &model.Photo{
			Filename:    fmt.Sprintf("image_%d_%d.jpg", time.Now().UnixMilli(), i),
			User:        fmt.Sprintf("user_%d", 1+rand.Intn(5)),
			Tags:        randomTags(),
			Description: "simulated upload",
		}
		id, err := client.Insert(ctx, photo)
		if err != nil {
			slog.Error("insert failed", "error", err)
			os.Exit(1)
		}
		fmt.Printf("inserted _id=%s (w=majority)\n", id.Hex())
		time.Sleep(*pause)
	}
}
