// Command chatgen appends synthetic client log lines to a file so the
// watcher can be exercised without a running game client.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/time/rate"

	"github.com/you/poe-chatwatch/internal/core"
)

type sample struct {
	marker string
	guild  string
	user   string
	text   string
}

var samples = []sample{
	{"#", "", "Exile_One", "anyone doing maven?"},
	{"%", "", "PartyLead", "portal up"},
	{"@From", "", "Buyer42", "Hi, I would like to buy your Tabula Rasa listed for 10 chaos"},
	{"@To", "", "Buyer42", "sure, inviting"},
	{"$", "", "Merchant", "WTS 6L body armour, pm offers"},
	{"&", "Exiles", "Guildie", "gz on the drop"},
	{"", "", "LocalGuy", "local area chat is ignored"},
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	var (
		path          string
		rps           float64
		count         int
		truncateEvery int
		seed          int64
	)

	flag.StringVar(&path, "file", "Client.txt", "Log file to append to (created if missing)")
	flag.Float64Var(&rps, "rps", 5, "Lines per second")
	flag.IntVar(&count, "n", 0, "Stop after n lines (0 = until interrupted)")
	flag.IntVar(&truncateEvery, "truncate-every", 0, "Truncate the file after every n lines (0 = never)")
	flag.Int64Var(&seed, "seed", 0, "Random seed (0 = time based)")
	flag.Parse()

	if rps <= 0 {
		log.Fatalf("chatgen: -rps must be > 0")
	}
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		log.Fatalf("chatgen: open %s: %v", path, err)
	}
	defer f.Close()

	limiter := rate.NewLimiter(rate.Limit(rps), 1)
	log.Printf("chatgen: appending to %s at %.1f lines/s", path, rps)

	written := 0
	for count == 0 || written < count {
		if err := limiter.Wait(ctx); err != nil {
			break
		}
		s := samples[rng.Intn(len(samples))]
		if _, err := f.WriteString(formatLine(time.Now(), written, s)); err != nil {
			log.Fatalf("chatgen: write: %v", err)
		}
		written++

		if truncateEvery > 0 && written%truncateEvery == 0 {
			if err := f.Truncate(0); err != nil {
				log.Fatalf("chatgen: truncate: %v", err)
			}
			log.Printf("chatgen: truncated %s after %d lines", path, written)
		}
	}
	log.Printf("chatgen: wrote %d lines", written)
}

// formatLine renders one line in the client log layout.
func formatLine(ts time.Time, seq int, s sample) string {
	prefix := s.marker
	if s.marker == "@From" || s.marker == "@To" {
		prefix += " "
	}
	if s.guild != "" {
		prefix += "<" + s.guild + "> "
	}
	return fmt.Sprintf("%s %d %x [INFO Client %d] %s%s: %s\n",
		ts.Format(core.TimestampLayout), 1000+seq, 0xc0de, 4242, prefix, s.user, s.text)
}
