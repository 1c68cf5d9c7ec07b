// Command gen-tickets prints lottery tickets, one per line as JSON arrays.
//
// With -seed the output is reproducible from seed and nonce; without it the
// tickets come from system entropy.
package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/google/uuid"

	"github.com/lamas-finance/round-settler/internal/scan"
)

type line struct {
	ID      string `json:"id"`
	Numbers []int  `json:"numbers"`
}

func main() {
	count := flag.Int("count", 1, "number of tickets")
	maxNumber := flag.Int("max", 36, "highest number in the pool")
	length := flag.Int("len", 4, "numbers per ticket (at most 6)")
	seed := flag.String("seed", "", "seed for reproducible tickets")
	nonce := flag.Uint64("nonce", 0, "nonce for reproducible tickets")
	flag.Parse()

	src := scan.EntropySource()
	if *seed != "" {
		src = scan.ReproducibleSource(*seed, *nonce)
	}

	tickets, err := scan.NewTicketGenerator(src).GenerateN(*count, *maxNumber, *length)
	if err != nil {
		fmt.Fprintf(os.Stderr, "gen-tickets: %v\n", err)
		os.Exit(2)
	}

	w := bufio.NewWriter(os.Stdout)
	enc := json.NewEncoder(w)
	for _, t := range tickets {
		if err := enc.Encode(line{ID: uuid.NewString(), Numbers: t}); err != nil {
			fmt.Fprintf(os.Stderr, "gen-tickets: %v\n", err)
			os.Exit(1)
		}
	}
	if err := w.Flush(); err != nil {
		fmt.Fprintf(os.Stderr, "gen-tickets: %v\n", err)
		os.Exit(1)
	}
}
