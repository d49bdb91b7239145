// settlement-gateway/tools/cmd/dummygen/main.go
package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"time"
)

func main() {
	n := flag.Int("n", 100, "number of rows (without header)")
	out := flag.String("out", "tests/data/dummy_payments.csv", "output CSV path")
	flag.Parse()

	rand.Seed(time.Now().UnixNano())

	if err := os.MkdirAll("tests/data", 0o755); err != nil {
		log.Fatal(err)
	}
	f, err := os.Create(*out)
	if err != nil {
		log.Fatal(err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	_ = w.Write([]string{"module", "token", "payer", "amount"})
	modules := []string{"marketplace", "subscriptions", "contests"}
	tokens := []string{"native", "usdc", "gold"}
	for i := 0; i < *n; i++ {
		row := []string{
			modules[rand.Intn(len(modules))],
			tokens[rand.Intn(len(tokens))],
			fmt.Sprintf("payer_%04d", rand.Intn(10000)),
			fmt.Sprintf("%d", 100+rand.Intn(1_000_000)),
		}
		if err := w.Write(row); err != nil {
			log.Fatal(err)
		}
	}
	log.Printf("generated %s (%d rows + header)", *out, *n)
}
