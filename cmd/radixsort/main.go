// Command radixsort benchmarks and inspects the radix sort engine.
//
// Usage:
//
//	radixsort bench --keys 1000000 --runs 10 --backend cpu
//	radixsort histogram --keys 100000 --out histogram.html
//	radixsort shader --out radix_sort.spv
//	radixsort --config radixsort.toml bench
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newApp(os.Stdout).Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "radixsort:", err)
		os.Exit(1)
	}
}
