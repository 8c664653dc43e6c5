// Command inspect prints the structure of a persisted store: every array with
// its shape, chunking, codec, and display metadata, read entirely from the
// consolidated index. With -var it also materializes one array and reports
// value statistics, which is the quickest way to sanity-check a fresh export.
//
// Usage:
//
//	go run ./cmd/inspect -store data/era5.zarr
//	go run ./cmd/inspect -store data/era5.zarr -var t2m
package main

import (
	"flag"
	"fmt"
	"math"
	"os"
	"strings"

	"github.com/sayantanonfire/era5-export/internal/adapter/zarr"
	"github.com/sayantanonfire/era5-export/internal/dataset"
)

func main() {
	store := flag.String("store", "", "path to the store to inspect")
	varName := flag.String("var", "", "array to materialize and summarize")
	flag.Parse()

	if *store == "" {
		flag.Usage()
		os.Exit(1)
	}

	if err := run(*store, *varName); err != nil {
		fmt.Fprintf(os.Stderr, "inspect: %v\n", err)
		os.Exit(1)
	}
}

func run(path, varName string) error {
	store, err := zarr.Open(path)
	if err != nil {
		return err
	}

	fmt.Printf("store: %s\n", path)
	if attrs, err := store.Attrs(); err == nil && len(attrs) > 0 {
		for k, v := range attrs {
			fmt.Printf("  %s: %s\n", k, v)
		}
	}
	fmt.Println()

	fmt.Printf("%-12s %-22s %-22s %-12s %-8s %s\n",
		"ARRAY", "SHAPE", "CHUNKS", "CODEC", "UNITS", "LONG_NAME")
	for _, name := range store.ArrayNames() {
		if err := printArray(store, name); err != nil {
			return err
		}
	}

	if varName != "" {
		fmt.Println()
		return printStats(store, varName)
	}
	return nil
}

func printArray(store *zarr.Store, name string) error {
	shape, chunks, comp, err := store.ArrayMeta(name)
	if err != nil {
		return err
	}

	codec := "none"
	if comp != nil {
		codec = fmt.Sprintf("%s(%d)", comp.ID, comp.Level)
	}

	// Display metadata lives in .zattrs; a coordinate array typically has none.
	v, err := store.Read(name)
	if err != nil {
		return err
	}

	fmt.Printf("%-12s %-22s %-22s %-12s %-8s %s\n",
		name, intList(shape), intList(chunks), codec,
		v.Attrs[dataset.AttrUnits], v.Attrs[dataset.AttrLongName])
	return nil
}

func printStats(store *zarr.Store, name string) error {
	v, err := store.Read(name)
	if err != nil {
		return err
	}

	var (
		count   int
		missing int
		sum     float64
		lo      = math.Inf(1)
		hi      = math.Inf(-1)
	)
	for _, x := range v.Data {
		if dataset.IsMissing(x) {
			missing++
			continue
		}
		count++
		sum += x
		lo = math.Min(lo, x)
		hi = math.Max(hi, x)
	}

	fmt.Printf("%s %s [%s]\n", name, v.Attrs[dataset.AttrLongName], v.Attrs[dataset.AttrUnits])
	fmt.Printf("  values:  %d (%d missing)\n", count, missing)
	if count > 0 {
		fmt.Printf("  min:     %g\n", lo)
		fmt.Printf("  max:     %g\n", hi)
		fmt.Printf("  mean:    %g\n", sum/float64(count))
	}
	if history := v.Attrs[dataset.AttrHistory]; history != "" {
		fmt.Printf("  history: %s\n", history)
	}
	return nil
}

func intList(xs []int) string {
	parts := make([]string, len(xs))
	for i, x := range xs {
		parts[i] = fmt.Sprint(x)
	}
	return "[" + strings.Join(parts, " ") + "]"
}
