//go:build ignore

// compare_state compares the registry variables of two nodes. Each argument
// is either a Pebble data directory or a snapshot file.
package main

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"TokenRegistry/internal/registry"
	"TokenRegistry/internal/snapshot"
	"TokenRegistry/internal/storage"
)

func main() {
	if len(os.Args) != 3 {
		fmt.Fprintf(os.Stderr, "Usage: %s <db_or_snapshot_1> <db_or_snapshot_2>\n", os.Args[0])
		os.Exit(1)
	}

	vars1, err := load(os.Args[1])
	if err != nil {
		fmt.Fprintf(os.Stderr, "load %s: %v\n", os.Args[1], err)
		os.Exit(1)
	}

	vars2, err := load(os.Args[2])
	if err != nil {
		fmt.Fprintf(os.Stderr, "load %s: %v\n", os.Args[2], err)
		os.Exit(1)
	}

	fmt.Printf("A (%s): %d vars\n", os.Args[1], len(vars1))
	fmt.Printf("B (%s): %d vars\n", os.Args[2], len(vars2))

	onlyA, onlyB, different := compare(vars1, vars2)

	if len(onlyA) == 0 && len(onlyB) == 0 && len(different) == 0 {
		fmt.Println("\nStates are identical")
		os.Exit(0)
	}

	fmt.Println("\nStates differ:")

	if len(onlyA) > 0 {
		fmt.Printf("  - Vars only in A: %d\n", len(onlyA))
		for _, name := range onlyA {
			fmt.Printf("      %s = %v\n", name, vars1[name])
		}
	}

	if len(onlyB) > 0 {
		fmt.Printf("  - Vars only in B: %d\n", len(onlyB))
		for _, name := range onlyB {
			fmt.Printf("      %s = %v\n", name, vars2[name])
		}
	}

	if len(different) > 0 {
		fmt.Printf("  - Vars with different values: %d\n", len(different))
		for _, name := range different {
			fmt.Printf("      %s: %v != %v\n", name, vars1[name], vars2[name])
		}
	}

	os.Exit(1)
}

// load reads the registry variables of a data directory or snapshot file.
func load(path string) (map[string]any, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}

	if info.IsDir() {
		db, err := storage.New(path)
		if err != nil {
			return nil, err
		}
		defer db.Close()

		return registry.Vars(db, "")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	st, err := snapshot.Open(data)
	if err != nil {
		return nil, err
	}

	vars := make(map[string]any, len(st.Entries))
	for _, e := range st.Entries {
		name := strings.TrimPrefix(string(e.Key), registry.StatePrefix)

		v, err := registry.DecodeVar(name, e.Value)
		if err != nil {
			return nil, err
		}

		vars[name] = v
	}

	return vars, nil
}

func compare(a, b map[string]any) (onlyA, onlyB, different []string) {
	for name, va := range a {
		vb, ok := b[name]
		if !ok {
			onlyA = append(onlyA, name)
			continue
		}

		if va != vb {
			different = append(different, name)
		}
	}

	for name := range b {
		if _, ok := a[name]; !ok {
			onlyB = append(onlyB, name)
		}
	}

	sort.Strings(onlyA)
	sort.Strings(onlyB)
	sort.Strings(different)

	return onlyA, onlyB, different
}
