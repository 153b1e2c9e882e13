package main

import (
	"fmt"
	"os"

	"github.com/blockedby/chansearch/internal/config"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Println("No files to check.")
		os.Exit(0)
	}

	failed := false
	for _, path := range os.Args[1:] {
		data, err := os.ReadFile(path)
		if err != nil {
			fmt.Printf("❌ Failed to read %s: %v\n", path, err)
			failed = true
			continue
		}

		file, err := config.ParseCategories(data)
		if err != nil {
			fmt.Printf("❌ Invalid category file %s: %v\n", path, err)
			failed = true
			continue
		}
		fmt.Printf("✅ %s is valid (%d categories, fallback %q)\n", path, len(file.Categories), file.Fallback)
	}

	if failed {
		os.Exit(1)
	}
}
