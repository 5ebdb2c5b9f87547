package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"certvault/database"
	"certvault/services"
)

func main() {
	var (
		file    = flag.String("file", "", "spreadsheet to import (.csv or .xlsx)")
		dbPath  = flag.String("db", "./data/certvault.db", "database file")
		root    = flag.String("attachments", "./data/attachments", "attachment root directory")
		dryRun  = flag.Bool("dry-run", false, "validate every row without writing anything")
		baseDir = flag.String("base", "", "base directory for relative attachment paths (default: the file's directory)")
	)
	flag.Parse()

	if *file == "" {
		fmt.Println("usage: awards-importer -file awards.xlsx [-dry-run]")
		os.Exit(1)
	}

	db, err := database.Open(*dbPath)
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}
	if err := database.RunMigrations(db); err != nil {
		log.Fatal("Failed to migrate database:", err)
	}

	search := services.NewSearchIndexService(db)
	attachments := services.NewAttachmentService(db, *root)
	flags := services.NewFlagService(db)
	awards := services.NewAwardService(db, search, attachments, flags)
	importer := services.NewImportService(db, awards, flags)

	result, err := importer.ImportFile(*file, services.ImportOptions{
		DryRun:         *dryRun,
		AttachmentBase: *baseDir,
		Progress: func(processed, total int, remaining time.Duration) {
			fmt.Printf("\r%d/%d rows (about %s left)   ", processed, total, remaining.Round(time.Second))
		},
	})
	if err != nil {
		log.Fatal("Import failed:", err)
	}
	fmt.Println()

	if result.DryRun {
		fmt.Printf("Dry run: %d rows would import, %d would fail\n", result.Succeeded, result.Failed)
	} else {
		fmt.Printf("Imported %d rows, %d failed in %s\n", result.Succeeded, result.Failed, result.Elapsed.Round(time.Millisecond))
	}

	for _, rowErr := range result.Errors {
		fmt.Printf("  row %d: %s\n", rowErr.Row, rowErr.Message)
	}
	if result.ErrorFile != "" {
		fmt.Printf("Failed rows written to %s\n", result.ErrorFile)
	}
	if result.Failed > 0 {
		os.Exit(1)
	}
}
