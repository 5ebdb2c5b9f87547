package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"certvault/database"
	"certvault/services"
)

func main() {
	var (
		out    = flag.String("out", "./import_template.xlsx", "template file to write (.csv or .xlsx)")
		dbPath = flag.String("db", "./data/certvault.db", "database file, used to include custom flag columns")
	)
	flag.Parse()

	ext := filepath.Ext(*out)
	if ext != ".csv" && ext != ".xlsx" {
		fmt.Println("template must end in .csv or .xlsx")
		os.Exit(1)
	}

	db, err := database.Open(*dbPath)
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}
	if err := database.RunMigrations(db); err != nil {
		log.Fatal("Failed to migrate database:", err)
	}

	flags := services.NewFlagService(db)
	search := services.NewSearchIndexService(db)
	attachments := services.NewAttachmentService(db, "./data/attachments")
	awards := services.NewAwardService(db, search, attachments, flags)
	exporter := services.NewExportService(awards, flags)

	if err := exporter.WriteTemplate(*out); err != nil {
		log.Fatal("Failed to write template:", err)
	}
	fmt.Printf("Template written to %s\n", *out)
}
