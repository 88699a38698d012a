package main

import (
	"flag"
	"fmt"
	"log"
	"sort"

	"github.com/MarshallGoodmanIndustries/AxelOnePostFeature/internal/config"
	"github.com/MarshallGoodmanIndustries/AxelOnePostFeature/internal/database"
	"github.com/MarshallGoodmanIndustries/AxelOnePostFeature/internal/migrations"
	"gorm.io/gorm"
)

// Prints the columns of every messaging table and the migration state.
// With -rollback <id> it first reverts that migration.
func main() {
	rollback := flag.String("rollback", "", "revert the applied migration with this id before printing")
	flag.Parse()

	cfg, err := config.Load(".env")
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}
	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}

	if *rollback != "" {
		if err := migrations.NewMigrator(db).Rollback(*rollback); err != nil {
			log.Fatal("Rollback failed:", err)
		}
		fmt.Printf("rolled back %s\n", *rollback)
	}

	for _, model := range database.TableModels() {
		stmt := &gorm.Statement{DB: db}
		if err := stmt.Parse(model); err != nil {
			log.Fatalf("parse %T: %v", model, err)
		}
		table := stmt.Schema.Table

		if !db.Migrator().HasTable(model) {
			fmt.Printf("%s: missing, run the server or seeder to migrate\n", table)
			continue
		}
		columns, err := db.Migrator().ColumnTypes(model)
		if err != nil {
			log.Fatalf("columns of %s: %v", table, err)
		}
		fmt.Printf("%s (%d columns)\n", table, len(columns))
		for _, col := range columns {
			nullable, _ := col.Nullable()
			fmt.Printf("  - %-26s %-12s nullable=%v\n", col.Name(), col.DatabaseTypeName(), nullable)
		}
	}

	applied, err := migrations.NewMigrator(db).Applied()
	if err != nil {
		log.Fatal("Failed to read migrations:", err)
	}
	var ids []string
	for _, m := range migrations.GetMigrations() {
		ids = append(ids, m.ID)
	}
	sort.Strings(ids)
	fmt.Println("migrations")
	for _, id := range ids {
		state := "pending"
		if applied[id] {
			state = "applied"
		}
		fmt.Printf("  - %s: %s\n", id, state)
	}
}
