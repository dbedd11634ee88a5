package main

import (
	"log"
	"os"

	"github.com/joho/godotenv"

	"mediastore/internal/database"
	"mediastore/internal/domain/upload"
)

func main() {
	_ = godotenv.Load()

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		dsn = "uploads.db"
	}

	db, err := database.Connect(dsn)
	if err != nil {
		log.Fatal("DB connection failed:", err)
	}

	log.Println("Running AutoMigrate...")
	if err := db.AutoMigrate(
		&upload.Upload{},
		&upload.OptimizedImage{},
	); err != nil {
		log.Fatal("AutoMigrate failed:", err)
	}

	log.Println("Schema is up to date")
}
