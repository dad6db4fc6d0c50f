package database

import (
	"educore-backend/models"
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

var DB *gorm.DB

func Connect() {
	err := godotenv.Load()
	if err != nil {
		log.Println("no .env file found, relying on environment")
	}

	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=5432 sslmode=disable",
		envDefault("DB_HOST", "db"), os.Getenv("DB_USER"), os.Getenv("DB_PASSWORD"), os.Getenv("DB_NAME"))
	DB, err = gorm.Open(postgres.Open(dsn), &gorm.Config{})

	if err != nil {
		fmt.Println(err)
		panic("Could not connect to database")
	}
}

func AutoMigrate() {
	DB.AutoMigrate(
		&models.Account{}, &models.School{}, &models.SchoolClass{},
		&models.Student{}, &models.Staff{}, &models.StaffSchoolLink{},
		&models.AttendanceSheet{}, &models.Grade{},
		&models.Payment{}, &models.Notification{})
}

func envDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
