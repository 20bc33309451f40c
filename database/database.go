package database

import (
	"database/sql"
	"fmt"
	"time"

	"order-service/config"

	_ "github.com/go-sql-driver/mysql"
)

var DB *sql.DB

func InitDB() error {
	cfg := config.LoadConfig()

	dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?parseTime=true&charset=utf8mb4",
		cfg.DBUser, cfg.DBPassword, cfg.DBHost, cfg.DBPort, cfg.DBName)

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return err
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return err
	}

	DB = db
	return migrate()
}

func CloseDB() {
	if DB != nil {
		if err := DB.Close(); err != nil {
			return
		}
	}
}

func migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS products (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			name VARCHAR(255) NOT NULL,
			price DECIMAL(12,2) NOT NULL,
			image VARCHAR(512) NOT NULL DEFAULT '',
			weight INT NOT NULL DEFAULT 0,
			stock INT NOT NULL DEFAULT 0,
			is_available BOOLEAN NOT NULL DEFAULT TRUE,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS orders (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			user_id BIGINT NOT NULL,
			status VARCHAR(32) NOT NULL,
			payment_status VARCHAR(32) NOT NULL,
			payment_method VARCHAR(32) NOT NULL,
			shipping_address TEXT NOT NULL,
			shipping_fee DECIMAL(12,2) NOT NULL DEFAULT 0,
			total DECIMAL(12,2) NOT NULL DEFAULT 0,
			tracking_code VARCHAR(64) NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
			UNIQUE KEY uk_orders_tracking_code (tracking_code),
			KEY idx_orders_user_id (user_id)
		)`,
		`CREATE TABLE IF NOT EXISTS order_items (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			order_id BIGINT NOT NULL,
			product_id BIGINT NOT NULL,
			product_name VARCHAR(255) NOT NULL,
			product_image VARCHAR(512) NOT NULL DEFAULT '',
			quantity INT NOT NULL,
			price DECIMAL(12,2) NOT NULL,
			weight INT NOT NULL DEFAULT 0,
			KEY idx_order_items_order_id (order_id),
			CONSTRAINT fk_order_items_order FOREIGN KEY (order_id) REFERENCES orders(id)
		)`,
	}

	for _, stmt := range stmts {
		if _, err := DB.Exec(stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}
