package main

import (
	"log"
	"os"

	"github.com/joho/godotenv"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

func main() {
	_ = godotenv.Load()

	dsn := os.Getenv("DB_DSN")
	if dsn == "" {
		log.Fatal("DB_DSN environment variable is required")
	}

	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	stmts := []string{`
	CREATE TABLE IF NOT EXISTS donations (
	  id CHAR(36) NOT NULL,
	  owner_user_id CHAR(36) NOT NULL,
	  title VARCHAR(255) NOT NULL,
	  target_amount_paise BIGINT NOT NULL DEFAULT 0,
	  raised_amount_paise BIGINT NOT NULL DEFAULT 0,
	  currency CHAR(3) NOT NULL DEFAULT 'INR',
	  status VARCHAR(32) NOT NULL DEFAULT 'open',
	  created_at DATETIME(3) NOT NULL DEFAULT CURRENT_TIMESTAMP(3),
	  updated_at DATETIME(3) NOT NULL DEFAULT CURRENT_TIMESTAMP(3),
	  PRIMARY KEY (id),
	  KEY ix_donations_owner (owner_user_id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;`, `
	CREATE TABLE IF NOT EXISTS requests (
	  id CHAR(36) NOT NULL,
	  owner_user_id CHAR(36) NOT NULL,
	  title VARCHAR(255) NOT NULL,
	  target_amount_paise BIGINT NOT NULL DEFAULT 0,
	  raised_amount_paise BIGINT NOT NULL DEFAULT 0,
	  required_quantity INT NOT NULL DEFAULT 0,
	  received_quantity INT NOT NULL DEFAULT 0,
	  currency CHAR(3) NOT NULL DEFAULT 'INR',
	  status VARCHAR(32) NOT NULL DEFAULT 'open',
	  created_at DATETIME(3) NOT NULL DEFAULT CURRENT_TIMESTAMP(3),
	  updated_at DATETIME(3) NOT NULL DEFAULT CURRENT_TIMESTAMP(3),
	  PRIMARY KEY (id),
	  KEY ix_requests_owner (owner_user_id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;`, `
	CREATE TABLE IF NOT EXISTS payment_records (
	  id CHAR(36) NOT NULL,
	  payer_id CHAR(36) NOT NULL,
	  recipient_id CHAR(36) NOT NULL,
	  donation_id CHAR(36) NULL,
	  request_id CHAR(36) NULL,
	  kind VARCHAR(16) NOT NULL DEFAULT 'monetary',
	  amount_paise BIGINT NOT NULL,
	  quantity INT NOT NULL DEFAULT 0,
	  currency CHAR(3) NOT NULL,
	  receipt VARCHAR(64) NOT NULL,
	  gateway_order_id VARCHAR(128) NOT NULL,
	  gateway_payment_id VARCHAR(128) NULL,
	  gateway_refund_id VARCHAR(128) NULL,
	  notes JSON NULL,
	  status VARCHAR(32) NOT NULL,
	  error_message VARCHAR(255) NULL,
	  created_at DATETIME(3) NOT NULL DEFAULT CURRENT_TIMESTAMP(3),
	  updated_at DATETIME(3) NOT NULL DEFAULT CURRENT_TIMESTAMP(3),
	  PRIMARY KEY (id),
	  UNIQUE KEY ux_payment_records_gateway_order (gateway_order_id),
	  KEY ix_payment_records_payer (payer_id),
	  KEY ix_payment_records_recipient (recipient_id),
	  KEY ix_payment_records_donation (donation_id),
	  KEY ix_payment_records_request (request_id),
	  KEY ix_payment_records_receipt (receipt),
	  CONSTRAINT fk_payment_records_donation FOREIGN KEY (donation_id) REFERENCES donations(id) ON DELETE SET NULL,
	  CONSTRAINT fk_payment_records_request FOREIGN KEY (request_id) REFERENCES requests(id) ON DELETE SET NULL
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;`, `
	CREATE TABLE IF NOT EXISTS provider_events (
	  id CHAR(36) NOT NULL,
	  provider VARCHAR(64) NOT NULL,
	  event_id VARCHAR(128) NOT NULL,
	  event_type VARCHAR(64) NOT NULL,
	  payload_json JSON NOT NULL,
	  received_at DATETIME(3) NOT NULL DEFAULT CURRENT_TIMESTAMP(3),
	  processed_at DATETIME(3) NULL,
	  process_error VARCHAR(255) NULL,
	  PRIMARY KEY (id),
	  UNIQUE KEY ux_provider_events_provider_event (provider, event_id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;`, `
	CREATE TABLE IF NOT EXISTS notifications (
	  id CHAR(36) NOT NULL,
	  user_id CHAR(36) NOT NULL,
	  kind VARCHAR(32) NOT NULL,
	  context JSON NULL,
	  read_at DATETIME(3) NULL,
	  created_at DATETIME(3) NOT NULL DEFAULT CURRENT_TIMESTAMP(3),
	  PRIMARY KEY (id),
	  KEY ix_notifications_user (user_id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;`,
	}

	for _, stmt := range stmts {
		if err := db.Exec(stmt).Error; err != nil {
			log.Fatalf("Failed to create tables: %v", err)
		}
	}

	log.Println("payment tables created")
}
