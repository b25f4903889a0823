package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"

	"github.com/eddielth/air-monitor/logger"
)

const mysqlDuplicateEntry = 1062

var mysqlSchema = []string{
	`CREATE TABLE IF NOT EXISTS sensor_readings (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		device VARCHAR(255) NOT NULL DEFAULT '',
		co2 DOUBLE NOT NULL,
		co DOUBLE NOT NULL,
		dust DOUBLE NOT NULL,
		ts DATETIME(6) NOT NULL,
		INDEX idx_sensor_readings_ts (ts)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS settings (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		mode VARCHAR(16) NOT NULL,
		threshold_co2_moderate DOUBLE NOT NULL,
		threshold_co2_poor DOUBLE NOT NULL,
		threshold_co_moderate DOUBLE NOT NULL,
		threshold_co_poor DOUBLE NOT NULL,
		threshold_dust_moderate DOUBLE NOT NULL,
		threshold_dust_poor DOUBLE NOT NULL,
		updated_at DATETIME(6) NOT NULL,
		INDEX idx_settings_updated_at (updated_at)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS fan_state (
		seq BIGINT AUTO_INCREMENT PRIMARY KEY,
		id VARCHAR(36) NOT NULL,
		prev_id VARCHAR(36) NOT NULL,
		desired BOOLEAN NOT NULL,
		source VARCHAR(16) NOT NULL,
		updated_at DATETIME(6) NOT NULL,
		UNIQUE KEY uq_fan_state_id (id),
		UNIQUE KEY uq_fan_state_prev_id (prev_id),
		INDEX idx_fan_state_updated_at (updated_at)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
}

func mysqlUniqueViolation(err error) bool {
	var myErr *mysql.MySQLError
	return errors.As(err, &myErr) && myErr.Number == mysqlDuplicateEntry
}

func mysqlDialect() *dialect {
	return &dialect{
		name:              "MySQL",
		driver:            "mysql",
		schema:            mysqlSchema,
		isUniqueViolation: mysqlUniqueViolation,
	}
}

// NewMySQLStorage creates the database named in dsn if needed and opens it.
// The DSN must set parseTime=true.
func NewMySQLStorage(dsn string) (*SQLStorage, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse MySQL DSN: %w", err)
	}
	if !cfg.ParseTime {
		return nil, fmt.Errorf("MySQL DSN must set parseTime=true")
	}
	if cfg.DBName == "" {
		return nil, fmt.Errorf("invalid DSN, cannot find database name")
	}

	if err := ensureMySQLDatabase(cfg); err != nil {
		return nil, err
	}
	return openSQLStorage(mysqlDialect(), dsn)
}

func ensureMySQLDatabase(cfg *mysql.Config) error {
	database := cfg.DBName
	server := cfg.Clone()
	server.DBName = ""

	serverDB, err := sql.Open("mysql", server.FormatDSN())
	if err != nil {
		return fmt.Errorf("connect to MySQL server: %w", err)
	}
	defer serverDB.Close()

	quoted := "`" + strings.ReplaceAll(database, "`", "``") + "`"
	_, err = serverDB.Exec("CREATE DATABASE IF NOT EXISTS " + quoted + " CHARACTER SET utf8mb4 COLLATE utf8mb4_unicode_ci")
	if err != nil {
		return fmt.Errorf("create MySQL database: %w", err)
	}

	logger.Info("ensured MySQL database %s exists", database)
	return nil
}
