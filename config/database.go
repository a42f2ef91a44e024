package config

import (
	"database/sql"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/gorm/schema"
)

// DSN builds the MySQL data source name.
// When Host is "/cloudsql/<CONNECTION_NAME>" a unix socket is used.
func (s DatabaseSettings) DSN() string {
	network := "tcp"
	address := fmt.Sprintf("%s:%s", s.Host, s.Port)
	if strings.HasPrefix(s.Host, "/cloudsql/") {
		network = "unix"
		address = s.Host
	}
	return fmt.Sprintf("%s:%s@%s(%s)/%s?parseTime=true&loc=UTC&innodb_lock_wait_timeout=%d",
		s.User,
		s.Password,
		network,
		address,
		s.Name,
		lockWaitSeconds(s.LockWaitTimeout),
	)
}

func lockWaitSeconds(d time.Duration) int {
	sec := int(d / time.Second)
	if sec < 1 {
		return 1
	}
	return sec
}

// ConnectDatabaseWithRetry blocks until MySQL accepts a connection.
// Call this from main() AFTER the HTTP server is listening.
func ConnectDatabaseWithRetry(s DatabaseSettings) *gorm.DB {
	var attempt int
	for {
		attempt++
		db, err := gorm.Open(mysql.Open(s.DSN()), initConfig())
		if err == nil {
			if sqlDB, derr := db.DB(); derr == nil && sqlDB != nil {
				if s.MaxOpenConns > 0 {
					sqlDB.SetMaxOpenConns(s.MaxOpenConns)
				}
				if s.MaxIdleConns >= 0 {
					sqlDB.SetMaxIdleConns(s.MaxIdleConns)
				}
				if s.ConnMaxLifetime > 0 {
					sqlDB.SetConnMaxLifetime(s.ConnMaxLifetime)
				}
				if s.ConnMaxIdleTime > 0 {
					sqlDB.SetConnMaxIdleTime(s.ConnMaxIdleTime)
				}
			}

			if pluginErr := db.Use(otelgorm.NewPlugin()); pluginErr != nil {
				log.Printf("db connected but failed to install otelgorm plugin: %v", pluginErr)
			}
			log.Printf("connected to database (attempt=%d)", attempt)
			return db
		}

		sleep := backoff(attempt)
		log.Printf("failed to connect database (attempt=%d): %v; retrying in %s", attempt, err, sleep)
		time.Sleep(sleep)
	}
}

// OpenLockPool opens a pool used only for advisory locks. A lock holder
// then waits on the main pool for its transaction, so sharing one pool
// lets lock holders starve each other of connections.
func OpenLockPool(s DatabaseSettings) (*sql.DB, error) {
	db, err := sql.Open("mysql", s.DSN())
	if err != nil {
		return nil, err
	}
	size := s.LockPoolSize
	if size < 1 {
		size = 1
	}
	db.SetMaxOpenConns(size)
	db.SetMaxIdleConns(size)
	if s.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(s.ConnMaxLifetime)
	}
	return db, nil
}

func backoff(attempt int) time.Duration {
	sleep := time.Second * time.Duration(1<<min(attempt, 5))
	if sleep > 30*time.Second {
		sleep = 30 * time.Second
	}
	return sleep
}

func initConfig() *gorm.Config {
	return &gorm.Config{
		Logger:         initLog(),
		NamingStrategy: &schema.NamingStrategy{SingularTable: false},
	}
}

func initLog() logger.Interface {
	return logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		logger.Config{
			Colorful:      false,
			LogLevel:      logger.Error,
			SlowThreshold: time.Second,
		},
	)
}
