package utils

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"safimatch/model"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var DB *gorm.DB

// CustomLogger 自定义 GORM 日志器：只打印慢查询和真实错误
type CustomLogger struct {
	SlowThreshold time.Duration // 慢查询阈值
}

func (l *CustomLogger) LogMode(level logger.LogLevel) logger.Interface {
	return l
}

func (l *CustomLogger) Info(ctx context.Context, msg string, data ...interface{}) {}

func (l *CustomLogger) Warn(ctx context.Context, msg string, data ...interface{}) {}

func (l *CustomLogger) Error(ctx context.Context, msg string, data ...interface{}) {
	if msg != "record not found" {
		log.Printf("[GORM Error] "+msg, data...)
	}
}

func (l *CustomLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	elapsed := time.Since(begin)
	sql, rows := fc()

	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		log.Printf("[GORM Error] %s [%v] [rows:%d] %s", err, elapsed, rows, sql)
	} else if elapsed >= l.SlowThreshold {
		log.Printf("[SLOW SQL] [%v] [rows:%d] %s", elapsed, rows, sql)
	}
}

// InitDB 初始化数据库连接
func InitDB(databaseURL string) error {
	var err error
	DB, err = OpenDB(databaseURL)
	return err
}

// OpenDB 打开一个新的连接池（cmd 工具直接使用）
func OpenDB(databaseURL string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(databaseURL), &gorm.Config{
		Logger: &CustomLogger{
			SlowThreshold: 100 * time.Millisecond,
		},
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	// 网关只做薄封装，连接池不需要很大
	sqlDB.SetMaxOpenConns(50)
	sqlDB.SetMaxIdleConns(10)

	log.Println("✅ Database connected")
	return db, nil
}

// GetDB 获取数据库连接
func GetDB() *gorm.DB {
	return DB
}

// CloseDB 关闭数据库连接
func CloseDB() error {
	if DB == nil {
		return nil
	}
	sqlDB, err := DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// WithUser 以登录用户身份执行一组语句
//
// 和 PostgREST 一样：事务内切换到 authenticated 角色并写入 request.jwt.claims，
// 行级安全策略和 auth.uid() 因此对网关的查询同样生效。
func WithUser(ctx context.Context, db *gorm.DB, ident model.Identity, fn func(tx *gorm.DB) error) error {
	if ident.IsZero() {
		return model.ErrNotAuthenticated
	}

	role := ident.Role
	if role == "" {
		role = "authenticated"
	}

	claims, err := json.Marshal(map[string]interface{}{
		"sub":   ident.UserID.String(),
		"role":  role,
		"email": ident.Email,
	})
	if err != nil {
		return fmt.Errorf("failed to encode claims: %w", err)
	}

	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec(
			"SELECT set_config('role', ?, true), set_config('request.jwt.claims', ?, true), set_config('request.jwt.claim.sub', ?, true)",
			role, string(claims), ident.UserID.String(),
		).Error; err != nil {
			return fmt.Errorf("failed to assume user role: %w", err)
		}
		return fn(tx)
	})
}
