package main

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"gorm.io/gorm"

	"jobportal/internal/auth"
	"jobportal/internal/config"
	"jobportal/internal/database"
)

// 创建一个已验证的 HR 账号并打印一次性初始密码，
// 用于没有 OTP 通道的环境中引导第一个 HR。
func main() {
	var (
		email   = flag.String("email", "", "HR 邮箱（必填）")
		name    = flag.String("name", "", "HR 姓名（必填）")
		company = flag.String("company", "", "公司名称（必填）")
		dbHost  = flag.String("db-host", "", "数据库 Host（可选，默认读 DATABASE_HOST）")
		dbPort  = flag.Int("db-port", 0, "数据库 Port（可选，默认读 DATABASE_PORT）")
		dbName  = flag.String("db-name", "", "数据库名（可选，默认读 POSTGRES_DB）")
		dbUser  = flag.String("db-user", "", "数据库用户（可选，默认读 POSTGRES_USER）")
		dbPass  = flag.String("db-password", "", "数据库密码（可选，默认读 POSTGRES_PASSWORD）")
		sslMode = flag.String("db-sslmode", "", "数据库 SSLMODE（可选，默认读 DATABASE_SSLMODE）")
	)
	flag.Parse()

	emailAddr := strings.ToLower(strings.TrimSpace(*email))
	fullName := strings.TrimSpace(*name)
	companyName := strings.TrimSpace(*company)
	if emailAddr == "" || fullName == "" || companyName == "" {
		log.Fatal("missing required flags: --email, --name, --company")
	}

	dbCfg, err := loadDatabaseConfig(*dbHost, *dbPort, *dbName, *dbUser, *dbPass, *sslMode)
	if err != nil {
		log.Fatalf("load database config: %v", err)
	}

	db, err := database.InitDatabase(dbCfg)
	if err != nil {
		log.Fatalf("init database: %v", err)
	}

	if err := db.AutoMigrate(&database.HRAccount{}); err != nil {
		log.Fatalf("auto migrate: %v", err)
	}

	var existing database.HRAccount
	switch err := db.Where("email = ?", emailAddr).First(&existing).Error; {
	case err == nil:
		log.Fatalf("hr account %q already exists", emailAddr)
	case errors.Is(err, gorm.ErrRecordNotFound):
	default:
		log.Fatalf("query hr account: %v", err)
	}

	password, err := generateRandomPassword(24)
	if err != nil {
		log.Fatalf("generate password: %v", err)
	}

	hashed, err := auth.HashPassword(password)
	if err != nil {
		log.Fatalf("hash password: %v", err)
	}

	hrID, err := nextHRID(db)
	if err != nil {
		log.Fatalf("allocate hrid: %v", err)
	}

	account := database.HRAccount{
		HRID:         hrID,
		FullName:     fullName,
		Email:        emailAddr,
		Company:      companyName,
		PasswordHash: hashed,
	}
	if err := db.Create(&account).Error; err != nil {
		log.Fatalf("create hr account: %v", err)
	}

	fmt.Printf("已创建 HR 账号：\n")
	fmt.Printf("编号: %s\n", hrID)
	fmt.Printf("邮箱: %s\n", emailAddr)
	fmt.Printf("初始密码: %s\n", password)
	fmt.Printf("提示：请立即登录并妥善保存密码（该密码仅显示一次）。\n")
}

// nextHRID 按现有最大序号加一分配编号。
func nextHRID(db *gorm.DB) (string, error) {
	var ids []string
	if err := db.Model(&database.HRAccount{}).
		Where("hrid LIKE ?", "HRID%").
		Order("hrid DESC").
		Pluck("hrid", &ids).Error; err != nil {
		return "", err
	}
	next := 1
	if len(ids) > 0 {
		if n, err := strconv.Atoi(strings.TrimPrefix(ids[0], "HRID")); err == nil {
			next = n + 1
		}
	}
	return fmt.Sprintf("HRID%03d", next), nil
}

func loadDatabaseConfig(host string, port int, name, user, password, sslmode string) (config.DatabaseConfig, error) {
	if strings.TrimSpace(host) == "" {
		host = os.Getenv("DATABASE_HOST")
	}
	if port <= 0 {
		if v := os.Getenv("DATABASE_PORT"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return config.DatabaseConfig{}, fmt.Errorf("parse DATABASE_PORT: %w", err)
			}
			port = n
		}
	}
	if strings.TrimSpace(name) == "" {
		name = os.Getenv("POSTGRES_DB")
	}
	if strings.TrimSpace(user) == "" {
		user = os.Getenv("POSTGRES_USER")
	}
	if strings.TrimSpace(password) == "" {
		password = os.Getenv("POSTGRES_PASSWORD")
	}
	if strings.TrimSpace(sslmode) == "" {
		sslmode = os.Getenv("DATABASE_SSLMODE")
		if sslmode == "" {
			sslmode = "disable"
		}
	}

	cfg := config.DatabaseConfig{
		Host:     host,
		Port:     port,
		Name:     name,
		User:     user,
		Password: password,
		SSLMode:  sslmode,
	}
	if cfg.Host == "" || cfg.Port <= 0 || cfg.Name == "" || cfg.User == "" || cfg.Password == "" {
		return config.DatabaseConfig{}, errors.New("incomplete database config")
	}
	return cfg, nil
}

func generateRandomPassword(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf)[:n], nil
}
