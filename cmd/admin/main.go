package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"resumeforge/internal/account"
	"resumeforge/internal/auth"
	"resumeforge/internal/config"
	"resumeforge/internal/database"
)

const usage = `用法:
  admin repair-masters [数据库参数]   为缺少主简历的账号补建空白主简历
  admin issue-token --subject <sub> [--email <email>] [--ttl 1h]   签发本地调试用身份令牌`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}

	switch os.Args[1] {
	case "repair-masters":
		repairMasters(os.Args[2:])
	case "issue-token":
		issueToken(os.Args[2:])
	default:
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}
}

func repairMasters(args []string) {
	fs := flag.NewFlagSet("repair-masters", flag.ExitOnError)
	var (
		dbHost  = fs.String("db-host", "", "数据库 Host（可选，默认读 DATABASE_HOST）")
		dbPort  = fs.Int("db-port", 0, "数据库 Port（可选，默认读 DATABASE_PORT）")
		dbName  = fs.String("db-name", "", "数据库名（可选，默认读 POSTGRES_DB）")
		dbUser  = fs.String("db-user", "", "数据库用户（可选，默认读 POSTGRES_USER）")
		dbPass  = fs.String("db-password", "", "数据库密码（可选，默认读 POSTGRES_PASSWORD）")
		sslMode = fs.String("db-sslmode", "", "数据库 SSLMODE（可选，默认读 DATABASE_SSLMODE）")
	)
	_ = fs.Parse(args)

	dbCfg, err := loadDatabaseConfig(*dbHost, *dbPort, *dbName, *dbUser, *dbPass, *sslMode)
	if err != nil {
		log.Fatalf("load database config: %v", err)
	}

	db, err := database.InitDatabase(dbCfg)
	if err != nil {
		log.Fatalf("init database: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		log.Fatalf("auto migrate: %v", err)
	}

	svc := account.NewService(db, account.NewGuard(db), nil)
	repaired, err := svc.RepairMissingMasters(context.Background())
	if err != nil {
		log.Fatalf("repair master resumes: %v", err)
	}
	fmt.Printf("已补建主简历: %d 个账号\n", repaired)
}

func issueToken(args []string) {
	fs := flag.NewFlagSet("issue-token", flag.ExitOnError)
	var (
		subject    = fs.String("subject", "", "令牌 subject（必填）")
		email      = fs.String("email", "", "令牌 email（可选）")
		ttl        = fs.Duration("ttl", time.Hour, "有效期")
		publicKey  = fs.String("public-key", "", "公钥路径（可选，默认读 AUTH_PUBLIC_KEY_PATH）")
		privateKey = fs.String("private-key", "", "私钥路径（可选，默认读 AUTH_PRIVATE_KEY_PATH）")
		issuer     = fs.String("issuer", os.Getenv("AUTH_ISSUER"), "issuer（可选）")
		audience   = fs.String("audience", os.Getenv("AUTH_AUDIENCE"), "audience（可选）")
	)
	_ = fs.Parse(args)

	sub := strings.TrimSpace(*subject)
	if sub == "" {
		log.Fatal("missing required flag: --subject")
	}
	pub := firstNonEmpty(*publicKey, os.Getenv("AUTH_PUBLIC_KEY_PATH"))
	priv := firstNonEmpty(*privateKey, os.Getenv("AUTH_PRIVATE_KEY_PATH"))
	if pub == "" || priv == "" {
		log.Fatal("both --public-key and --private-key are required")
	}

	svc, err := auth.NewAuthServiceFromFiles(pub, priv, *issuer, *audience)
	if err != nil {
		log.Fatalf("init auth service: %v", err)
	}
	token, err := svc.IssueToken(auth.Identity{Subject: sub, Email: strings.TrimSpace(*email)}, *ttl)
	if err != nil {
		log.Fatalf("issue token: %v", err)
	}
	fmt.Println(token)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func loadDatabaseConfig(host string, port int, name, user, password, sslmode string) (config.DatabaseConfig, error) {
	if strings.TrimSpace(host) == "" {
		host = os.Getenv("DATABASE_HOST")
	}
	if port <= 0 {
		if env := strings.TrimSpace(os.Getenv("DATABASE_PORT")); env != "" {
			p, err := strconv.Atoi(env)
			if err != nil {
				return config.DatabaseConfig{}, fmt.Errorf("parse DATABASE_PORT: %w", err)
			}
			port = p
		}
	}
	if strings.TrimSpace(name) == "" {
		name = os.Getenv("POSTGRES_DB")
	}
	if strings.TrimSpace(name) == "" {
		name = os.Getenv("DB_NAME")
	}
	if strings.TrimSpace(user) == "" {
		user = os.Getenv("POSTGRES_USER")
	}
	if strings.TrimSpace(user) == "" {
		user = os.Getenv("DB_USER")
	}
	if strings.TrimSpace(password) == "" {
		password = os.Getenv("POSTGRES_PASSWORD")
	}
	if strings.TrimSpace(password) == "" {
		password = os.Getenv("DB_PASSWORD")
	}
	if strings.TrimSpace(sslmode) == "" {
		sslmode = os.Getenv("DATABASE_SSLMODE")
	}

	if strings.TrimSpace(host) == "" {
		host = "localhost"
	}
	if port <= 0 {
		port = 5432
	}
	if strings.TrimSpace(sslmode) == "" {
		sslmode = "disable"
	}
	if strings.TrimSpace(name) == "" {
		return config.DatabaseConfig{}, errors.New("database name is required (POSTGRES_DB)")
	}
	if strings.TrimSpace(user) == "" {
		return config.DatabaseConfig{}, errors.New("database user is required (POSTGRES_USER)")
	}
	if strings.TrimSpace(password) == "" {
		return config.DatabaseConfig{}, errors.New("database password is required (POSTGRES_PASSWORD)")
	}

	return config.DatabaseConfig{
		Host:     host,
		Port:     port,
		Name:     name,
		User:     user,
		Password: password,
		SSLMode:  sslmode,
	}, nil
}
