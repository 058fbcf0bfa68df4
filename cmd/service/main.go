package main

import (
	"log"

	"go.uber.org/zap"

	"gitlab.com/dirk.krummacker/contacts-backend/internal/auth"
	"gitlab.com/dirk.krummacker/contacts-backend/internal/config"
	"gitlab.com/dirk.krummacker/contacts-backend/internal/mailer"
	"gitlab.com/dirk.krummacker/contacts-backend/internal/service"
	"gitlab.com/dirk.krummacker/contacts-backend/internal/store"
)

// Usage example on the command line:
// > PORT=8080 DBHOST=localhost:3306 DBUSER=dirk DBPWD=bullo92 JWT_SECRET=changeme GIN_MODE=release go run main.go
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	sqlDB, err := store.OpenDatabase(cfg.DB.DSN())
	if err != nil {
		logger.Fatal("opening database", zap.Error(err))
	}
	st, err := store.New(sqlDB)
	if err != nil {
		logger.Fatal("preparing statements", zap.Error(err))
	}

	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.Issuer,
		cfg.Auth.AccessTTL, cfg.Auth.RefreshTTL, cfg.Auth.EmailTTL)
	mail := mailer.New(cfg.Mail.Host, cfg.Mail.Port, cfg.Mail.User,
		cfg.Mail.Password, cfg.Mail.From, cfg.Server.BaseURL)

	svc := service.New(st, tokens, mail, logger, cfg.Limit)
	router := svc.SetupHttpRouter()
	logger.Info("starting contacts backend", zap.String("port", cfg.Server.Port))
	if err := router.Run(":" + cfg.Server.Port); err != nil {
		logger.Fatal("http server stopped", zap.Error(err))
	}
}
