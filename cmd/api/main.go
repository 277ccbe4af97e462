package main

import (
	"context"
	"fmt"
	"log"

	"github.com/gorilla/sessions"

	"groupblog-prototype/core"
)

func main() {
	cfg := core.Load()
	ctx := context.Background()

	logCloser, err := core.SetupLogging(cfg, "api.log")
	if err != nil {
		log.Fatalf("failed to setup logging: %v", err)
	}
	defer logCloser.Close()

	var (
		users  core.UserRepository
		groups core.GroupRepository
		posts  core.PostRepository
	)
	switch cfg.Storage {
	case "memory":
		memUsers := core.NewMemoryUserRepository()
		memGroups := core.NewMemoryGroupRepository()
		users = memUsers
		groups = memGroups
		posts = core.NewMemoryPostRepository(memUsers, memGroups)
		log.Printf("using in-memory storage, data will not survive restart")
	default:
		db, err := core.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("failed to connect database: %v", err)
		}
		defer db.Close()
		if err := core.Migrate(ctx, db); err != nil {
			log.Fatalf("failed to migrate schema: %v", err)
		}
		users = core.NewPgUserRepository(db)
		groups = core.NewPgGroupRepository(db)
		posts = core.NewPgPostRepository(db)
	}

	// Gorilla cookie store for session management.
	store := sessions.NewCookieStore([]byte(cfg.SessionKey))

	authService := core.NewRepositoryAuthService(users)

	if err := core.BootstrapAdmin(ctx, users, cfg); err != nil {
		log.Fatalf("bootstrap admin failed: %v", err)
	}
	if err := core.BootstrapGroups(ctx, groups, cfg); err != nil {
		log.Fatalf("bootstrap groups failed: %v", err)
	}

	router := core.NewRouter(cfg, store, authService, users, groups, posts)

	addr := fmt.Sprintf(":%s", cfg.Port)
	log.Printf("starting blog server on %s", addr)
	if err := router.Run(addr); err != nil {
		log.Fatalf("server failed: %v", err)
	}
}
