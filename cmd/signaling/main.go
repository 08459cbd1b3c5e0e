package main

import (
	"context"
	"log"

	"github.com/gin-gonic/gin"

	"github.com/mossy-p/collab-signaling/config"
	"github.com/mossy-p/collab-signaling/internal/bus"
	"github.com/mossy-p/collab-signaling/internal/directory"
	"github.com/mossy-p/collab-signaling/internal/handlers"
	"github.com/mossy-p/collab-signaling/internal/middleware"
	redisclient "github.com/mossy-p/collab-signaling/internal/redis"
	"github.com/mossy-p/collab-signaling/internal/registry"
	"github.com/mossy-p/collab-signaling/internal/router"
	"github.com/mossy-p/collab-signaling/internal/screenshare"
	"github.com/mossy-p/collab-signaling/internal/session"
	"github.com/mossy-p/collab-signaling/internal/store"
	"github.com/mossy-p/collab-signaling/internal/whiteboard"
)

func main() {
	cfg := config.Load()

	client, err := redisclient.Connect(context.Background(), cfg.Redis)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer client.Close()
	log.Println("Redis connection established")

	ttlStore := store.NewRedis(client)
	groupBus := bus.NewRedis(client)

	dir := directory.New(ttlStore, cfg.Room.StateTTL)
	board := whiteboard.NewLog(ttlStore, cfg.Whiteboard.TTL)
	share := screenshare.NewManager(ttlStore, cfg.Room.StateTTL)

	// Empty-room teardown: drop all cached collaborative state and the
	// per-room uploaded assets.
	reg := registry.New(cfg.Room.Capacity, func(ctx context.Context, room string) {
		if err := board.Clear(ctx, room); err != nil {
			log.Printf("Teardown: whiteboard clear for %s failed: %v", room, err)
		}
		if _, err := share.ForceStop(ctx, room); err != nil {
			log.Printf("Teardown: screen share clear for %s failed: %v", room, err)
		}
		share.Release(room)
		if refs, err := dir.DeleteRoomAssets(ctx, room); err != nil {
			log.Printf("Teardown: asset cleanup for %s failed: %v", room, err)
		} else if len(refs) > 0 {
			log.Printf("Teardown: deleted %d assets for room %s", len(refs), room)
		}
	})

	deps := session.Deps{
		Bus:            groupBus,
		Router:         router.New(groupBus, cfg.Limits),
		Registry:       reg,
		Whiteboard:     board,
		ScreenShare:    share,
		Limits:         cfg.Limits,
		Batch:          cfg.Batch,
		CleanupTimeout: cfg.CleanupTimeout,
	}

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.Default()
	engine.Use(handlers.OriginFilter(cfg.AllowedOrigins))

	engine.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	api := engine.Group("/api")
	{
		api.POST("/auth/login", handlers.Login(cfg.JWTSecret))

		api.POST("/rooms", middleware.JWTAuth(cfg.JWTSecret), handlers.CreateRoom(dir))
		api.GET("/rooms/:roomName", handlers.GetRoom(dir, reg))
		api.DELETE("/rooms/:roomName", middleware.JWTAuth(cfg.JWTSecret), handlers.DeleteRoom(dir))
		api.GET("/rooms/:roomName/members", handlers.GetRoomMembers(dir))

		api.POST("/members", handlers.CreateMember(dir))
		api.GET("/members", handlers.GetMember(dir))
		api.DELETE("/members", handlers.DeleteMember(dir))
	}

	ws := engine.Group("/ws")
	{
		ws.GET("/signal/:roomName", handlers.HandleSignaling(deps, dir))
	}

	log.Printf("Starting signaling server on port %s", cfg.Port)
	if err := engine.Run(":" + cfg.Port); err != nil {
		log.Fatal("Failed to start server:", err)
	}
}
