package cmd

import (
	"context"
	"fmt"
	"log"
	"time"

	"gridloop/cache"
	"gridloop/config"
	"gridloop/db"
	"gridloop/storage"

	"github.com/spf13/cobra"
)

// checkCmd pings every backing service so a deployment can be verified
// before the server is started.
var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Verify connectivity to MySQL, Redis and MinIO",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := config.Load()
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := db.ConnectGormDB(cfg); err != nil {
			log.Fatalf("MySQL: %v", err)
		}
		sqlDB, err := db.GormDB.DB()
		if err == nil {
			err = sqlDB.PingContext(ctx)
		}
		if err != nil {
			log.Fatalf("MySQL ping: %v", err)
		}
		fmt.Println("MySQL: ok")
		db.CloseGormDB()

		if err := cache.ConnectRedis(cfg); err != nil {
			log.Fatalf("Redis: %v", err)
		}
		if err := cache.RedisClient.Ping(ctx).Err(); err != nil {
			log.Fatalf("Redis ping: %v", err)
		}
		fmt.Println("Redis: ok")
		cache.CloseRedis()

		if err := storage.InitMinio(cfg); err != nil {
			log.Fatalf("MinIO: %v", err)
		}
		exists, err := storage.GetMinioClient().BucketExists(ctx, cfg.MinioBucket)
		if err != nil {
			log.Fatalf("MinIO bucket check: %v", err)
		}
		if !exists {
			log.Fatalf("MinIO: bucket %s does not exist", cfg.MinioBucket)
		}
		fmt.Println("MinIO: ok")
	},
}

func init() {
	rootCmd.AddCommand(checkCmd)
}
