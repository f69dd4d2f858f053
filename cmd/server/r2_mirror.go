package main

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"warehousesim/internal/persistence/r2s3"
)

// buildMirror returns nil unless WAREHOUSE_MIRROR is true.
func buildMirror(logger *log.Logger) (*r2s3.Mirror, error) {
	if !envBool("WAREHOUSE_MIRROR", false) {
		return nil, nil
	}
	client, err := r2s3.New(r2s3.Config{
		Endpoint:        os.Getenv("WAREHOUSE_MIRROR_ENDPOINT"),
		Bucket:          os.Getenv("WAREHOUSE_MIRROR_BUCKET"),
		Region:          os.Getenv("WAREHOUSE_MIRROR_REGION"),
		AccessKeyID:     os.Getenv("WAREHOUSE_MIRROR_ACCESS_KEY_ID"),
		SecretAccessKey: os.Getenv("WAREHOUSE_MIRROR_SECRET_ACCESS_KEY"),
	})
	if err != nil {
		return nil, fmt.Errorf("WAREHOUSE_MIRROR=true: %w", err)
	}
	return r2s3.NewMirror(client, r2s3.MirrorConfig{
		Prefix:        os.Getenv("WAREHOUSE_MIRROR_PREFIX"),
		Workers:       envInt("WAREHOUSE_MIRROR_WORKERS", 2),
		QueueCapacity: envInt("WAREHOUSE_MIRROR_QUEUE", 256),
		EnqueueWait:   time.Duration(envInt("WAREHOUSE_MIRROR_ENQUEUE_WAIT_MS", 25)) * time.Millisecond,
	}, logger), nil
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}
