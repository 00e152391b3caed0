package main

import (
	"context"
	"os"

	"github.com/facebookincubator/go-belt"
	"github.com/facebookincubator/go-belt/tool/logger"
)

func main() {
	ctx := context.Background()
	defer belt.Flush(ctx)

	err := Root.ExecuteContext(ctx)
	if err != nil {
		logger.Error(ctx, err)
		belt.Flush(ctx)
		os.Exit(1)
	}
}
