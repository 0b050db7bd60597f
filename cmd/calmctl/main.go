package main

import (
	"context"
	"os"

	"calmchat/internal/cli"

	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load(".env")
	if err := cli.Execute(context.Background()); err != nil {
		os.Exit(1)
	}
}
